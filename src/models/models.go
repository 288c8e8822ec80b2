package models

import (
	"time"

	"gorm.io/datatypes"
)

// DiagnosisHistory 一次诊断的落库记录
// ActionPlan 存储为 JSON 数组，与接口返回的 action_plan 字段同构
type DiagnosisHistory struct {
	ID              uint   `gorm:"primaryKey"`
	RequestID       string `gorm:"uniqueIndex;not null"` // 请求ID
	ObjectName      string // 对象存储中的图片名称
	PlantName       string
	Condition       string
	DetailDiagnosis string `gorm:"type:text"`
	ActionPlan      datatypes.JSON
	Rejected        bool // 是否被安全门拦截
	CreatedAt       time.Time
}
