package diagnose

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"willow-server-go/src/configs"
	"willow-server-go/src/core/auth"
	"willow-server-go/src/core/image"
	"willow-server-go/src/core/storage"
	"willow-server-go/src/core/utils"
	"willow-server-go/src/models"
	"willow-server-go/src/task"
)

// Diagnoser 诊断流水线入口，生产环境为Orchestrator
type Diagnoser interface {
	Diagnose(ctx context.Context, img image.ImageData) (*DiagnosisRecord, error)
}

// Server 诊断HTTP服务
type Server struct {
	config       *configs.Config
	orchestrator Diagnoser
	validator    *image.ImageSecurityValidator
	storage      *storage.Client
	taskMgr      *task.TaskManager
	db           *gorm.DB
	authToken    *auth.AuthToken
	logger       *utils.TaggedLogger
}

// NewServer 创建诊断服务
// storage与db允许为nil，对应能力自动降级
func NewServer(config *configs.Config, orchestrator Diagnoser, validator *image.ImageSecurityValidator,
	storageClient *storage.Client, taskMgr *task.TaskManager, db *gorm.DB, logger *utils.Logger) *Server {
	s := &Server{
		config:       config,
		orchestrator: orchestrator,
		validator:    validator,
		storage:      storageClient,
		taskMgr:      taskMgr,
		db:           db,
		logger:       logger.WithTag("web"),
	}
	if config.Web.Auth.Enabled {
		s.authToken = auth.NewAuthToken(config.Web.Auth.Secret)
	}
	s.registerUploadExecutor()
	return s
}

// Start 注册路由
func (s *Server) Start(engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	group := apiGroup
	if s.authToken != nil {
		group = apiGroup.Group("", s.authMiddleware())
	}
	group.POST("/diagnose", s.handleDiagnose)
	group.GET("/status", s.handleStatus)
	return nil
}

// authMiddleware 校验 Authorization: Bearer <token>
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		ok, clientID, err := s.authToken.VerifyToken(tokenString)
		if !ok || err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("client_id", clientID)
		c.Next()
	}
}

// handleDiagnose 接收上传图片并执行诊断
func (s *Server) handleDiagnose(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}

	format := image.DetectFormat(data)
	result := s.validator.ValidateImageBytes(data, format)
	if !result.IsValid {
		s.logger.Warn(fmt.Sprintf("图片校验失败: %v", result.Error))
		c.JSON(http.StatusBadRequest, gin.H{"error": result.Error.Error()})
		return
	}

	requestID := uuid.New().String()
	objectName := fmt.Sprintf("%s_%s", requestID, fileHeader.Filename)

	// 图片入库与诊断结果无关，异步写入对象存储
	s.submitUpload(objectName, data, fileHeader.Header.Get("Content-Type"))

	record, err := s.orchestrator.Diagnose(c.Request.Context(), image.ImageData{
		Data:   base64.StdEncoding.EncodeToString(data),
		Format: format,
	})
	if err != nil {
		s.logger.Error(fmt.Sprintf("诊断失败: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "diagnosis failed"})
		return
	}

	s.saveHistory(requestID, objectName, record)
	c.JSON(http.StatusOK, record)
}

// handleStatus 服务状态
func (s *Server) handleStatus(c *gin.Context) {
	taskTypes := make([]string, 0)
	for _, t := range task.GetRegisteredTaskTypes() {
		taskTypes = append(taskTypes, string(t))
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"storage_enabled": s.storage != nil,
		"history_enabled": s.db != nil && s.config.Diagnose.HistoryEnabled,
		"task_types":      taskTypes,
	})
}

// registerUploadExecutor 注册图片上传任务执行器
func (s *Server) registerUploadExecutor() {
	if s.storage == nil {
		return
	}
	client := s.storage
	task.RegisterTaskExecutor(task.TaskTypeImageUpload, func(t *task.Task) error {
		objectName, _ := t.Params["object_name"].(string)
		data, _ := t.Params["data"].([]byte)
		contentType, _ := t.Params["content_type"].(string)
		if objectName == "" || len(data) == 0 {
			return fmt.Errorf("上传任务参数不完整")
		}
		return client.PutObject(context.Background(), objectName, data, contentType)
	})
}

// submitUpload 提交异步上传任务，失败只记日志
func (s *Server) submitUpload(objectName string, data []byte, contentType string) {
	if s.storage == nil {
		return
	}
	t := task.NewTask(task.TaskTypeImageUpload, map[string]interface{}{
		"object_name":  objectName,
		"data":         data,
		"content_type": contentType,
	})
	if err := s.taskMgr.SubmitTask(t); err != nil {
		s.logger.Warn(fmt.Sprintf("提交上传任务失败: %v", err))
	}
}

// saveHistory 将诊断结果写入数据库，未启用或失败时只记日志
func (s *Server) saveHistory(requestID, objectName string, record *DiagnosisRecord) {
	if s.db == nil || !s.config.Diagnose.HistoryEnabled {
		return
	}

	planJSON, err := json.Marshal(record.ActionPlan)
	if err != nil {
		planJSON = []byte("[]")
	}
	history := &models.DiagnosisHistory{
		RequestID:       requestID,
		ObjectName:      objectName,
		PlantName:       record.PlantName,
		Condition:       record.Condition,
		DetailDiagnosis: record.DetailDiagnosis,
		ActionPlan:      datatypes.JSON(planJSON),
		Rejected:        isRejection(record),
	}
	if err := s.db.Create(history).Error; err != nil {
		s.logger.Warn(fmt.Sprintf("写入诊断历史失败: %v", err))
	}
}

// isRejection 判断记录是否为安全闸门的拒绝模板
func isRejection(record *DiagnosisRecord) bool {
	switch record.Condition {
	case "Invalid Image Content", "Prohibited Plant Species", "Invalid Content":
		return true
	}
	return false
}
