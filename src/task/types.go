package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskType represents different types of async tasks
type TaskType string

// TaskStatus represents the current status of a task
type TaskStatus string

// TaskExecutor defines the function signature for task execution
type TaskExecutor func(t *Task) error

const (
	// TaskTypeImageUpload 将上传图片写入对象存储
	TaskTypeImageUpload TaskType = "image_upload"
	// TaskTypeKnowledgeIngest 将标注样本写入知识索引
	TaskTypeKnowledgeIngest TaskType = "knowledge_ingest"
)

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusComplete TaskStatus = "complete"
	TaskStatusFailed   TaskStatus = "failed"
)

// Task 一个异步任务
type Task struct {
	ID        string
	Type      TaskType
	Params    map[string]interface{}
	Status    TaskStatus
	Error     error
	CreatedAt time.Time

	mu sync.Mutex
}

// NewTask 创建任务
func NewTask(taskType TaskType, params map[string]interface{}) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Params:    params,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
	}
}

func (t *Task) setStatus(status TaskStatus, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = status
	t.Error = err
}

// GetStatus 读取任务状态
func (t *Task) GetStatus() (TaskStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Status, t.Error
}

// TaskRegistry manages task type to executor mappings
type TaskRegistry struct {
	executors map[TaskType]TaskExecutor
	mu        sync.RWMutex
}

// Global task registry instance
var taskRegistry = &TaskRegistry{
	executors: make(map[TaskType]TaskExecutor),
}

// RegisterTaskExecutor registers a task executor for a specific task type
func RegisterTaskExecutor(taskType TaskType, executor TaskExecutor) {
	taskRegistry.mu.Lock()
	defer taskRegistry.mu.Unlock()
	taskRegistry.executors[taskType] = executor
}

// GetTaskExecutor retrieves the executor for a specific task type
func GetTaskExecutor(taskType TaskType) (TaskExecutor, bool) {
	taskRegistry.mu.RLock()
	defer taskRegistry.mu.RUnlock()
	executor, exists := taskRegistry.executors[taskType]
	return executor, exists
}

// GetRegisteredTaskTypes returns all registered task types
func GetRegisteredTaskTypes() []TaskType {
	taskRegistry.mu.RLock()
	defer taskRegistry.mu.RUnlock()
	types := make([]TaskType, 0, len(taskRegistry.executors))
	for taskType := range taskRegistry.executors {
		types = append(types, taskType)
	}
	return types
}

// String 任务描述
func (t *Task) String() string {
	return fmt.Sprintf("task[%s] %s", t.Type, t.ID)
}
