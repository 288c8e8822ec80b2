package task

import (
	"fmt"

	"willow-server-go/src/core/utils"
)

// TaskManager manages async tasks and their execution
type TaskManager struct {
	workerPool *WorkerPool
}

// ResourceConfig 工作池资源配置
type ResourceConfig struct {
	Workers   int
	QueueSize int
}

// NewTaskManager creates a new TaskManager instance
func NewTaskManager(config ResourceConfig, logger *utils.Logger) *TaskManager {
	return &TaskManager{
		workerPool: NewWorkerPool(config.Workers, config.QueueSize, logger),
	}
}

// Start starts the task manager and its components
func (tm *TaskManager) Start() {
	tm.workerPool.Start()
}

// Stop stops the task manager and its components
func (tm *TaskManager) Stop() {
	tm.workerPool.Stop()
}

// SubmitTask submits a task for execution
func (tm *TaskManager) SubmitTask(t *Task) error {
	// 检查任务类型是否已注册
	if _, exists := GetTaskExecutor(t.Type); !exists {
		return fmt.Errorf("task type %v is not registered", t.Type)
	}

	return tm.workerPool.Submit(t)
}
