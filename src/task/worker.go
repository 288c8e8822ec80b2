package task

import (
	"fmt"
	"sync"

	"willow-server-go/src/core/utils"
)

// WorkerPool 固定大小的任务工作池
type WorkerPool struct {
	queue   chan *Task
	workers int
	logger  *utils.TaggedLogger

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	closed  bool
}

// NewWorkerPool 创建工作池
func NewWorkerPool(workers, queueSize int, logger *utils.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &WorkerPool{
		queue:   make(chan *Task, queueSize),
		workers: workers,
		logger:  logger.WithTag("task"),
	}
}

// Start 启动工作协程
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

// Stop 关闭队列并等待在途任务完成
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Submit 提交任务，队列已满或已关闭时报错
func (p *WorkerPool) Submit(t *Task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("工作池已关闭")
	}
	p.mu.Unlock()

	select {
	case p.queue <- t:
		return nil
	default:
		return fmt.Errorf("任务队列已满")
	}
}

func (p *WorkerPool) run() {
	defer p.wg.Done()

	for t := range p.queue {
		executor, exists := GetTaskExecutor(t.Type)
		if !exists {
			t.setStatus(TaskStatusFailed, fmt.Errorf("任务类型 %s 未注册", t.Type))
			p.logger.Warn(fmt.Sprintf("丢弃未注册的任务: %s", t))
			continue
		}

		t.setStatus(TaskStatusRunning, nil)
		if err := executor(t); err != nil {
			t.setStatus(TaskStatusFailed, err)
			p.logger.Warn(fmt.Sprintf("%s 执行失败: %v", t, err))
		} else {
			t.setStatus(TaskStatusComplete, nil)
			p.logger.Debug(fmt.Sprintf("%s 执行完成", t))
		}
	}
}
