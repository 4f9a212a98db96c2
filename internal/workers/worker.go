package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/vultr740-byte/openclaw/internal/logger"
)

// worker is the main worker goroutine that processes tasks from the queue.
func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.DebugCtx(ctx, "worker started",
		logger.Field{Key: "worker_id", Value: id})

	for {
		select {
		case <-ctx.Done():
			p.logger.DebugCtx(ctx, "worker stopping",
				logger.Field{Key: "worker_id", Value: id})
			return
		case task := <-p.taskQueue:
			p.prom.setQueueDepth(len(p.taskQueue))
			p.processTask(ctx, id, task)
		}
	}
}

// processTask handles a single task execution with metrics and error handling.
func (p *WorkerPool) processTask(poolCtx context.Context, workerID int, task Task) {
	start := time.Now()

	// Use task context if provided, otherwise use pool context
	execCtx := poolCtx
	if task.Context != nil {
		execCtx = task.Context
	}

	p.prom.addRunning(1)
	err := p.executeTask(execCtx, task)
	p.prom.addRunning(-1)

	result := Result{
		TaskID:   task.ID,
		Type:     task.Type,
		Error:    err,
		Duration: time.Since(start),
	}

	p.mu.Lock()
	if err != nil {
		p.metrics.TasksFailed++
	} else {
		p.metrics.TasksCompleted++
	}
	p.metrics.TotalDuration += result.Duration
	p.mu.Unlock()
	p.prom.finished(task.Type, err, result.Duration)

	select {
	case p.resultCh <- result:
	default:
	}

	if err != nil {
		p.logger.ErrorCtx(execCtx, "task failed", err,
			logger.Field{Key: "worker_id", Value: workerID},
			logger.Field{Key: "task_id", Value: task.ID},
			logger.Field{Key: "task_type", Value: task.Type})
		return
	}
	p.logger.DebugCtx(execCtx, "task processed",
		logger.Field{Key: "worker_id", Value: workerID},
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "duration_ms", Value: result.Duration.Milliseconds()})
}

// executeTask runs the task, turning a panic into an error.
func (p *WorkerPool) executeTask(ctx context.Context, task Task) (err error) {
	if task.Run == nil {
		return fmt.Errorf("%w: %s", ErrNoRunner, task.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during task execution: %v", r)
		}
	}()
	return task.Run(ctx)
}
