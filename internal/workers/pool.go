package workers

import (
	"context"
	"sync"

	"github.com/vultr740-byte/openclaw/internal/logger"
)

// WorkerPool manages a pool of goroutine workers for concurrent task execution.
type WorkerPool struct {
	taskQueue chan Task
	resultCh  chan Result
	workers   int
	logger    *logger.Logger
	prom      *Metrics

	mu      sync.RWMutex
	metrics PoolMetrics
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// NewPool creates a new worker pool with the specified configuration.
func NewPool(workers int, bufferSize int, logger *logger.Logger) *WorkerPool {
	if workers <= 0 {
		workers = DefaultPoolSize
	}
	if bufferSize < 0 {
		bufferSize = DefaultQueueSize
	}
	return &WorkerPool{
		taskQueue: make(chan Task, bufferSize),
		resultCh:  make(chan Result, bufferSize),
		workers:   workers,
		logger:    logger,
	}
}

// WithMetrics exports pool activity to Prometheus.
func (p *WorkerPool) WithMetrics(m *Metrics) *WorkerPool {
	p.prom = m
	return p
}

// Start initializes and starts all worker goroutines. Calling it on a
// running pool is a no-op.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.started = true

	p.logger.Info("starting worker pool",
		logger.Field{Key: "workers", Value: p.workers},
		logger.Field{Key: "buffer_size", Value: cap(p.taskQueue)})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(p.ctx, i)
	}
}

// Submit queues a task for execution. It blocks while the queue is full and
// fails with ErrPoolStopped once the pool is not running.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	started, ctx := p.started, p.ctx
	p.mu.RUnlock()

	if !started {
		return ErrPoolStopped
	}
	return p.enqueue(ctx, ctx, task)
}

// SubmitWithContext is Submit bounded by ctx.
func (p *WorkerPool) SubmitWithContext(ctx context.Context, task Task) error {
	p.mu.RLock()
	started, poolCtx := p.started, p.ctx
	p.mu.RUnlock()

	if !started {
		return ErrPoolStopped
	}
	return p.enqueue(ctx, poolCtx, task)
}

func (p *WorkerPool) enqueue(ctx, poolCtx context.Context, task Task) error {
	select {
	case p.taskQueue <- task:
	case <-poolCtx.Done():
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	p.metrics.TasksSubmitted++
	p.mu.Unlock()
	p.prom.submitted(task.Type)
	p.prom.setQueueDepth(len(p.taskQueue))

	p.logger.DebugCtx(ctx, "task submitted",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "task_type", Value: task.Type})
	return nil
}

// Results returns a read-only channel for receiving task results. Results
// are dropped when nobody keeps up with the channel.
func (p *WorkerPool) Results() <-chan Result {
	return p.resultCh
}

// Stop stops the workers and waits for tasks already running to finish.
// Tasks still queued are discarded. The pool can be started again.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.started = false
	p.mu.Unlock()

	p.wg.Wait()

	discarded := 0
drain:
	for {
		select {
		case <-p.taskQueue:
			discarded++
		default:
			break drain
		}
	}
	p.prom.setQueueDepth(0)

	metrics := p.Metrics()
	p.logger.Info("worker pool stopped",
		logger.Field{Key: "tasks_submitted", Value: metrics.TasksSubmitted},
		logger.Field{Key: "tasks_completed", Value: metrics.TasksCompleted},
		logger.Field{Key: "tasks_failed", Value: metrics.TasksFailed},
		logger.Field{Key: "tasks_discarded", Value: discarded})
}

// WorkerCount returns the number of workers.
func (p *WorkerPool) WorkerCount() int {
	return p.workers
}

// QueueSize returns the current number of tasks waiting in the queue.
func (p *WorkerPool) QueueSize() int {
	return len(p.taskQueue)
}
