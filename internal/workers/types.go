// Package workers provides an async worker pool for background task execution.
// Tasks carry their own run function; the pool adds panic recovery, metrics
// and a result channel for monitoring.
package workers

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPoolStopped is returned when submitting to a pool that is not running.
	ErrPoolStopped = errors.New("worker pool is stopped")
	// ErrNoRunner is the result error of a task submitted without Run.
	ErrNoRunner = errors.New("task has no run function")
)

// Task represents a unit of work to be executed by a worker.
type Task struct {
	ID      string                          // Unique task identifier
	Type    string                          // Task type, e.g. "cron"
	Context context.Context                 // Task-specific context; the pool context is used when nil
	Run     func(ctx context.Context) error // Work to perform
}

// Result represents the outcome of a task execution.
type Result struct {
	TaskID   string
	Type     string
	Error    error
	Duration time.Duration
}

// PoolMetrics tracks execution metrics for the worker pool.
type PoolMetrics struct {
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksFailed    uint64
	TotalDuration  time.Duration
}

// Constants for worker pool configuration
const (
	DefaultPoolSize  = 4
	DefaultQueueSize = 64
)
