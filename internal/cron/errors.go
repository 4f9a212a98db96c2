package cron

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by *NotFoundError through errors.Is.
var ErrNotFound = errors.New("cron job not found")

// ValidationError rejects a malformed job at Add time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job: %s: %s", e.Field, e.Reason)
}

// NotFoundError is returned by Run, Get and Remove for an unknown id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cron job not found: %s", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ExecutionError wraps a runner failure or timeout for one job. It is
// recorded in the job state and never aborts the tick.
type ExecutionError struct {
	JobID string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("job %s execution failed: %v", e.JobID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// PersistenceError reports an unreadable or unwritable store file. The
// in-memory store is left as it was before the failed call.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cron store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
