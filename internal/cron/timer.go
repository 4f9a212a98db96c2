package cron

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/vultr740-byte/openclaw/internal/logger"
)

// Start arms the timer when the service is enabled. It is idempotent.
// Executions started by the timer run on a context detached from ctx's
// cancellation, so stopping never aborts an in-flight job.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}
	if !s.opts.Enabled {
		s.logger.Info("cron scheduler disabled, timer not armed")
		return nil
	}
	if err := s.syncLocked(); err != nil {
		return err
	}

	cl := cronLogger{log: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(cron.Every(s.opts.Tick), cron.FuncJob(s.tick))

	s.runCtx = context.WithoutCancel(ctx)
	s.cron = c
	c.Start()

	s.logger.Info("cron scheduler started",
		logger.Field{Key: "tick", Value: s.opts.Tick.String()},
		logger.Field{Key: "jobs", Value: len(s.store.Jobs())},
		logger.Field{Key: "store", Value: s.store.Path()})
	return nil
}

// Stop disarms the timer. It is idempotent and does not wait for, or
// cancel, executions already in flight.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	s.cron.Stop()
	s.cron = nil
	s.logger.Info("cron scheduler stopped",
		logger.Field{Key: "in_flight", Value: len(s.inFlight)})
	return nil
}

// tick evaluates enabled jobs in stored order. Due jobs are marked in
// flight before the lock is released so the next tick skips them.
func (s *Service) tick() {
	now := s.now()
	nowMs := now.UnixMilli()

	s.mu.Lock()
	if err := s.syncLocked(); err != nil {
		s.logger.Error("cron store reload failed, using in-memory jobs", err)
	}
	var due []Job
	for i := range s.store.Jobs() {
		job := &s.store.Jobs()[i]
		if !job.Enabled {
			continue
		}
		if _, busy := s.inFlight[job.ID]; busy {
			continue
		}
		if job.Followup.Expired(nowMs) || IsDue(job, nowMs) {
			due = append(due, job.Clone())
			s.markInFlightLocked(job.ID, nowMs)
		}
	}
	ctx := s.runCtx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	for _, job := range due {
		s.dispatchDue(ctx, job, nowMs)
	}
}

// dispatchDue hands one due job to the pool, or runs it inline when no pool
// is configured. Either way the in-flight mark is cleared when it finishes.
func (s *Service) dispatchDue(ctx context.Context, job Job, nowMs int64) {
	run := func(ctx context.Context) {
		defer s.clearInFlight(job.ID)
		// Jobs run inline share the tick; a panic must not skip the rest.
		defer func() {
			if r := recover(); r != nil {
				s.logger.ErrorCtx(ctx, "cron job panicked", fmt.Errorf("panic: %v", r),
					logger.Field{Key: "job_id", Value: job.ID})
			}
		}()
		if _, err := s.execute(ctx, job, nowMs); err != nil {
			s.logger.ErrorCtx(ctx, "cron job execution not recorded", err,
				logger.Field{Key: "job_id", Value: job.ID})
		}
	}

	if s.deps.Pool == nil {
		run(ctx)
		return
	}
	err := s.deps.Pool.Submit(Task{
		ID:      fmt.Sprintf("cron_%s_%d", job.ID, nowMs),
		Type:    TaskTypeCron,
		Run:     run,
		Context: ctx,
	})
	if err != nil {
		s.clearInFlight(job.ID)
		s.logger.ErrorCtx(ctx, "cron job not dispatched", err,
			logger.Field{Key: "job_id", Value: job.ID})
	}
}

// cronLogger routes robfig/cron's logging through the application logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("timer: "+msg, toFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("timer: "+msg, err, toFields(keysAndValues)...)
}

func toFields(keysAndValues []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logger.Field{Key: fmt.Sprint(keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}
