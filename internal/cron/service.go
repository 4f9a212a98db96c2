package cron

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vultr740-byte/openclaw/internal/logger"
)

const (
	// DefaultTick is the timer period when Options.Tick is unset.
	DefaultTick = 5 * time.Second

	// DefaultMainSessionKey keys system events for the main conversation.
	DefaultMainSessionKey = "main"
)

// Options configures a Service.
type Options struct {
	// StorePath is the store file, usually DefaultStorePath(workspace).
	StorePath string
	// Enabled gates the timer only; Add, List, Run and Remove always work.
	Enabled bool
	// Tick is how often the timer evaluates jobs. Values under one second
	// are rounded up by the timer.
	Tick time.Duration
	// MainSessionKey is passed with every enqueued system event.
	MainSessionKey string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service is the scheduler facade. One mutex guards the store, the
// in-flight set and every (mutate, persist) section; it is never held
// while a payload or a delivery is running.
type Service struct {
	opts   Options
	deps   Deps
	logger *logger.Logger

	mu       sync.Mutex
	store    *Store
	loaded   bool
	inFlight map[string]int64 // job id -> start ms
	cron     *cron.Cron
	runCtx   context.Context
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Enabled      bool   `json:"enabled"`
	Running      bool   `json:"running"`
	StorePath    string `json:"storePath"`
	Jobs         int    `json:"jobs"`
	InFlight     int    `json:"inFlight"`
	NextWakeAtMs *int64 `json:"nextWakeAtMs,omitempty"`
}

// New creates a Service. Nothing is read from disk until the first call,
// and the timer is not armed until Start.
//
// Parameters:
//   - opts: Store path, enabled flag, tick and clock. Zero values take
//     DefaultTick, DefaultMainSessionKey and time.Now.
//   - deps: Collaborators; a nil Pool runs due jobs inline on the tick
//   - log: Logger for scheduler events (nil discards)
//
// Returns:
//   - *Service: A scheduler ready for Start or direct calls
func New(opts Options, deps Deps, log *logger.Logger) *Service {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.MainSessionKey == "" {
		opts.MainSessionKey = DefaultMainSessionKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Field{Key: "component", Value: "cron"})
	return &Service{
		opts:     opts,
		deps:     deps,
		logger:   log,
		store:    NewStore(opts.StorePath, log),
		inFlight: make(map[string]int64),
	}
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}

// syncLocked loads the store on first use and picks up edits made by other
// processes afterwards. Callers hold s.mu.
func (s *Service) syncLocked() error {
	if !s.loaded {
		if err := s.store.Load(); err != nil {
			return err
		}
		s.loaded = true
		s.deps.Metrics.setJobs(len(s.store.Jobs()))
		return nil
	}
	changed, err := s.store.ReloadIfChanged()
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info("cron store changed on disk, reloaded",
			logger.Field{Key: "jobs", Value: len(s.store.Jobs())})
		s.deps.Metrics.setJobs(len(s.store.Jobs()))
	}
	return nil
}

// Add validates in, assigns id and timestamps, and persists the new job
// before returning it.
func (s *Service) Add(ctx context.Context, in JobCreate) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return Job{}, err
	}
	job, err := newJob(in, s.now().UnixMilli())
	if err != nil {
		return Job{}, err
	}

	jobs := append(s.store.Snapshot(), job)
	if err := s.store.Commit(jobs); err != nil {
		return Job{}, err
	}
	s.deps.Metrics.setJobs(len(jobs))

	s.logger.InfoCtx(ctx, "cron job added",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "name", Value: job.Name},
		logger.Field{Key: "schedule", Value: job.Schedule.Kind},
		logger.Field{Key: "payload", Value: job.Payload.Kind},
		logger.Field{Key: "followup", Value: job.IsFollowup()})
	return job.Clone(), nil
}

// List returns jobs in stored order, enabled ones only unless
// IncludeDisabled is set.
func (s *Service) List(opts ListOptions) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return nil, err
	}
	out := make([]Job, 0, len(s.store.Jobs()))
	for _, job := range s.store.Jobs() {
		if !job.Enabled && !opts.IncludeDisabled {
			continue
		}
		out = append(out, s.view(job))
	}
	return out, nil
}

// Get returns one job by id.
func (s *Service) Get(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return Job{}, err
	}
	idx := s.store.Find(id)
	if idx < 0 {
		return Job{}, &NotFoundError{ID: id}
	}
	return s.view(s.store.Jobs()[idx]), nil
}

// view copies a stored job and fills in the in-memory running marker.
func (s *Service) view(job Job) Job {
	out := job.Clone()
	if started, ok := s.inFlight[job.ID]; ok {
		out.State.RunningAtMs = int64Ptr(started)
	}
	return out
}

// Run executes a job now. RunModeForce ignores the due time and the
// enabled flag but still honours followup expiry; RunModeDueOnly runs only
// an enabled, due job. Legitimate no-ops are reported in the result.
func (s *Service) Run(ctx context.Context, id string, mode RunMode) (RunResult, error) {
	if mode == "" {
		mode = RunModeForce
	}
	if mode != RunModeForce && mode != RunModeDueOnly {
		return RunResult{}, &ValidationError{Field: "mode", Reason: "must be force or due-only"}
	}

	s.mu.Lock()
	if err := s.syncLocked(); err != nil {
		s.mu.Unlock()
		return RunResult{}, err
	}
	idx := s.store.Find(id)
	if idx < 0 {
		s.mu.Unlock()
		return RunResult{}, &NotFoundError{ID: id}
	}
	job := s.store.Jobs()[idx].Clone()
	if _, busy := s.inFlight[id]; busy {
		s.mu.Unlock()
		return RunResult{OK: true, Ran: false, Reason: ReasonAlreadyRunning}, nil
	}
	nowMs := s.now().UnixMilli()
	if mode == RunModeDueOnly && !job.Followup.Expired(nowMs) && !(job.Enabled && IsDue(&job, nowMs)) {
		s.mu.Unlock()
		return notDue(), nil
	}
	s.markInFlightLocked(id, nowMs)
	s.mu.Unlock()

	defer s.clearInFlight(id)
	return s.execute(ctx, job, nowMs)
}

// Remove deletes a job by id.
func (s *Service) Remove(ctx context.Context, id string) (RemoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return RemoveResult{}, err
	}
	removed, err := s.removeLocked(id)
	if err != nil {
		return RemoveResult{}, err
	}
	if !removed {
		return RemoveResult{}, &NotFoundError{ID: id}
	}
	s.logger.InfoCtx(ctx, "cron job removed", logger.Field{Key: "job_id", Value: id})
	return RemoveResult{Removed: true}, nil
}

// removeJob deletes id on behalf of the executor.
func (s *Service) removeJob(id, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return false, err
	}
	removed, err := s.removeLocked(id)
	if err != nil || !removed {
		return removed, err
	}
	s.deps.Metrics.followupRemoved(reason)
	return true, nil
}

func (s *Service) removeLocked(id string) (bool, error) {
	jobs := s.store.Snapshot()
	idx := indexOf(jobs, id)
	if idx < 0 {
		return false, nil
	}
	jobs = append(jobs[:idx], jobs[idx+1:]...)
	if err := s.store.Commit(jobs); err != nil {
		return false, err
	}
	s.deps.Metrics.setJobs(len(jobs))
	return true, nil
}

// Status reports scheduler state for diagnostics.
func (s *Service) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return Status{}, err
	}
	st := Status{
		Enabled:   s.opts.Enabled,
		Running:   s.cron != nil,
		StorePath: s.store.Path(),
		Jobs:      len(s.store.Jobs()),
		InFlight:  len(s.inFlight),
	}
	for i := range s.store.Jobs() {
		job := &s.store.Jobs()[i]
		if !job.Enabled {
			continue
		}
		if next, ok := nextRunAt(job); ok && (st.NextWakeAtMs == nil || next < *st.NextWakeAtMs) {
			st.NextWakeAtMs = int64Ptr(next)
		}
	}
	return st, nil
}

func (s *Service) markInFlightLocked(id string, nowMs int64) {
	s.inFlight[id] = nowMs
	s.deps.Metrics.setInFlight(len(s.inFlight))
}

func (s *Service) clearInFlight(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
	s.deps.Metrics.setInFlight(len(s.inFlight))
}
