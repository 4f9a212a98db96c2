package cron

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vultr740-byte/openclaw/internal/logger"
)

const (
	// CronSubdirectory is the subdirectory for cron state within the workspace.
	CronSubdirectory = "cron"

	// JobsFilename is the store file name.
	JobsFilename = "jobs.json"
)

// DefaultStorePath returns <workspace>/cron/jobs.json.
func DefaultStorePath(workspacePath string) string {
	return filepath.Join(workspacePath, CronSubdirectory, JobsFilename)
}

// Store is the file-backed job collection. It does no locking of its own:
// the owning Service serialises every call.
//
// Mutations are staged on a copy of the job slice and handed to Commit. The
// copy replaces the in-memory collection only after the file write
// succeeded, so a failed write leaves memory and disk in agreement.
type Store struct {
	path    string
	logger  *logger.Logger
	jobs    []Job
	modTime time.Time
	size    int64
}

// NewStore creates a store backed by path. Nothing is read until Load.
// The parent directory is created on the first Save.
//
// Parameters:
//   - path: Full path to the JSON store file
//   - log: Logger for load and save operations
//
// Returns:
//   - *Store: An empty store ready for Load
func NewStore(path string, log *logger.Logger) *Store {
	return &Store{
		path:   path,
		logger: log,
	}
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the store file. A missing file yields an empty store.
func (s *Store) Load() error {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.jobs = nil
		s.modTime = time.Time{}
		s.size = 0
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "stat", Path: s.path, Err: err}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return &PersistenceError{Op: "read", Path: s.path, Err: err}
	}

	jobs, err := decodeStore(data)
	if err != nil {
		return &PersistenceError{Op: "decode", Path: s.path, Err: err}
	}

	s.jobs = s.dedupe(jobs)
	s.modTime = info.ModTime()
	s.size = info.Size()

	s.logger.Debug("cron store loaded",
		logger.Field{Key: "file", Value: s.path},
		logger.Field{Key: "jobs", Value: len(s.jobs)})
	return nil
}

// ReloadIfChanged re-reads the file when another process rewrote it since
// the last Load or Commit.
func (s *Store) ReloadIfChanged() (bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if s.modTime.IsZero() {
			return false, nil
		}
		return true, s.Load()
	}
	if err != nil {
		return false, &PersistenceError{Op: "stat", Path: s.path, Err: err}
	}
	if info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return false, nil
	}
	return true, s.Load()
}

// Jobs returns the live job slice. Callers must not modify it; stage
// changes with Snapshot and Commit.
func (s *Store) Jobs() []Job {
	return s.jobs
}

// Snapshot returns a deep copy of the collection for staging a mutation.
func (s *Store) Snapshot() []Job {
	out := make([]Job, len(s.jobs))
	for i := range s.jobs {
		out[i] = s.jobs[i].Clone()
	}
	return out
}

// Find returns the index of id, or -1.
func (s *Store) Find(id string) int {
	return indexOf(s.jobs, id)
}

// Commit atomically writes jobs and, on success, makes them the in-memory
// collection.
func (s *Store) Commit(jobs []Job) error {
	if err := s.write(jobs); err != nil {
		return err
	}
	s.jobs = jobs
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
		s.size = info.Size()
	}
	return nil
}

func (s *Store) write(jobs []Job) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}

	if jobs == nil {
		jobs = []Job{}
	}
	data, err := json.MarshalIndent(StoreFile{Version: StoreVersion, Jobs: jobs}, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Op: "create", Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		cleanup()
		return &PersistenceError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return &PersistenceError{Op: "sync", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &PersistenceError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return &PersistenceError{Op: "rename", Path: s.path, Err: err}
	}

	s.logger.Debug("cron store saved",
		logger.Field{Key: "file", Value: s.path},
		logger.Field{Key: "jobs", Value: len(jobs)})
	return nil
}

func decodeStore(data []byte) ([]Job, error) {
	var file StoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	// Files written before versioning carry no version field.
	if file.Version != 0 && file.Version != StoreVersion {
		return nil, fmt.Errorf("unsupported store version %d", file.Version)
	}
	return file.Jobs, nil
}

func (s *Store) dedupe(jobs []Job) []Job {
	seen := make(map[string]struct{}, len(jobs))
	out := jobs[:0]
	for _, job := range jobs {
		if job.ID == "" {
			s.logger.Warn("dropping stored job without id",
				logger.Field{Key: "name", Value: job.Name})
			continue
		}
		if _, dup := seen[job.ID]; dup {
			s.logger.Warn("dropping duplicate stored job",
				logger.Field{Key: "job_id", Value: job.ID})
			continue
		}
		seen[job.ID] = struct{}{}
		out = append(out, job)
	}
	return out
}

func indexOf(jobs []Job, id string) int {
	for i := range jobs {
		if jobs[i].ID == id {
			return i
		}
	}
	return -1
}
