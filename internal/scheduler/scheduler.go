// Package scheduler runs the periodic learning and labelling batches inside
// the server process.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is one batch run.
type JobFunc func(ctx context.Context) error

// JobStatus describes a registered job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRunAt time.Time `json:"next_run_at,omitempty"`
}

type job struct {
	name     string
	schedule string
	fn       JobFunc
	entryID  cron.EntryID
	running  bool
	runs     int
	lastRun  time.Time
	lastErr  string
}

// Scheduler wraps a cron runner. A job never overlaps with itself: a tick
// that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]*job

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler using standard five-field cron specs plus
// descriptors such as "@every 1h".
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		logger: logger,
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers fn under name. Names are unique.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	j := &job{name: name, schedule: spec, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { s.execute(j) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", spec, name, err)
	}
	j.entryID = id
	s.jobs[name] = j
	return nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop stops the cron runner, cancels running jobs and waits up to timeout
// for them to return.
func (s *Scheduler) Stop(timeout time.Duration) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-time.After(timeout):
		s.logger.Warn("scheduler stop timed out")
	}
	s.logger.Info("scheduler stopped")
}

// RunNow runs the named job synchronously. It returns false when the job is
// unknown or already running.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.execute(j)
}

// Status lists registered jobs sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{
			Name:      j.name,
			Schedule:  j.schedule,
			Running:   j.running,
			Runs:      j.runs,
			LastRunAt: j.lastRun,
			LastError: j.lastErr,
		}
		if e := s.cron.Entry(j.entryID); e.Valid() {
			st.NextRunAt = e.Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (s *Scheduler) execute(j *job) bool {
	s.mu.Lock()
	if j.running {
		s.mu.Unlock()
		s.logger.Warn("skipping job, previous run still active", zap.String("job", j.name))
		return false
	}
	j.running = true
	s.mu.Unlock()

	start := time.Now()
	err := s.safeRun(j)
	elapsed := time.Since(start)

	s.mu.Lock()
	j.running = false
	j.runs++
	j.lastRun = start
	j.lastErr = ""
	if err != nil {
		j.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", j.name), zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		s.logger.Info("scheduled job finished", zap.String("job", j.name), zap.Duration("elapsed", elapsed))
	}
	return true
}

func (s *Scheduler) safeRun(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.fn(s.ctx)
}
