// Package scheduler runs the worker's periodic jobs, such as re-driving
// graduations whose belt cascade did not finish.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of periodic work.
type Job interface {
	// Name uniquely identifies the job within a scheduler.
	Name() string

	// Run executes the job. The context is cancelled on shutdown.
	Run(ctx context.Context) error

	// Description is shown in job listings and logs.
	Description() string
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the first run time strictly after t.
	Next(t time.Time) time.Time

	String() string
}

// IntervalSchedule runs a job at a fixed interval, measured from the
// start of the previous run.
type IntervalSchedule struct {
	Interval time.Duration
}

func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

var (
	ErrNilJob                  = fmt.Errorf("job cannot be nil")
	ErrNilSchedule             = fmt.Errorf("schedule cannot be nil")
	ErrJobAlreadyExists        = fmt.Errorf("job already exists")
	ErrJobNotFound             = fmt.Errorf("job not found")
	ErrSchedulerAlreadyRunning = fmt.Errorf("scheduler is already running")
	ErrSchedulerNotRunning     = fmt.Errorf("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler ticks once a second and starts every enabled job whose next
// run time has passed. Jobs run concurrently; Stop waits for them.
type Scheduler struct {
	mu sync.RWMutex

	logger   *slog.Logger
	timezone *time.Location

	jobs    map[string]*jobState
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type jobState struct {
	job       Job
	schedule  Schedule
	enabled   bool
	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
	lastErr   error
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone used for schedule arithmetic. Defaults to UTC.
	Timezone *time.Location
}

// DefaultSchedulerConfig returns the worker's default configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:   slog.Default(),
		Timezone: time.UTC,
	}
}

// NewScheduler creates a scheduler with no jobs registered.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}

	return &Scheduler{
		logger:   cfg.Logger,
		timezone: cfg.Timezone,
		jobs:     make(map[string]*jobState),
	}
}

// Register adds a job. The first run is scheduled from the current time.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	st := &jobState{
		job:      job,
		schedule: schedule,
		enabled:  true,
		nextRun:  schedule.Next(time.Now().In(s.timezone)),
	}
	s.jobs[name] = st

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"schedule", schedule.String(),
		"next_run", st.nextRun.Format(time.RFC3339),
	)

	return nil
}

// EnableJob re-enables a disabled job and reschedules it from now.
func (s *Scheduler) EnableJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	st.enabled = true
	st.nextRun = st.schedule.Next(time.Now().In(s.timezone))
	return nil
}

// DisableJob keeps the job registered but stops scheduling it.
func (s *Scheduler) DisableJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	st.enabled = false
	return nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs", len(s.jobs))

	s.wg.Add(1)
	go s.loop()

	return nil
}

// Stop cancels the loop and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.kickDueJobs()
		}
	}
}

func (s *Scheduler) kickDueJobs() {
	now := time.Now().In(s.timezone)

	s.mu.Lock()
	var due []*jobState
	for _, st := range s.jobs {
		if st.enabled && now.After(st.nextRun) {
			// Reschedule before running so a slow job cannot pile up
			// overlapping executions of itself.
			st.lastRun = now
			st.nextRun = st.schedule.Next(now)
			st.runCount++
			due = append(due, st)
		}
	}
	s.mu.Unlock()

	for _, st := range due {
		s.wg.Add(1)
		go func(st *jobState) {
			defer s.wg.Done()
			s.execute(s.ctx, st)
		}(st)
	}
}

func (s *Scheduler) execute(ctx context.Context, st *jobState) {
	name := st.job.Name()
	start := time.Now()

	s.logger.Info("job started", "job", name)

	err := st.job.Run(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	st.lastErr = err
	if err != nil {
		st.failCount++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", elapsed.String(), "error", err)
		return
	}
	s.logger.Info("job completed", "job", name, "duration", elapsed.String())
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	st, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.mu.Lock()
	st.lastRun = time.Now()
	st.runCount++
	s.mu.Unlock()

	s.execute(ctx, st)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return st.lastErr
}

// JobInfo describes a registered job for listings and health output.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
}

// ListJobs returns a snapshot of all registered jobs.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, st := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: st.job.Description(),
			Enabled:     st.enabled,
			Schedule:    st.schedule.String(),
			LastRun:     st.lastRun,
			NextRun:     st.nextRun,
			RunCount:    st.runCount,
			FailCount:   st.failCount,
		})
	}

	return infos
}
