package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts its own executions" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func newTestScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRegisterValidation(t *testing.T) {
	s := newTestScheduler()

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&countingJob{name: "a"}, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)
}

func TestRunNowExecutesOutOfSchedule(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "reconcile"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.RunNow(context.Background(), "reconcile"))
	assert.Equal(t, int64(1), job.runs.Load())

	assert.ErrorIs(t, s.RunNow(context.Background(), "unknown"), ErrJobNotFound)
}

func TestRunNowReportsJobError(t *testing.T) {
	s := newTestScheduler()
	errJob := errors.New("cascade incomplete")
	job := &countingJob{name: "failing", err: errJob}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	assert.ErrorIs(t, s.RunNow(context.Background(), "failing"), errJob)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1), infos[0].RunCount)
	assert.Equal(t, int64(1), infos[0].FailCount)
}

func TestDisabledJobIsNotScheduled(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "paused"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))
	require.NoError(t, s.DisableJob("paused"))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(1500 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, int64(0), job.runs.Load())

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.False(t, infos[0].Enabled)
}

func TestStartStopLifecycle(t *testing.T) {
	s := newTestScheduler()

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())

	// A stopped scheduler can be started again.
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestIntervalScheduleNext(t *testing.T) {
	sched := NewIntervalSchedule(10 * time.Minute)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, at.Add(10*time.Minute), sched.Next(at))
	assert.Equal(t, "@every 10m0s", sched.String())
}
