// Package jobs contains implementations of scheduled jobs for the dojang exam hub.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/application/saga"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE GRADUATIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileGraduationsJob re-drives pending graduations whose belt cascade
// never completed, typically after a crash between graduation creation and
// approval. The approve transition is idempotent, so running this job against
// a healthy system is a cheap no-op.
type ReconcileGraduationsJob struct {
	// Dependencies
	processor *saga.GraduationProcessor
	logger    *slog.Logger

	// Configuration
	config ReconcileGraduationsConfig

	// State
	lastRunStats atomic.Value // *ReconcileGraduationsStats
}

// ReconcileGraduationsConfig contains configuration for the reconciliation job.
type ReconcileGraduationsConfig struct {
	// ApprovedBy is recorded as the approver on re-driven graduations.
	ApprovedBy shared.StaffID

	// BatchLimit is the maximum stuck graduations processed per run.
	BatchLimit int

	// Timeout is the maximum duration for the job.
	Timeout time.Duration

	// MaxAttempts is how many times a run is retried on transient failure.
	MaxAttempts int
}

// DefaultReconcileGraduationsConfig returns sensible defaults.
func DefaultReconcileGraduationsConfig() ReconcileGraduationsConfig {
	return ReconcileGraduationsConfig{
		ApprovedBy:  "system:reconciliation",
		BatchLimit:  50,
		Timeout:     2 * time.Minute,
		MaxAttempts: 3,
	}
}

// ReconcileGraduationsStats contains statistics from a reconciliation run.
type ReconcileGraduationsStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Examined    int
	Applied     int
	Failed      int
}

// NewReconcileGraduationsJob creates a new reconciliation job.
func NewReconcileGraduationsJob(
	processor *saga.GraduationProcessor,
	config ReconcileGraduationsConfig,
	logger *slog.Logger,
) *ReconcileGraduationsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = 50
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}

	return &ReconcileGraduationsJob{
		processor: processor,
		config:    config,
		logger:    logger.With("job", "reconcile_graduations"),
	}
}

// Name returns the unique name of the job.
func (j *ReconcileGraduationsJob) Name() string {
	return "reconcile_graduations"
}

// Description returns a human-readable description of the job.
func (j *ReconcileGraduationsJob) Description() string {
	return "Re-drives pending graduations whose belt cascade never completed"
}

// Run executes the reconciliation.
func (j *ReconcileGraduationsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &ReconcileGraduationsStats{StartedAt: time.Now().UTC()}

	result, err := retry.DoWithData(ctx, func(ctx context.Context) (*saga.ReconcileResult, error) {
		return j.processor.ReconcilePending(ctx, j.config.ApprovedBy, j.config.BatchLimit)
	},
		retry.WithMaxAttempts(j.config.MaxAttempts),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			j.logger.Warn("reconciliation attempt failed, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("reconcile graduations: %w", err)
	}

	stats.CompletedAt = time.Now().UTC()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	stats.Examined = result.Examined
	stats.Applied = result.Applied
	stats.Failed = len(result.Failed)
	j.lastRunStats.Store(stats)

	// Per-record failures stay pending and will be re-examined next run.
	for _, failure := range result.Failed {
		j.logger.Warn("graduation cascade re-drive failed",
			"student_id", failure.StudentID,
			"reason", failure.Reason)
	}

	j.logger.Info("reconciliation run completed",
		"examined", result.Examined,
		"applied", result.Applied,
		"failed", len(result.Failed),
		"duration", stats.Duration)

	return nil
}

// LastRunStats returns statistics from the most recent run, or nil.
func (j *ReconcileGraduationsJob) LastRunStats() *ReconcileGraduationsStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*ReconcileGraduationsStats)
	}
	return nil
}
