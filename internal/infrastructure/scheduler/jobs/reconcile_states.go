package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telar-hub/progression-engine/internal/application/command"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE STATES JOB
// ══════════════════════════════════════════════════════════════════════════════

// Reconciler runs the state reconciliation sweep for one user. Implemented
// by the progression engine.
type Reconciler interface {
	ReconcileState(ctx context.Context, cmd command.ReconcileStateCommand) (*command.ReconcileStateResult, error)
}

// ReconcileStatesJob sweeps every user and auto-completes tasks whose
// completion condition is already satisfied by the recorded facts. It is
// the safety net for fact reports that arrived while task predicates were
// evaluated against older catalog revisions.
type ReconcileStatesJob struct {
	lister     UserLister
	reconciler Reconciler
	logger     *slog.Logger
	config     ReconcileStatesConfig

	lastStats atomic.Value // *ReconcileStats
}

// ReconcileStatesConfig contains configuration for the sweep.
type ReconcileStatesConfig struct {
	// Concurrency is the number of users processed in parallel.
	Concurrency int

	// Timeout is the maximum duration for the entire sweep.
	Timeout time.Duration
}

// DefaultReconcileStatesConfig returns sensible defaults.
func DefaultReconcileStatesConfig() ReconcileStatesConfig {
	return ReconcileStatesConfig{
		Concurrency: 5,
		Timeout:     10 * time.Minute,
	}
}

// ReconcileStats contains statistics from a sweep.
type ReconcileStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	TotalUsers    int
	AutoCompleted int64
	FailedUsers   int64
}

// NewReconcileStatesJob creates a new reconciliation sweep job.
func NewReconcileStatesJob(
	lister UserLister,
	reconciler Reconciler,
	logger *slog.Logger,
	config ReconcileStatesConfig,
) *ReconcileStatesJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultReconcileStatesConfig().Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultReconcileStatesConfig().Timeout
	}

	return &ReconcileStatesJob{
		lister:     lister,
		reconciler: reconciler,
		logger:     logger,
		config:     config,
	}
}

// Name returns the job name.
func (j *ReconcileStatesJob) Name() string {
	return "reconcile_states"
}

// Description returns a human-readable description.
func (j *ReconcileStatesJob) Description() string {
	return "Auto-completes tasks whose conditions are already met by recorded facts"
}

// Run executes the sweep for all users.
func (j *ReconcileStatesJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &ReconcileStats{StartedAt: time.Now()}

	userIDs, err := j.lister.ListUserIDs(ctx)
	if err != nil {
		return err
	}
	stats.TotalUsers = len(userIDs)

	sem := make(chan struct{}, j.config.Concurrency)
	var wg sync.WaitGroup

	for _, userID := range userIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(userID shared.UserID) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := j.reconciler.ReconcileState(ctx, command.ReconcileStateCommand{
				UserID:    userID,
				Timestamp: time.Now().UTC(),
			})
			if err != nil {
				atomic.AddInt64(&stats.FailedUsers, 1)
				j.logger.Error("failed to reconcile state", "user_id", userID, "error", err)
				return
			}

			if n := len(result.AutoCompleted); n > 0 {
				atomic.AddInt64(&stats.AutoCompleted, int64(n))
				j.logger.Info("auto-completed tasks",
					"user_id", userID,
					"tasks", result.AutoCompleted,
				)
			}
		}(userID)
	}

	wg.Wait()

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastStats.Store(stats)

	j.logger.Info("reconciliation sweep completed",
		"users", stats.TotalUsers,
		"auto_completed", atomic.LoadInt64(&stats.AutoCompleted),
		"failed", atomic.LoadInt64(&stats.FailedUsers),
		"duration", stats.Duration.String(),
	)

	return nil
}

// LastStats returns statistics from the most recent sweep, or nil.
func (j *ReconcileStatesJob) LastStats() *ReconcileStats {
	if v := j.lastStats.Load(); v != nil {
		return v.(*ReconcileStats)
	}
	return nil
}
