// Package jobs contains implementations of scheduled jobs for the
// progression engine: the nightly history snapshot and the periodic
// state reconciliation sweep.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD HISTORY JOB
// ══════════════════════════════════════════════════════════════════════════════

// UserLister enumerates the users known to the engine. Implemented by the
// postgres state repository.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]shared.UserID, error)
}

// RecordHistoryJob writes one progress history row per user and milestone
// for the current UTC day. The repository is first-write-wins, so running
// the job twice in a day is harmless.
type RecordHistoryJob struct {
	lister       UserLister
	progressRepo milestone.ProgressRepository
	historyRepo  milestone.HistoryRepository
	logger       *slog.Logger
	config       RecordHistoryConfig

	lastStats atomic.Value // *HistoryStats
}

// RecordHistoryConfig contains configuration for the history job.
type RecordHistoryConfig struct {
	// Concurrency is the number of users processed in parallel.
	Concurrency int

	// Timeout is the maximum duration for the entire run.
	Timeout time.Duration
}

// DefaultRecordHistoryConfig returns sensible defaults.
func DefaultRecordHistoryConfig() RecordHistoryConfig {
	return RecordHistoryConfig{
		Concurrency: 5,
		Timeout:     10 * time.Minute,
	}
}

// HistoryStats contains statistics from a history run.
type HistoryStats struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	TotalUsers   int
	RecordedRows int64
	SkippedUsers int64
	FailedUsers  int64
}

// NewRecordHistoryJob creates a new history snapshot job.
func NewRecordHistoryJob(
	lister UserLister,
	progressRepo milestone.ProgressRepository,
	historyRepo milestone.HistoryRepository,
	logger *slog.Logger,
	config RecordHistoryConfig,
) *RecordHistoryJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultRecordHistoryConfig().Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRecordHistoryConfig().Timeout
	}

	return &RecordHistoryJob{
		lister:       lister,
		progressRepo: progressRepo,
		historyRepo:  historyRepo,
		logger:       logger,
		config:       config,
	}
}

// Name returns the job name.
func (j *RecordHistoryJob) Name() string {
	return "record_history"
}

// Description returns a human-readable description.
func (j *RecordHistoryJob) Description() string {
	return "Writes daily per-milestone progress snapshots for every user"
}

// Run executes the snapshot for all users.
func (j *RecordHistoryJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &HistoryStats{StartedAt: time.Now()}

	userIDs, err := j.lister.ListUserIDs(ctx)
	if err != nil {
		return err
	}
	stats.TotalUsers = len(userIDs)

	day := timeutil.UTCDay(time.Now())
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

			j.recordUser(ctx, userID, day, stats)
		}(userID)
	}

	wg.Wait()

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastStats.Store(stats)

	j.logger.Info("history snapshot completed",
		"users", stats.TotalUsers,
		"rows", atomic.LoadInt64(&stats.RecordedRows),
		"skipped", atomic.LoadInt64(&stats.SkippedUsers),
		"failed", atomic.LoadInt64(&stats.FailedUsers),
		"duration", stats.Duration.String(),
	)

	return nil
}

// recordUser snapshots one user's vector.
func (j *RecordHistoryJob) recordUser(ctx context.Context, userID shared.UserID, day time.Time, stats *HistoryStats) {
	vector, err := j.progressRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Never recomputed, nothing to snapshot.
			atomic.AddInt64(&stats.SkippedUsers, 1)
			return
		}
		atomic.AddInt64(&stats.FailedUsers, 1)
		j.logger.Error("failed to load vector for snapshot", "user_id", userID, "error", err)
		return
	}

	now := time.Now().UTC()
	for _, p := range vector {
		record := milestone.HistoryRecord{
			ID:             uuid.NewString(),
			UserID:         userID,
			MilestoneID:    p.MilestoneID,
			Day:            day,
			Progress:       p.Progress,
			TasksCompleted: p.TasksCompleted,
			TotalTasks:     p.TotalTasks,
			RecordedAt:     now,
		}

		if err := j.historyRepo.Record(ctx, record); err != nil {
			atomic.AddInt64(&stats.FailedUsers, 1)
			j.logger.Error("failed to record history row",
				"user_id", userID,
				"milestone", p.MilestoneID,
				"error", err,
			)
			return
		}
		atomic.AddInt64(&stats.RecordedRows, 1)
	}
}

// LastStats returns statistics from the most recent run, or nil.
func (j *RecordHistoryJob) LastStats() *HistoryStats {
	if v := j.lastStats.Load(); v != nil {
		return v.(*HistoryStats)
	}
	return nil
}
