// Package progression wires the command and query handlers into one
// engine facade and serializes mutations per user.
package progression

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telar-hub/progression-engine/internal/application/command"
	"github.com/telar-hub/progression-engine/internal/application/query"
	"github.com/telar-hub/progression-engine/internal/domain/achievement"
	"github.com/telar-hub/progression-engine/internal/domain/maturity"
	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
	"github.com/telar-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine is the single entry point collaborators call. All mutations for
// one user are serialized behind a per-user lock, which is what makes the
// transition diffing and the read-modify-write of state race-free within
// one process. Different users never contend.
type Engine struct {
	reportFact    *command.ReportFactHandler
	completeTask  *command.CompleteTaskHandler
	trackAction   *command.TrackActionHandler
	reconcile     *command.ReconcileStateHandler
	unlockedTasks *query.GetUnlockedTasksHandler
	progress      *query.GetMilestoneProgressHandler
	scores        *query.GetMaturityScoresHandler
	achievements  *query.GetAchievementsHandler

	catalog      *task.Catalog
	stateRepo    task.StateRepository
	progressRepo milestone.ProgressRepository
	historyRepo  milestone.HistoryRepository

	locks userLocks
}

// Deps bundles everything the engine needs.
type Deps struct {
	Catalog            *task.Catalog
	AchievementCatalog *achievement.Catalog

	StateRepo       task.StateRepository
	ProgressRepo    milestone.ProgressRepository
	HistoryRepo     milestone.HistoryRepository
	ScoresRepo      maturity.ScoresRepository
	ActionLogRepo   maturity.ActionLogRepository
	AchievementRepo achievement.Repository

	Publisher shared.EventPublisher
}

// New assembles an engine from its dependencies.
func New(deps Deps) *Engine {
	recomputer := command.NewRecomputer(deps.Catalog, deps.ProgressRepo, deps.Publisher)

	return &Engine{
		reportFact:    command.NewReportFactHandler(deps.StateRepo, recomputer, deps.Publisher),
		completeTask:  command.NewCompleteTaskHandler(deps.StateRepo, recomputer, deps.Publisher),
		trackAction:   command.NewTrackActionHandler(deps.ScoresRepo, deps.ActionLogRepo, deps.Publisher),
		reconcile:     command.NewReconcileStateHandler(deps.StateRepo, recomputer, deps.Publisher),
		unlockedTasks: query.NewGetUnlockedTasksHandler(deps.Catalog, deps.StateRepo),
		progress: query.NewGetMilestoneProgressHandler(
			deps.Catalog, deps.StateRepo, deps.ProgressRepo, deps.HistoryRepo,
		),
		scores:       query.NewGetMaturityScoresHandler(deps.ScoresRepo, deps.ActionLogRepo),
		achievements: query.NewGetAchievementsHandler(deps.AchievementCatalog, deps.AchievementRepo),
		catalog:      deps.Catalog,
		stateRepo:    deps.StateRepo,
		progressRepo: deps.ProgressRepo,
		historyRepo:  deps.HistoryRepo,
	}
}

// ReportFact records an observed business fact and recomputes unlocks.
func (e *Engine) ReportFact(ctx context.Context, cmd command.ReportFactCommand) (*command.ReportFactResult, error) {
	unlock := e.locks.lock(cmd.UserID)
	defer unlock()
	return e.reportFact.Handle(ctx, cmd)
}

// CompleteTask marks a catalog task done.
func (e *Engine) CompleteTask(ctx context.Context, cmd command.CompleteTaskCommand) (*command.CompleteTaskResult, error) {
	unlock := e.locks.lock(cmd.UserID)
	defer unlock()
	return e.completeTask.Handle(ctx, cmd)
}

// TrackAction awards maturity points idempotently.
func (e *Engine) TrackAction(ctx context.Context, cmd command.TrackActionCommand) (*command.TrackActionResult, error) {
	unlock := e.locks.lock(cmd.UserID)
	defer unlock()
	return e.trackAction.Handle(ctx, cmd)
}

// ReconcileState sweeps completion predicates over recorded facts.
func (e *Engine) ReconcileState(ctx context.Context, cmd command.ReconcileStateCommand) (*command.ReconcileStateResult, error) {
	unlock := e.locks.lock(cmd.UserID)
	defer unlock()
	return e.reconcile.Handle(ctx, cmd)
}

// GetUnlockedTasks returns the locked/unlocked/completed partition.
func (e *Engine) GetUnlockedTasks(ctx context.Context, q query.GetUnlockedTasksQuery) (*query.TaskPartitionDTO, error) {
	return e.unlockedTasks.Handle(ctx, q)
}

// GetMilestoneProgress returns the milestone progress vector.
func (e *Engine) GetMilestoneProgress(ctx context.Context, q query.GetMilestoneProgressQuery) (*query.MilestoneProgressResult, error) {
	return e.progress.Handle(ctx, q)
}

// GetMaturityScores returns the maturity score vector.
func (e *Engine) GetMaturityScores(ctx context.Context, q query.GetMaturityScoresQuery) (*query.MaturityScoresResult, error) {
	return e.scores.Handle(ctx, q)
}

// GetAchievements returns the badge catalog with unlock state.
func (e *Engine) GetAchievements(ctx context.Context, q query.GetAchievementsQuery) ([]query.AchievementDTO, error) {
	return e.achievements.Handle(ctx, q)
}

// RecordHistory snapshots the user's current progress vector into the
// daily history, one row per milestone. Rows are first-write-wins per
// (user, milestone, UTC day), so calling it again on the same day leaves
// the stored rows untouched. Returns the number of milestones snapshotted.
//
// Users whose vector was never cached get one derived on the fly, so the
// operation is total: a brand-new user snapshots at zero progress.
func (e *Engine) RecordHistory(ctx context.Context, userID shared.UserID) (int, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	vector, err := e.progressRepo.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		vector, err = e.deriveVector(ctx, userID)
	}
	if err != nil {
		return 0, err
	}

	day := timeutil.UTCDay(time.Now())
	now := time.Now().UTC()
	written := 0
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
		if err := e.historyRepo.Record(ctx, record); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// deriveVector computes the milestone vector straight from stored state,
// without persisting or publishing anything.
func (e *Engine) deriveVector(ctx context.Context, userID shared.UserID) (milestone.Vector, error) {
	state, err := e.stateRepo.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		state = task.NewUserProgressionState(userID)
	} else if err != nil {
		return nil, err
	}
	return milestone.ComputeVector(e.catalog, task.Evaluate(e.catalog, state)), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PER-USER LOCKING
// ══════════════════════════════════════════════════════════════════════════════

// userLocks hands out one mutex per user id. Entries are reference-counted
// and dropped when the last holder releases, so the map does not grow with
// the user base.
type userLocks struct {
	mu      sync.Mutex
	entries map[shared.UserID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(userID shared.UserID) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[shared.UserID]*lockEntry)
	}
	entry, ok := l.entries[userID]
	if !ok {
		entry = &lockEntry{}
		l.entries[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, userID)
		}
		l.mu.Unlock()
	}
}
