package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
	"github.com/telar-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MILESTONE PROGRESS QUERY
// Returns the per-milestone progress vector, preferring the cached copy
// and falling back to a fresh recomputation from state.
// ══════════════════════════════════════════════════════════════════════════════

// GetMilestoneProgressQuery asks for a user's progress vector.
type GetMilestoneProgressQuery struct {
	// UserID is the account to report on.
	UserID shared.UserID

	// IncludeHistory adds the daily history rows for trend charts.
	IncludeHistory bool

	// HistoryDays bounds the history window (default 30, max 90).
	HistoryDays int
}

// Validate validates and normalizes the query.
func (q *GetMilestoneProgressQuery) Validate() error {
	if !q.UserID.IsValid() {
		return fmt.Errorf("get_milestone_progress: %w", shared.ErrInvalidUserID)
	}
	if q.HistoryDays <= 0 {
		q.HistoryDays = 30
	}
	if q.HistoryDays > 90 {
		q.HistoryDays = 90
	}
	return nil
}

// MilestoneProgressDTO is the display form of one milestone's progress.
type MilestoneProgressDTO struct {
	MilestoneID    shared.MilestoneID `json:"milestone_id"`
	Label          string             `json:"label"`
	TasksCompleted int                `json:"tasks_completed"`
	TotalTasks     int                `json:"total_tasks"`
	Progress       int                `json:"progress"`
	Weight         int                `json:"weight"`
	Complete       bool               `json:"complete"`
}

// ProgressHistoryDTO is one history row for trend charts.
type ProgressHistoryDTO struct {
	MilestoneID shared.MilestoneID `json:"milestone_id"`
	Day         time.Time          `json:"day"`
	Progress    int                `json:"progress"`
}

// MilestoneProgressResult is the full query result.
type MilestoneProgressResult struct {
	Milestones []MilestoneProgressDTO `json:"milestones"`
	History    []ProgressHistoryDTO   `json:"history,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetMilestoneProgressHandler handles the GetMilestoneProgressQuery.
type GetMilestoneProgressHandler struct {
	catalog      *task.Catalog
	stateRepo    task.StateRepository
	progressRepo milestone.ProgressRepository
	historyRepo  milestone.HistoryRepository
}

// NewGetMilestoneProgressHandler creates a new GetMilestoneProgressHandler.
func NewGetMilestoneProgressHandler(
	catalog *task.Catalog,
	stateRepo task.StateRepository,
	progressRepo milestone.ProgressRepository,
	historyRepo milestone.HistoryRepository,
) *GetMilestoneProgressHandler {
	return &GetMilestoneProgressHandler{
		catalog:      catalog,
		stateRepo:    stateRepo,
		progressRepo: progressRepo,
		historyRepo:  historyRepo,
	}
}

// Handle executes the query.
func (h *GetMilestoneProgressHandler) Handle(ctx context.Context, q GetMilestoneProgressQuery) (*MilestoneProgressResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	vector, err := h.loadVector(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	result := &MilestoneProgressResult{
		Milestones: make([]MilestoneProgressDTO, 0, len(vector)),
	}
	for _, p := range vector {
		result.Milestones = append(result.Milestones, MilestoneProgressDTO{
			MilestoneID:    p.MilestoneID,
			Label:          p.MilestoneID.Label(),
			TasksCompleted: p.TasksCompleted,
			TotalTasks:     p.TotalTasks,
			Progress:       p.Progress,
			Weight:         p.Weight,
			Complete:       p.Complete(),
		})
	}

	if q.IncludeHistory && h.historyRepo != nil {
		now := time.Now()
		to := timeutil.UTCDay(now)
		from := timeutil.DaysAgo(now, q.HistoryDays)
		rows, err := h.historyRepo.ListRange(ctx, q.UserID, from, to)
		if err != nil {
			return nil, fmt.Errorf("get_milestone_progress: load history: %w", err)
		}
		for _, row := range rows {
			result.History = append(result.History, ProgressHistoryDTO{
				MilestoneID: row.MilestoneID,
				Day:         row.Day,
				Progress:    row.Progress,
			})
		}
	}

	return result, nil
}

// loadVector prefers the cached vector; a cache miss recomputes from state.
func (h *GetMilestoneProgressHandler) loadVector(ctx context.Context, userID shared.UserID) (milestone.Vector, error) {
	vector, err := h.progressRepo.Get(ctx, userID)
	if err == nil {
		return vector, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("get_milestone_progress: load vector: %w", err)
	}

	state, err := h.stateRepo.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		state = task.NewUserProgressionState(userID)
	} else if err != nil {
		return nil, fmt.Errorf("get_milestone_progress: load state: %w", err)
	}

	return milestone.ComputeVector(h.catalog, task.Evaluate(h.catalog, state)), nil
}
