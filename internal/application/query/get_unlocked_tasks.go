// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET UNLOCKED TASKS QUERY
// Returns the locked / unlocked / completed partition of the catalog for
// one user, ordered for display.
// ══════════════════════════════════════════════════════════════════════════════

// GetUnlockedTasksQuery asks for a user's task partition.
type GetUnlockedTasksQuery struct {
	// UserID is the account to evaluate.
	UserID shared.UserID

	// Milestone optionally restricts the result to one milestone.
	Milestone shared.MilestoneID
}

// Validate validates the query.
func (q GetUnlockedTasksQuery) Validate() error {
	if !q.UserID.IsValid() {
		return fmt.Errorf("get_unlocked_tasks: %w", shared.ErrInvalidUserID)
	}
	if q.Milestone != "" && !q.Milestone.IsValid() {
		return fmt.Errorf("get_unlocked_tasks: unknown milestone %q: %w", q.Milestone, shared.ErrInvalidInput)
	}
	return nil
}

// TaskDTO is the display form of one catalog task.
type TaskDTO struct {
	ID               shared.TaskID      `json:"id"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Milestone        shared.MilestoneID `json:"milestone"`
	Priority         int                `json:"priority"`
	Icon             string             `json:"icon"`
	EstimatedMinutes int                `json:"estimated_minutes"`
	CompletedAt      string             `json:"completed_at,omitempty"`
}

// TaskPartitionDTO groups the catalog into the three display sets.
type TaskPartitionDTO struct {
	Unlocked  []TaskDTO `json:"unlocked"`
	Locked    []TaskDTO `json:"locked"`
	Completed []TaskDTO `json:"completed"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetUnlockedTasksHandler handles the GetUnlockedTasksQuery.
type GetUnlockedTasksHandler struct {
	catalog   *task.Catalog
	stateRepo task.StateRepository
}

// NewGetUnlockedTasksHandler creates a new GetUnlockedTasksHandler.
func NewGetUnlockedTasksHandler(catalog *task.Catalog, stateRepo task.StateRepository) *GetUnlockedTasksHandler {
	return &GetUnlockedTasksHandler{catalog: catalog, stateRepo: stateRepo}
}

// Handle executes the query. A user with no stored state gets the blank
// partition: the catalog's entry-point tasks unlocked, everything else
// locked.
func (h *GetUnlockedTasksHandler) Handle(ctx context.Context, q GetUnlockedTasksQuery) (*TaskPartitionDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	state, err := h.stateRepo.Get(ctx, q.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		state = task.NewUserProgressionState(q.UserID)
	} else if err != nil {
		return nil, fmt.Errorf("get_unlocked_tasks: load state: %w", err)
	}

	partition := task.Evaluate(h.catalog, state)

	return &TaskPartitionDTO{
		Unlocked:  h.toDTOs(partition.Unlocked, state, q.Milestone),
		Locked:    h.toDTOs(partition.Locked, state, q.Milestone),
		Completed: h.toDTOs(partition.Completed, state, q.Milestone),
	}, nil
}

func (h *GetUnlockedTasksHandler) toDTOs(defs []task.TaskDefinition, state *task.UserProgressionState, only shared.MilestoneID) []TaskDTO {
	out := make([]TaskDTO, 0, len(defs))
	for _, d := range defs {
		if only != "" && d.Milestone != only {
			continue
		}
		dto := TaskDTO{
			ID:               d.ID,
			Title:            d.Title,
			Description:      d.Description,
			Milestone:        d.Milestone,
			Priority:         d.Priority,
			Icon:             d.Icon,
			EstimatedMinutes: d.EstimatedMinutes,
		}
		if at, ok := state.CompletedTasks[d.ID]; ok {
			dto.CompletedAt = at.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, dto)
	}
	return out
}
