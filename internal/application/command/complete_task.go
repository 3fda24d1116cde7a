package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE TASK COMMAND
// Marks one catalog task completed for a user and recomputes unlocks and
// milestone progress. Completing an already-completed task is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTaskCommand marks a task done.
type CompleteTaskCommand struct {
	// UserID is the account completing the task.
	UserID shared.UserID

	// TaskID is the catalog task being completed.
	TaskID shared.TaskID

	// Timestamp is when the completion happened (defaults to now if zero).
	Timestamp time.Time
}

// Validate validates the command.
func (c CompleteTaskCommand) Validate() error {
	if !c.UserID.IsValid() {
		return fmt.Errorf("complete_task: %w", shared.ErrInvalidUserID)
	}
	if c.TaskID == "" {
		return fmt.Errorf("complete_task: %w", shared.ErrEmptyValue)
	}
	return nil
}

// CompleteTaskResult contains the result of a task completion.
type CompleteTaskResult struct {
	// Completed indicates whether this call recorded the completion.
	// False means the task was already done.
	Completed bool

	// Unlocked is the post-recompute unlocked task id set.
	Unlocked []shared.TaskID

	// Vector is the post-recompute milestone progress.
	Vector milestone.Vector

	// Events contains the events published by this call.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTaskHandler handles the CompleteTaskCommand.
type CompleteTaskHandler struct {
	stateRepo  task.StateRepository
	recomputer *Recomputer
	publisher  shared.EventPublisher
}

// NewCompleteTaskHandler creates a new CompleteTaskHandler.
func NewCompleteTaskHandler(
	stateRepo task.StateRepository,
	recomputer *Recomputer,
	publisher shared.EventPublisher,
) *CompleteTaskHandler {
	return &CompleteTaskHandler{
		stateRepo:  stateRepo,
		recomputer: recomputer,
		publisher:  publisher,
	}
}

// Handle executes the complete task command.
func (h *CompleteTaskHandler) Handle(ctx context.Context, cmd CompleteTaskCommand) (*CompleteTaskResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	catalog := h.recomputer.Catalog()
	definition, ok := catalog.ByID(cmd.TaskID)
	if !ok {
		return nil, fmt.Errorf("complete_task: %q: %w", cmd.TaskID, shared.ErrTaskNotFound)
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	state, err := h.loadOrCreateState(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("complete_task: load state: %w", err)
	}
	before := h.recomputer.Partition(state)

	completed := state.CompleteTask(cmd.TaskID, timestamp)
	if completed {
		if err := h.stateRepo.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("complete_task: save state: %w", err)
		}
	}

	recomputed, err := h.recomputer.Recompute(ctx, before, state)
	if err != nil {
		return nil, fmt.Errorf("complete_task: %w", err)
	}

	events := recomputed.Events
	if completed {
		snapshot, _ := recomputed.Vector.Get(definition.Milestone)
		event := shared.NewTaskCompletedEvent(cmd.UserID, cmd.TaskID, snapshot.Snapshot())
		_ = h.publisher.Publish(event)
		events = append(events, event)
	}

	return &CompleteTaskResult{
		Completed: completed,
		Unlocked:  recomputed.Partition.UnlockedIDs(),
		Vector:    recomputed.Vector,
		Events:    events,
	}, nil
}

func (h *CompleteTaskHandler) loadOrCreateState(ctx context.Context, userID shared.UserID) (*task.UserProgressionState, error) {
	state, err := h.stateRepo.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return task.NewUserProgressionState(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}
