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
// RECONCILE STATE COMMAND
// Sweeps the catalog's completion predicates against the user's recorded
// facts and marks every task whose predicate already holds. This is how
// completions are detected from state the user produced elsewhere (e.g.
// uploading a fifth product) rather than from an explicit completion.
// Reconciliation only adds completions, never removes them.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileStateCommand requests an auto-completion sweep.
type ReconcileStateCommand struct {
	// UserID is the account to reconcile.
	UserID shared.UserID

	// Timestamp is when the sweep ran (defaults to now if zero).
	Timestamp time.Time
}

// Validate validates the command.
func (c ReconcileStateCommand) Validate() error {
	if !c.UserID.IsValid() {
		return fmt.Errorf("reconcile_state: %w", shared.ErrInvalidUserID)
	}
	return nil
}

// ReconcileStateResult contains the result of a reconciliation sweep.
type ReconcileStateResult struct {
	// AutoCompleted lists the tasks this sweep marked done.
	AutoCompleted []shared.TaskID

	// Vector is the post-recompute milestone progress.
	Vector milestone.Vector

	// Events contains the events published by this call.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileStateHandler handles the ReconcileStateCommand.
type ReconcileStateHandler struct {
	stateRepo  task.StateRepository
	recomputer *Recomputer
	publisher  shared.EventPublisher
}

// NewReconcileStateHandler creates a new ReconcileStateHandler.
func NewReconcileStateHandler(
	stateRepo task.StateRepository,
	recomputer *Recomputer,
	publisher shared.EventPublisher,
) *ReconcileStateHandler {
	return &ReconcileStateHandler{
		stateRepo:  stateRepo,
		recomputer: recomputer,
		publisher:  publisher,
	}
}

// Handle executes the reconcile state command.
func (h *ReconcileStateHandler) Handle(ctx context.Context, cmd ReconcileStateCommand) (*ReconcileStateResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	state, err := h.stateRepo.Get(ctx, cmd.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		// Nothing recorded yet, nothing to reconcile.
		state = task.NewUserProgressionState(cmd.UserID)
	} else if err != nil {
		return nil, fmt.Errorf("reconcile_state: load state: %w", err)
	}

	before := h.recomputer.Partition(state)

	catalog := h.recomputer.Catalog()
	var completed []shared.TaskID
	for _, id := range task.AutoCompletable(catalog, state) {
		if state.CompleteTask(id, timestamp) {
			completed = append(completed, id)
		}
	}

	if len(completed) > 0 {
		if err := h.stateRepo.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("reconcile_state: save state: %w", err)
		}
	}

	recomputed, err := h.recomputer.Recompute(ctx, before, state)
	if err != nil {
		return nil, fmt.Errorf("reconcile_state: %w", err)
	}

	events := recomputed.Events
	for _, id := range completed {
		definition, ok := catalog.ByID(id)
		if !ok {
			continue
		}
		snapshot, _ := recomputed.Vector.Get(definition.Milestone)
		event := shared.NewTaskCompletedEvent(cmd.UserID, id, snapshot.Snapshot())
		_ = h.publisher.Publish(event)
		events = append(events, event)
	}

	return &ReconcileStateResult{
		AutoCompleted: completed,
		Vector:        recomputed.Vector,
		Events:        events,
	}, nil
}
