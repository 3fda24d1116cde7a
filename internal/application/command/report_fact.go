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
// REPORT FACT COMMAND
// Records an observed business fact (shop created, product added, ...) on
// the user's progression state and recomputes unlocks. Facts never mark
// tasks completed; they only change what is unlocked.
// ══════════════════════════════════════════════════════════════════════════════

// ReportFactCommand carries one observed business fact.
type ReportFactCommand struct {
	// UserID is the account the fact belongs to.
	UserID shared.UserID

	// Fact is the observed business fact.
	Fact task.Fact

	// Timestamp is when the fact was observed (defaults to now if zero).
	Timestamp time.Time
}

// Validate validates the command.
func (c ReportFactCommand) Validate() error {
	if !c.UserID.IsValid() {
		return fmt.Errorf("report_fact: %w", shared.ErrInvalidUserID)
	}
	if err := c.Fact.Validate(); err != nil {
		return fmt.Errorf("report_fact: %w", err)
	}
	return nil
}

// ReportFactResult contains the result of reporting a fact.
type ReportFactResult struct {
	// Changed indicates whether the fact altered stored state at all.
	Changed bool

	// Unlocked is the post-recompute unlocked task id set.
	Unlocked []shared.TaskID

	// Vector is the post-recompute milestone progress.
	Vector milestone.Vector

	// Events contains the milestone transitions published by this call.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ReportFactHandler handles the ReportFactCommand.
type ReportFactHandler struct {
	stateRepo  task.StateRepository
	recomputer *Recomputer
	publisher  shared.EventPublisher

	// stateDebounce coalesces the chatty progression.state_updated signal.
	stateDebounce time.Duration
}

// DefaultStateDebounce is the coalescing window for state_updated bursts,
// sized for a UI that fires one fact per form field.
const DefaultStateDebounce = 500 * time.Millisecond

// NewReportFactHandler creates a new ReportFactHandler.
func NewReportFactHandler(
	stateRepo task.StateRepository,
	recomputer *Recomputer,
	publisher shared.EventPublisher,
) *ReportFactHandler {
	return &ReportFactHandler{
		stateRepo:     stateRepo,
		recomputer:    recomputer,
		publisher:     publisher,
		stateDebounce: DefaultStateDebounce,
	}
}

// Handle executes the report fact command.
func (h *ReportFactHandler) Handle(ctx context.Context, cmd ReportFactCommand) (*ReportFactResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	state, err := h.loadOrCreateState(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("report_fact: load state: %w", err)
	}
	before := h.recomputer.Partition(state)

	changed := state.ApplyFact(cmd.Fact, timestamp)
	if changed {
		if err := h.stateRepo.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("report_fact: save state: %w", err)
		}
	}

	recomputed, err := h.recomputer.Recompute(ctx, before, state)
	if err != nil {
		return nil, fmt.Errorf("report_fact: %w", err)
	}

	if changed {
		h.publisher.PublishDebounced(shared.NewStateUpdatedEvent(
			state.UserID,
			state.HasShop,
			state.HasBrand,
			state.ProductCount,
			state.HasRUT,
		), h.stateDebounce)
	}

	return &ReportFactResult{
		Changed:  changed,
		Unlocked: recomputed.Partition.UnlockedIDs(),
		Vector:   recomputed.Vector,
		Events:   recomputed.Events,
	}, nil
}

// loadOrCreateState fetches the user's state, lazily creating a zeroed one
// on first contact.
func (h *ReportFactHandler) loadOrCreateState(ctx context.Context, userID shared.UserID) (*task.UserProgressionState, error) {
	state, err := h.stateRepo.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return task.NewUserProgressionState(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}
