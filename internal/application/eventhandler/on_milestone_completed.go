// Package eventhandler contains domain event subscribers.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/telar-hub/progression-engine/internal/domain/achievement"
	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON MILESTONE COMPLETED HANDLER
// Evaluates the badge catalog whenever a milestone reaches 100% and grants
// any newly earned achievements. Runs as a pure subscriber: it never calls
// back into the progression commands, so a completion cannot trigger a
// re-entrant recompute cascade.
// ═══════════════════════════════════════════════════════════════════════════

// OnMilestoneCompletedHandler grants achievements on milestone completion.
type OnMilestoneCompletedHandler struct {
	checker      *achievement.Checker
	progressRepo milestone.ProgressRepository
	publisher    shared.EventPublisher
	logger       *slog.Logger
}

// NewOnMilestoneCompletedHandler creates the handler.
func NewOnMilestoneCompletedHandler(
	checker *achievement.Checker,
	progressRepo milestone.ProgressRepository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *OnMilestoneCompletedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnMilestoneCompletedHandler{
		checker:      checker,
		progressRepo: progressRepo,
		publisher:    publisher,
		logger:       logger.With("handler", "on_milestone_completed"),
	}
}

// Handle implements shared.EventHandler.
func (h *OnMilestoneCompletedHandler) Handle(event shared.Event) error {
	completed, ok := event.(shared.MilestoneCompletedEvent)
	if !ok {
		h.logger.Warn("received non-MilestoneCompletedEvent", "event_type", event.EventType())
		return nil
	}

	ctx := context.Background()
	userID := completed.UserID

	state, err := h.aggregateState(ctx, userID)
	if err != nil {
		return fmt.Errorf("on_milestone_completed: %w", err)
	}
	// The event itself is authoritative for the milestone it announces;
	// the cached vector may lag behind it.
	state.CompletedMilestones[completed.Milestone.MilestoneID] = true

	granted, err := h.checker.Check(ctx, userID, state)
	if err != nil {
		return fmt.Errorf("on_milestone_completed: check achievements: %w", err)
	}

	for _, a := range granted {
		h.logger.Info("achievement unlocked",
			"user_id", userID,
			"achievement_id", a.ID,
		)
		_ = h.publisher.Publish(shared.NewAchievementUnlockedEvent(userID, a.ID, a.Title, a.Icon))
	}
	return nil
}

// aggregateState assembles the milestone-completion view of the user.
func (h *OnMilestoneCompletedHandler) aggregateState(ctx context.Context, userID shared.UserID) (achievement.AggregateState, error) {
	state := achievement.AggregateState{
		CompletedMilestones: make(map[shared.MilestoneID]bool),
	}

	vector, err := h.progressRepo.Get(ctx, userID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return state, fmt.Errorf("load vector: %w", err)
	}
	for _, p := range vector {
		if p.Complete() {
			state.CompletedMilestones[p.MilestoneID] = true
		}
	}
	return state, nil
}
