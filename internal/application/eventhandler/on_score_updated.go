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
// ON SCORE UPDATED HANDLER
// Evaluates score-threshold achievements whenever maturity points land.
// The event payload carries the full post-update score vector, so no
// score read is needed to judge the thresholds.
// ═══════════════════════════════════════════════════════════════════════════

// OnScoreUpdatedHandler grants achievements on score updates.
type OnScoreUpdatedHandler struct {
	checker      *achievement.Checker
	progressRepo milestone.ProgressRepository
	publisher    shared.EventPublisher
	logger       *slog.Logger
}

// NewOnScoreUpdatedHandler creates the handler.
func NewOnScoreUpdatedHandler(
	checker *achievement.Checker,
	progressRepo milestone.ProgressRepository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *OnScoreUpdatedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnScoreUpdatedHandler{
		checker:      checker,
		progressRepo: progressRepo,
		publisher:    publisher,
		logger:       logger.With("handler", "on_score_updated"),
	}
}

// Handle implements shared.EventHandler.
func (h *OnScoreUpdatedHandler) Handle(event shared.Event) error {
	updated, ok := event.(shared.ScoreUpdatedEvent)
	if !ok {
		h.logger.Warn("received non-ScoreUpdatedEvent", "event_type", event.EventType())
		return nil
	}

	ctx := context.Background()
	userID := updated.UserID

	state := achievement.AggregateState{
		CompletedMilestones: make(map[shared.MilestoneID]bool),
		Scores:              updated.Scores,
	}

	vector, err := h.progressRepo.Get(ctx, userID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("on_score_updated: load vector: %w", err)
	}
	for _, p := range vector {
		if p.Complete() {
			state.CompletedMilestones[p.MilestoneID] = true
		}
	}

	granted, err := h.checker.Check(ctx, userID, state)
	if err != nil {
		return fmt.Errorf("on_score_updated: check achievements: %w", err)
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
