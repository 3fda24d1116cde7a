package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telar-hub/progression-engine/internal/domain/maturity"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRACK ACTION COMMAND
// Awards maturity points for one discrete business action. ActionID is the
// idempotency key: replaying the same action returns the current scores
// unchanged, which protects against at-least-once delivery from the
// action source.
// ══════════════════════════════════════════════════════════════════════════════

// TrackActionCommand awards maturity points.
type TrackActionCommand struct {
	// UserID is the account being scored.
	UserID shared.UserID

	// Category is one of the four maturity categories.
	Category shared.MaturityCategory

	// Points to add, a positive integer. The resulting score clamps at the
	// category cap; overshoot is lost, not rejected.
	Points int

	// ActionID is the caller's idempotency key.
	ActionID string

	// Description is free text for the audit log.
	Description string

	// Timestamp is when the action happened (defaults to now if zero).
	Timestamp time.Time
}

// Validate validates the command.
func (c TrackActionCommand) Validate() error {
	if !c.UserID.IsValid() {
		return fmt.Errorf("track_action: %w", shared.ErrInvalidUserID)
	}
	if err := maturity.ValidateAction(c.ActionID, c.Category, c.Points); err != nil {
		return fmt.Errorf("track_action: %w", err)
	}
	return nil
}

// TrackActionResult contains the result of tracking an action.
type TrackActionResult struct {
	// Applied indicates whether points were added. False means the action
	// id was already recorded and the call was an idempotent replay.
	Applied bool

	// Scores is the current score vector after the call.
	Scores *maturity.Scores
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// TrackActionHandler handles the TrackActionCommand.
type TrackActionHandler struct {
	scoresRepo maturity.ScoresRepository
	actionLog  maturity.ActionLogRepository
	publisher  shared.EventPublisher
}

// NewTrackActionHandler creates a new TrackActionHandler.
func NewTrackActionHandler(
	scoresRepo maturity.ScoresRepository,
	actionLog maturity.ActionLogRepository,
	publisher shared.EventPublisher,
) *TrackActionHandler {
	return &TrackActionHandler{
		scoresRepo: scoresRepo,
		actionLog:  actionLog,
		publisher:  publisher,
	}
}

// Handle executes the track action command.
//
// The append to the action log is the idempotency gate: it enforces the
// (user, action id) uniqueness atomically, so of two concurrent calls
// bearing the same action id exactly one proceeds to the score update.
func (h *TrackActionHandler) Handle(ctx context.Context, cmd TrackActionCommand) (*TrackActionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	entry := maturity.TrackedAction{
		ID:          uuid.NewString(),
		UserID:      cmd.UserID,
		ActionID:    cmd.ActionID,
		Category:    cmd.Category,
		Points:      cmd.Points,
		Description: cmd.Description,
		TrackedAt:   timestamp,
	}

	if err := h.actionLog.Append(ctx, entry); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			scores, loadErr := h.loadOrCreateScores(ctx, cmd.UserID)
			if loadErr != nil {
				return nil, fmt.Errorf("track_action: load scores: %w", loadErr)
			}
			return &TrackActionResult{Applied: false, Scores: scores}, nil
		}
		return nil, fmt.Errorf("track_action: append log: %w", err)
	}

	scores, err := h.loadOrCreateScores(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("track_action: load scores: %w", err)
	}

	scores.Apply(cmd.Category, cmd.Points, timestamp)

	if err := h.scoresRepo.Save(ctx, scores); err != nil {
		return nil, fmt.Errorf("track_action: save scores: %w", err)
	}

	_ = h.publisher.Publish(shared.NewScoreUpdatedEvent(
		cmd.UserID,
		cmd.Category,
		cmd.ActionID,
		scores.Snapshot(),
	))

	return &TrackActionResult{Applied: true, Scores: scores}, nil
}

// loadOrCreateScores fetches the user's scores, lazily creating a zeroed
// record on first contact.
func (h *TrackActionHandler) loadOrCreateScores(ctx context.Context, userID shared.UserID) (*maturity.Scores, error) {
	scores, err := h.scoresRepo.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return maturity.NewScores(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return scores, nil
}
