// Package maturity tracks per-category business maturity scores built up
// from idempotent point-awarding actions.
package maturity

import (
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORES
// ══════════════════════════════════════════════════════════════════════════════

// Scores is the per-user maturity score record, one slot per category.
// Every slot is clamped to [shared.MinScore, shared.MaxScore].
type Scores struct {
	UserID         shared.UserID `json:"user_id"`
	IdeaValidation int           `json:"idea_validation"`
	UserExperience int           `json:"user_experience"`
	MarketFit      int           `json:"market_fit"`
	Monetization   int           `json:"monetization"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewScores creates a zeroed score record for a user.
func NewScores(userID shared.UserID) *Scores {
	return &Scores{UserID: userID}
}

// Get returns the score for a category.
func (s *Scores) Get(category shared.MaturityCategory) int {
	switch category {
	case shared.CategoryIdeaValidation:
		return s.IdeaValidation
	case shared.CategoryUserExperience:
		return s.UserExperience
	case shared.CategoryMarketFit:
		return s.MarketFit
	case shared.CategoryMonetization:
		return s.Monetization
	default:
		return 0
	}
}

// Apply adds points to a category, clamping the result into the valid
// score range. It returns the new value.
func (s *Scores) Apply(category shared.MaturityCategory, points int, at time.Time) int {
	value := shared.ClampScore(s.Get(category) + points)
	switch category {
	case shared.CategoryIdeaValidation:
		s.IdeaValidation = value
	case shared.CategoryUserExperience:
		s.UserExperience = value
	case shared.CategoryMarketFit:
		s.MarketFit = value
	case shared.CategoryMonetization:
		s.Monetization = value
	}
	s.UpdatedAt = at
	return value
}

// Total sums all category scores.
func (s *Scores) Total() int {
	return s.IdeaValidation + s.UserExperience + s.MarketFit + s.Monetization
}

// Overall is the mean category score, rounded down.
func (s *Scores) Overall() int {
	return s.Total() / len(shared.AllCategories())
}

// Snapshot converts the record to the event payload form.
func (s *Scores) Snapshot() shared.ScoreSnapshot {
	return shared.ScoreSnapshot{
		IdeaValidation: s.IdeaValidation,
		UserExperience: s.UserExperience,
		MarketFit:      s.MarketFit,
		Monetization:   s.Monetization,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKED ACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// TrackedAction is one append-only score-log entry. ActionID is the caller's
// idempotency key: a (user, action id) pair is recorded at most once and
// replays award no points.
type TrackedAction struct {
	ID          string
	UserID      shared.UserID
	ActionID    string
	Category    shared.MaturityCategory
	Points      int
	Description string
	TrackedAt   time.Time
}

// ValidateAction checks a tracking request before it touches storage.
func ValidateAction(actionID string, category shared.MaturityCategory, points int) error {
	if actionID == "" {
		return shared.ErrEmptyActionID
	}
	if !category.IsValid() {
		return shared.ErrInvalidCategory
	}
	// No upper bound: an award that would overflow the cap is clamped at
	// apply time, never rejected, so the overshoot points are simply lost.
	if points <= 0 {
		return shared.ErrInvalidPoints
	}
	return nil
}
