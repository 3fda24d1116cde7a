// Package achievement grants badges from a static catalog when milestone
// and maturity events satisfy their unlock criteria.
package achievement

import (
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CATALOG TYPES
// ══════════════════════════════════════════════════════════════════════════════

// CriteriaKind discriminates the unlock criteria variants.
type CriteriaKind string

const (
	// CriteriaMilestoneCompleted unlocks when a specific milestone reaches 100%.
	CriteriaMilestoneCompleted CriteriaKind = "milestone_completed"
	// CriteriaCategoryScore unlocks when one maturity category reaches a threshold.
	CriteriaCategoryScore CriteriaKind = "category_score"
	// CriteriaTotalScore unlocks when the summed maturity score reaches a threshold.
	CriteriaTotalScore CriteriaKind = "total_score"
)

// UnlockCriteria describes when an achievement unlocks. Exactly one variant
// is populated, selected by Kind.
type UnlockCriteria struct {
	Kind      CriteriaKind            `json:"kind"`
	Milestone shared.MilestoneID      `json:"milestone,omitempty"`
	Category  shared.MaturityCategory `json:"category,omitempty"`
	Threshold int                     `json:"threshold,omitempty"`
}

// Achievement is one catalog entry.
type Achievement struct {
	ID          shared.AchievementID `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Icon        string               `json:"icon"`
	Criteria    UnlockCriteria       `json:"criteria"`
}

// UserAchievement is an unlock record, unique per (user, achievement).
type UserAchievement struct {
	ID            string
	UserID        shared.UserID
	AchievementID shared.AchievementID
	UnlockedAt    time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION INPUT
// ══════════════════════════════════════════════════════════════════════════════

// AggregateState is the slice of user state the criteria are judged
// against. Callers assemble it from the event payload plus current scores.
type AggregateState struct {
	CompletedMilestones map[shared.MilestoneID]bool
	Scores              shared.ScoreSnapshot
}

// Satisfied reports whether the criteria hold for the given state.
func (c UnlockCriteria) Satisfied(state AggregateState) bool {
	switch c.Kind {
	case CriteriaMilestoneCompleted:
		return state.CompletedMilestones[c.Milestone]
	case CriteriaCategoryScore:
		return state.Scores.Get(c.Category) >= c.Threshold
	case CriteriaTotalScore:
		return state.Scores.Total() >= c.Threshold
	default:
		return false
	}
}
