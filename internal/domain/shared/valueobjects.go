// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents a unique platform user identifier (UUID format).
type UserID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the user ID is a valid UUID.
func (u UserID) IsValid() bool {
	return uuidRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// TaskID identifies a fixed task in the catalog.
// Task ids are stable strings defined at catalog load time (e.g. "create_shop").
type TaskID string

// String returns the string representation.
func (t TaskID) String() string {
	return string(t)
}

// IsValid checks that the task ID is non-empty after trimming.
func (t TaskID) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// AchievementID identifies an achievement in the static catalog.
type AchievementID string

// String returns the string representation.
func (a AchievementID) String() string {
	return string(a)
}

// ═══════════════════════════════════════════════════════════════════════════
// Milestone
// ═══════════════════════════════════════════════════════════════════════════

// MilestoneID is one of the five fixed phases of the onboarding journey.
type MilestoneID string

const (
	MilestoneFormalization MilestoneID = "formalization"
	MilestoneBrand         MilestoneID = "brand"
	MilestoneShop          MilestoneID = "shop"
	MilestoneSales         MilestoneID = "sales"
	MilestoneCommunity     MilestoneID = "community"
)

// AllMilestones returns the milestones in display order.
func AllMilestones() []MilestoneID {
	return []MilestoneID{
		MilestoneFormalization,
		MilestoneBrand,
		MilestoneShop,
		MilestoneSales,
		MilestoneCommunity,
	}
}

// IsValid checks if the milestone is one of the fixed set.
func (m MilestoneID) IsValid() bool {
	switch m {
	case MilestoneFormalization, MilestoneBrand, MilestoneShop, MilestoneSales, MilestoneCommunity:
		return true
	}
	return false
}

// String returns the string representation.
func (m MilestoneID) String() string {
	return string(m)
}

// Label returns the human-readable display label.
func (m MilestoneID) Label() string {
	switch m {
	case MilestoneFormalization:
		return "Formalization"
	case MilestoneBrand:
		return "Brand Identity"
	case MilestoneShop:
		return "Online Shop"
	case MilestoneSales:
		return "Sales"
	case MilestoneCommunity:
		return "Community"
	default:
		return string(m)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Maturity Categories
// ═══════════════════════════════════════════════════════════════════════════

// MaturityCategory is one of the four fixed business-readiness dimensions.
type MaturityCategory string

const (
	CategoryIdeaValidation MaturityCategory = "ideaValidation"
	CategoryUserExperience MaturityCategory = "userExperience"
	CategoryMarketFit      MaturityCategory = "marketFit"
	CategoryMonetization   MaturityCategory = "monetization"
)

// AllCategories returns the four maturity categories.
func AllCategories() []MaturityCategory {
	return []MaturityCategory{
		CategoryIdeaValidation,
		CategoryUserExperience,
		CategoryMarketFit,
		CategoryMonetization,
	}
}

// IsValid checks if the category is one of the fixed set.
func (c MaturityCategory) IsValid() bool {
	switch c {
	case CategoryIdeaValidation, CategoryUserExperience, CategoryMarketFit, CategoryMonetization:
		return true
	}
	return false
}

// String returns the string representation.
func (c MaturityCategory) String() string {
	return string(c)
}

// ═══════════════════════════════════════════════════════════════════════════
// Score / Progress bounds
// ═══════════════════════════════════════════════════════════════════════════

// Score bounds shared by maturity scores and milestone progress.
const (
	MinScore = 0
	MaxScore = 100
)

// ClampScore clamps a value into the [MinScore, MaxScore] range.
func ClampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
