package achievement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// Repository stores unlock records.
//
// Insert must enforce (user, achievement) uniqueness atomically and return
// shared.ErrAlreadyExists when the pair is already unlocked.
type Repository interface {
	Insert(ctx context.Context, record UserAchievement) error
	ListByUser(ctx context.Context, userID shared.UserID) ([]UserAchievement, error)
	Unlocked(ctx context.Context, userID shared.UserID) (map[shared.AchievementID]bool, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// Checker evaluates the catalog against user state and persists new
// unlocks. Duplicate unlock attempts are swallowed, so it is safe to run
// on every milestone or score event, including redelivered ones.
type Checker struct {
	catalog *Catalog
	repo    Repository
}

// NewChecker creates a criteria checker over a catalog.
func NewChecker(catalog *Catalog, repo Repository) *Checker {
	return &Checker{catalog: catalog, repo: repo}
}

// Check evaluates every catalog entry against state and inserts a record
// for each newly satisfied one. It returns the achievements actually
// granted by this call; races that lose the insert are not returned.
func (c *Checker) Check(ctx context.Context, userID shared.UserID, state AggregateState) ([]Achievement, error) {
	already, err := c.repo.Unlocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	var granted []Achievement
	for _, a := range c.catalog.All() {
		if already[a.ID] || !a.Criteria.Satisfied(state) {
			continue
		}

		record := UserAchievement{
			ID:            uuid.NewString(),
			UserID:        userID,
			AchievementID: a.ID,
			UnlockedAt:    time.Now().UTC(),
		}
		if err := c.repo.Insert(ctx, record); err != nil {
			if errors.Is(err, shared.ErrAlreadyExists) {
				continue
			}
			return granted, err
		}
		granted = append(granted, a)
	}
	return granted, nil
}
