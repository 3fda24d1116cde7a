package query

import (
	"context"
	"fmt"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/achievement"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Returns the badge catalog annotated with the user's unlock state.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementsQuery asks for a user's badges.
type GetAchievementsQuery struct {
	// UserID is the account to report on.
	UserID shared.UserID

	// UnlockedOnly restricts the result to earned badges.
	UnlockedOnly bool
}

// Validate validates the query.
func (q GetAchievementsQuery) Validate() error {
	if !q.UserID.IsValid() {
		return fmt.Errorf("get_achievements: %w", shared.ErrInvalidUserID)
	}
	return nil
}

// AchievementDTO is the display form of one badge.
type AchievementDTO struct {
	ID          shared.AchievementID `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Icon        string               `json:"icon"`
	Unlocked    bool                 `json:"unlocked"`
	UnlockedAt  *time.Time           `json:"unlocked_at,omitempty"`
}

// GetAchievementsHandler handles the GetAchievementsQuery.
type GetAchievementsHandler struct {
	catalog *achievement.Catalog
	repo    achievement.Repository
}

// NewGetAchievementsHandler creates a new GetAchievementsHandler.
func NewGetAchievementsHandler(catalog *achievement.Catalog, repo achievement.Repository) *GetAchievementsHandler {
	return &GetAchievementsHandler{catalog: catalog, repo: repo}
}

// Handle executes the query, in catalog order.
func (h *GetAchievementsHandler) Handle(ctx context.Context, q GetAchievementsQuery) ([]AchievementDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	records, err := h.repo.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_achievements: load unlocks: %w", err)
	}

	unlockedAt := make(map[shared.AchievementID]time.Time, len(records))
	for _, r := range records {
		unlockedAt[r.AchievementID] = r.UnlockedAt
	}

	out := make([]AchievementDTO, 0, h.catalog.Len())
	for _, a := range h.catalog.All() {
		at, unlocked := unlockedAt[a.ID]
		if q.UnlockedOnly && !unlocked {
			continue
		}
		dto := AchievementDTO{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			Icon:        a.Icon,
			Unlocked:    unlocked,
		}
		if unlocked {
			t := at
			dto.UnlockedAt = &t
		}
		out = append(out, dto)
	}
	return out, nil
}
