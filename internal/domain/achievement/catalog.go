package achievement

import (
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// Catalog is the static, ordered achievement list.
type Catalog struct {
	achievements []Achievement
	byID         map[shared.AchievementID]Achievement
}

// NewCatalog builds a catalog, rejecting duplicate ids.
func NewCatalog(achievements []Achievement) (*Catalog, error) {
	byID := make(map[shared.AchievementID]Achievement, len(achievements))
	for _, a := range achievements {
		if a.ID == "" {
			return nil, shared.NewDomainError("achievement", "NewCatalog", shared.ErrEmptyValue, "achievement with empty id")
		}
		if _, dup := byID[a.ID]; dup {
			return nil, shared.NewDomainError("achievement", "NewCatalog", shared.ErrAlreadyExists, "duplicate achievement id "+string(a.ID))
		}
		byID[a.ID] = a
	}
	return &Catalog{achievements: achievements, byID: byID}, nil
}

// MustCatalog panics on an invalid catalog. Used for the built-in list.
func MustCatalog(achievements []Achievement) *Catalog {
	c, err := NewCatalog(achievements)
	if err != nil {
		panic(err)
	}
	return c
}

// All returns the achievements in declaration order.
func (c *Catalog) All() []Achievement {
	return c.achievements
}

// ByID looks up an achievement.
func (c *Catalog) ByID(id shared.AchievementID) (Achievement, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// Len returns the catalog size.
func (c *Catalog) Len() int {
	return len(c.achievements)
}

// BuiltinAchievements returns the default badge catalog.
func BuiltinAchievements() *Catalog {
	return MustCatalog([]Achievement{
		{
			ID:          "formalized_business",
			Title:       "Formalized Business",
			Description: "Completed every formalization step",
			Icon:        "📋",
			Criteria:    UnlockCriteria{Kind: CriteriaMilestoneCompleted, Milestone: shared.MilestoneFormalization},
		},
		{
			ID:          "brand_builder",
			Title:       "Brand Builder",
			Description: "Defined and reviewed a complete brand identity",
			Icon:        "🎨",
			Criteria:    UnlockCriteria{Kind: CriteriaMilestoneCompleted, Milestone: shared.MilestoneBrand},
		},
		{
			ID:          "shopkeeper",
			Title:       "Shopkeeper",
			Description: "Built out a fully stocked online shop",
			Icon:        "🏪",
			Criteria:    UnlockCriteria{Kind: CriteriaMilestoneCompleted, Milestone: shared.MilestoneShop},
		},
		{
			ID:          "community_voice",
			Title:       "Community Voice",
			Description: "Connected the shop to a social audience",
			Icon:        "📣",
			Criteria:    UnlockCriteria{Kind: CriteriaMilestoneCompleted, Milestone: shared.MilestoneCommunity},
		},
		{
			ID:          "validated_idea",
			Title:       "Validated Idea",
			Description: "Reached 50 points of idea validation",
			Icon:        "💡",
			Criteria:    UnlockCriteria{Kind: CriteriaCategoryScore, Category: shared.CategoryIdeaValidation, Threshold: 50},
		},
		{
			ID:          "first_revenue",
			Title:       "First Revenue",
			Description: "Reached 25 points of monetization",
			Icon:        "💰",
			Criteria:    UnlockCriteria{Kind: CriteriaCategoryScore, Category: shared.CategoryMonetization, Threshold: 25},
		},
		{
			ID:          "market_ready",
			Title:       "Market Ready",
			Description: "Reached 200 combined maturity points",
			Icon:        "🚀",
			Criteria:    UnlockCriteria{Kind: CriteriaTotalScore, Threshold: 200},
		},
	})
}
