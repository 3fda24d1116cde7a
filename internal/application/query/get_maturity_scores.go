package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/maturity"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MATURITY SCORES QUERY
// Returns the four category scores, and optionally the score evolution
// trend derived from the action log.
// ══════════════════════════════════════════════════════════════════════════════

// TrendDirection classifies how a category moved across the window.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// trendThreshold is the minimum absolute point change that counts as
// movement; smaller drift reads as stable.
const trendThreshold = 5

// GetMaturityScoresQuery asks for a user's maturity scores.
type GetMaturityScoresQuery struct {
	// UserID is the account to report on.
	UserID shared.UserID

	// IncludeEvolution adds the per-category trend over the window.
	IncludeEvolution bool

	// EvolutionDays bounds the trend window (default 30, max 180).
	EvolutionDays int
}

// Validate validates and normalizes the query.
func (q *GetMaturityScoresQuery) Validate() error {
	if !q.UserID.IsValid() {
		return fmt.Errorf("get_maturity_scores: %w", shared.ErrInvalidUserID)
	}
	if q.EvolutionDays <= 0 {
		q.EvolutionDays = 30
	}
	if q.EvolutionDays > 180 {
		q.EvolutionDays = 180
	}
	return nil
}

// CategoryTrendDTO is the evolution of one category across the window.
type CategoryTrendDTO struct {
	Category     shared.MaturityCategory `json:"category"`
	PointsGained int                     `json:"points_gained"`
	Direction    TrendDirection          `json:"direction"`
}

// MaturityScoresResult is the full query result.
type MaturityScoresResult struct {
	UserID         shared.UserID      `json:"user_id"`
	IdeaValidation int                `json:"idea_validation"`
	UserExperience int                `json:"user_experience"`
	MarketFit      int                `json:"market_fit"`
	Monetization   int                `json:"monetization"`
	Total          int                `json:"total"`
	Overall        int                `json:"overall"`
	UpdatedAt      time.Time          `json:"updated_at"`
	Evolution      []CategoryTrendDTO `json:"evolution,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetMaturityScoresHandler handles the GetMaturityScoresQuery.
type GetMaturityScoresHandler struct {
	scoresRepo maturity.ScoresRepository
	actionLog  maturity.ActionLogRepository
}

// NewGetMaturityScoresHandler creates a new GetMaturityScoresHandler.
func NewGetMaturityScoresHandler(
	scoresRepo maturity.ScoresRepository,
	actionLog maturity.ActionLogRepository,
) *GetMaturityScoresHandler {
	return &GetMaturityScoresHandler{scoresRepo: scoresRepo, actionLog: actionLog}
}

// Handle executes the query. A user with no scores yet gets the zero
// vector, not an error.
func (h *GetMaturityScoresHandler) Handle(ctx context.Context, q GetMaturityScoresQuery) (*MaturityScoresResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	scores, err := h.scoresRepo.Get(ctx, q.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		scores = maturity.NewScores(q.UserID)
	} else if err != nil {
		return nil, fmt.Errorf("get_maturity_scores: load scores: %w", err)
	}

	result := &MaturityScoresResult{
		UserID:         q.UserID,
		IdeaValidation: scores.IdeaValidation,
		UserExperience: scores.UserExperience,
		MarketFit:      scores.MarketFit,
		Monetization:   scores.Monetization,
		Total:          scores.Total(),
		Overall:        scores.Overall(),
		UpdatedAt:      scores.UpdatedAt,
	}

	if q.IncludeEvolution {
		evolution, err := h.evolution(ctx, q.UserID, q.EvolutionDays)
		if err != nil {
			return nil, err
		}
		result.Evolution = evolution
	}

	return result, nil
}

// evolution sums point gains per category across the window and classifies
// the direction of movement.
func (h *GetMaturityScoresHandler) evolution(ctx context.Context, userID shared.UserID, days int) ([]CategoryTrendDTO, error) {
	since := timeutil.DaysAgo(time.Now(), days)
	actions, err := h.actionLog.ListSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("get_maturity_scores: load action log: %w", err)
	}

	gained := make(map[shared.MaturityCategory]int)
	for _, a := range actions {
		gained[a.Category] += a.Points
	}

	out := make([]CategoryTrendDTO, 0, len(shared.AllCategories()))
	for _, category := range shared.AllCategories() {
		out = append(out, CategoryTrendDTO{
			Category:     category,
			PointsGained: gained[category],
			Direction:    classifyTrend(gained[category]),
		})
	}
	return out, nil
}

func classifyTrend(delta int) TrendDirection {
	switch {
	case delta > trendThreshold:
		return TrendUp
	case delta < -trendThreshold:
		return TrendDown
	default:
		return TrendStable
	}
}
