package maturity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

func TestScores_ApplyAccumulates(t *testing.T) {
	now := time.Now()
	scores := NewScores("3f464f64-6dfd-4d39-868f-11dce35e6ce3")

	assert.Equal(t, 30, scores.Apply(shared.CategoryMonetization, 30, now))
	assert.Equal(t, 55, scores.Apply(shared.CategoryMonetization, 25, now))
	assert.Equal(t, 55, scores.Monetization)
	assert.Equal(t, 0, scores.IdeaValidation)
	assert.Equal(t, now, scores.UpdatedAt)
}

func TestScores_ApplyClampsAtMaximum(t *testing.T) {
	now := time.Now()
	scores := NewScores("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	scores.Apply(shared.CategoryMarketFit, 90, now)

	assert.Equal(t, shared.MaxScore, scores.Apply(shared.CategoryMarketFit, 40, now))
	assert.Equal(t, shared.MaxScore, scores.MarketFit)
}

func TestScores_TotalAndOverall(t *testing.T) {
	now := time.Now()
	scores := NewScores("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	scores.Apply(shared.CategoryIdeaValidation, 40, now)
	scores.Apply(shared.CategoryUserExperience, 20, now)
	scores.Apply(shared.CategoryMarketFit, 10, now)
	scores.Apply(shared.CategoryMonetization, 5, now)

	assert.Equal(t, 75, scores.Total())
	assert.Equal(t, 18, scores.Overall()) // floor(75/4)
}

func TestScores_Snapshot(t *testing.T) {
	now := time.Now()
	scores := NewScores("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	scores.Apply(shared.CategoryUserExperience, 15, now)

	snap := scores.Snapshot()
	assert.Equal(t, 15, snap.UserExperience)
	assert.Equal(t, 0, snap.Monetization)
}

func TestValidateAction(t *testing.T) {
	assert.NoError(t, ValidateAction("sale-1", shared.CategoryMonetization, 80))

	err := ValidateAction("", shared.CategoryMonetization, 80)
	assert.True(t, errors.Is(err, shared.ErrEmptyValue))

	err = ValidateAction("sale-1", shared.MaturityCategory("growth"), 80)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	err = ValidateAction("sale-1", shared.CategoryMonetization, 0)
	assert.True(t, errors.Is(err, shared.ErrValueOutOfRange))

	// Awards above the cap are valid; Apply clamps them, nothing rejects them.
	assert.NoError(t, ValidateAction("sale-1", shared.CategoryMonetization, 101))
}
