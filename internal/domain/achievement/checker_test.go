package achievement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

type fakeAchievementRepo struct {
	records []UserAchievement
	byPair  map[string]bool
}

func newFakeAchievementRepo() *fakeAchievementRepo {
	return &fakeAchievementRepo{byPair: make(map[string]bool)}
}

func (r *fakeAchievementRepo) Insert(_ context.Context, record UserAchievement) error {
	key := string(record.UserID) + "/" + string(record.AchievementID)
	if r.byPair[key] {
		return shared.ErrAlreadyExists
	}
	r.byPair[key] = true
	r.records = append(r.records, record)
	return nil
}

func (r *fakeAchievementRepo) ListByUser(_ context.Context, userID shared.UserID) ([]UserAchievement, error) {
	var out []UserAchievement
	for _, rec := range r.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeAchievementRepo) Unlocked(_ context.Context, userID shared.UserID) (map[shared.AchievementID]bool, error) {
	out := make(map[shared.AchievementID]bool)
	for _, rec := range r.records {
		if rec.UserID == userID {
			out[rec.AchievementID] = true
		}
	}
	return out, nil
}

const testUserID = shared.UserID("3f464f64-6dfd-4d39-868f-11dce35e6ce3")

func TestChecker_GrantsOnMilestoneCompleted(t *testing.T) {
	repo := newFakeAchievementRepo()
	checker := NewChecker(BuiltinAchievements(), repo)

	state := AggregateState{
		CompletedMilestones: map[shared.MilestoneID]bool{shared.MilestoneBrand: true},
	}
	granted, err := checker.Check(context.Background(), testUserID, state)
	assert.NoError(t, err)
	assert.Len(t, granted, 1)
	assert.Equal(t, shared.AchievementID("brand_builder"), granted[0].ID)
	assert.Len(t, repo.records, 1)
}

func TestChecker_GrantsOnScoreThresholds(t *testing.T) {
	repo := newFakeAchievementRepo()
	checker := NewChecker(BuiltinAchievements(), repo)

	state := AggregateState{
		Scores: shared.ScoreSnapshot{Monetization: 30, IdeaValidation: 50},
	}
	granted, err := checker.Check(context.Background(), testUserID, state)
	assert.NoError(t, err)

	ids := make([]shared.AchievementID, len(granted))
	for i, a := range granted {
		ids[i] = a.ID
	}
	assert.ElementsMatch(t, []shared.AchievementID{"validated_idea", "first_revenue"}, ids)
}

func TestChecker_TotalScoreCriteria(t *testing.T) {
	repo := newFakeAchievementRepo()
	checker := NewChecker(BuiltinAchievements(), repo)

	state := AggregateState{
		Scores: shared.ScoreSnapshot{IdeaValidation: 60, UserExperience: 60, MarketFit: 40, Monetization: 40},
	}
	granted, err := checker.Check(context.Background(), testUserID, state)
	assert.NoError(t, err)

	var found bool
	for _, a := range granted {
		if a.ID == "market_ready" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestChecker_DuplicateCheckIsNoop(t *testing.T) {
	repo := newFakeAchievementRepo()
	checker := NewChecker(BuiltinAchievements(), repo)

	state := AggregateState{
		CompletedMilestones: map[shared.MilestoneID]bool{shared.MilestoneShop: true},
	}
	granted, err := checker.Check(context.Background(), testUserID, state)
	assert.NoError(t, err)
	assert.Len(t, granted, 1)

	// Redelivered event: criteria still satisfied, nothing re-granted.
	granted, err = checker.Check(context.Background(), testUserID, state)
	assert.NoError(t, err)
	assert.Empty(t, granted)
	assert.Len(t, repo.records, 1)
}

func TestChecker_SwallowsUniquenessViolation(t *testing.T) {
	repo := newFakeAchievementRepo()
	checker := NewChecker(BuiltinAchievements(), repo)

	// Simulate a concurrent winner that inserted between the read and
	// our insert: the pair exists in storage but not in the read set.
	repo.byPair[string(testUserID)+"/shopkeeper"] = true

	state := AggregateState{
		CompletedMilestones: map[shared.MilestoneID]bool{shared.MilestoneShop: true},
	}
	granted, err := checker.Check(context.Background(), testUserID, state)
	assert.NoError(t, err)
	assert.Empty(t, granted)
}

func TestCatalog_RejectsDuplicateIDs(t *testing.T) {
	_, err := NewCatalog([]Achievement{
		{ID: "a", Title: "A"},
		{ID: "a", Title: "A again"},
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}
