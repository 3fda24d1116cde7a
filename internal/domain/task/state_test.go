package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyFact_FlagsOnlyFlipTrue(t *testing.T) {
	now := time.Now()
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")

	assert.True(t, state.ApplyFact(Fact{Kind: FactShopCreated}, now))
	assert.True(t, state.HasShop)

	// Re-reporting the same fact changes nothing.
	assert.False(t, state.ApplyFact(Fact{Kind: FactShopCreated}, now))
}

func TestApplyFact_ProductCountIsMonotonic(t *testing.T) {
	now := time.Now()
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")

	assert.True(t, state.ApplyFact(ProductAdded(5), now))
	assert.Equal(t, 5, state.ProductCount)

	// A lower observed total never shrinks the recorded count.
	assert.False(t, state.ApplyFact(ProductAdded(2), now))
	assert.Equal(t, 5, state.ProductCount)

	assert.True(t, state.ApplyFact(ProductAdded(7), now))
	assert.Equal(t, 7, state.ProductCount)
}

func TestApplyFact_MaturityBlocksAccumulate(t *testing.T) {
	now := time.Now()
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")

	assert.True(t, state.ApplyFact(MaturityBlockCompleted(1), now))
	assert.True(t, state.ApplyFact(MaturityBlockCompleted(3), now))
	assert.False(t, state.ApplyFact(MaturityBlockCompleted(1), now))

	assert.True(t, state.HasMaturityBlock(1))
	assert.True(t, state.HasMaturityBlock(3))
	assert.False(t, state.HasMaturityBlock(2))
}

func TestFact_Validate(t *testing.T) {
	assert.NoError(t, Fact{Kind: FactShopCreated}.Validate())
	assert.NoError(t, ProductAdded(3).Validate())
	assert.Error(t, Fact{Kind: FactKind("meteor_strike")}.Validate())
	assert.Error(t, ProductAdded(-1).Validate())
	assert.Error(t, Fact{Kind: FactMaturityBlockCompleted}.Validate())
}

func TestCompleteTask(t *testing.T) {
	now := time.Now()
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")

	assert.True(t, state.CompleteTask("create_shop", now))
	assert.True(t, state.IsTaskCompleted("create_shop"))

	// Completing twice is a no-op and keeps the original timestamp.
	// Timestamps are stored normalized to UTC.
	later := now.Add(time.Hour)
	assert.False(t, state.CompleteTask("create_shop", later))
	assert.Equal(t, now.UTC(), state.CompletedTasks["create_shop"])
}

func TestCompletedTaskIDs_MostRecentFirst(t *testing.T) {
	base := time.Now()
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	state.CompleteTask("oldest", base)
	state.CompleteTask("newest", base.Add(2*time.Hour))
	state.CompleteTask("middle", base.Add(time.Hour))

	ids := state.CompletedTaskIDs()
	assert.Equal(t, "newest", ids[0].String())
	assert.Equal(t, "middle", ids[1].String())
	assert.Equal(t, "oldest", ids[2].String())
}
