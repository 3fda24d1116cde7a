package milestone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
)

func TestComputeVector_EmptyState(t *testing.T) {
	catalog := task.FixedTasks()
	state := task.NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	vector := ComputeVector(catalog, task.Evaluate(catalog, state))

	assert.Len(t, vector, len(shared.AllMilestones()))
	for _, p := range vector {
		assert.Equal(t, 0, p.TasksCompleted)
		assert.Equal(t, 0, p.Progress)
	}

	// Sales has no catalog tasks; progress must stay 0, not divide by zero.
	sales, ok := vector.Get(shared.MilestoneSales)
	assert.True(t, ok)
	assert.Equal(t, 0, sales.TotalTasks)
	assert.Equal(t, 0, sales.Progress)
	assert.False(t, sales.Complete())
}

func TestComputeVector_ProgressRoundsDown(t *testing.T) {
	catalog := task.FixedTasks()
	state := task.NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	now := time.Now()
	state.CompleteTask("complete_rut", now)

	vector := ComputeVector(catalog, task.Evaluate(catalog, state))
	formalization, ok := vector.Get(shared.MilestoneFormalization)
	assert.True(t, ok)
	assert.Equal(t, 1, formalization.TasksCompleted)
	assert.Equal(t, 8, formalization.TotalTasks)
	assert.Equal(t, 12, formalization.Progress) // floor(100/8)
}

func TestComputeVector_DenominatorIsWholeCatalog(t *testing.T) {
	catalog := task.FixedTasks()
	state := task.NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	now := time.Now()
	state.ApplyFact(task.Fact{Kind: task.FactShopCreated}, now)
	state.CompleteTask("create_shop", now)

	vector := ComputeVector(catalog, task.Evaluate(catalog, state))
	shop, _ := vector.Get(shared.MilestoneShop)

	// Locked shop tasks still count toward the total so the percentage
	// cannot regress when more tasks unlock later.
	assert.Equal(t, 7, shop.TotalTasks)
	assert.Equal(t, 1, shop.TasksCompleted)
	assert.Equal(t, 14, shop.Progress)
}

func TestDiff_UnlockFiresOnFirstVisibleTask(t *testing.T) {
	agg := NewAggregator()
	prev := Vector{{MilestoneID: shared.MilestoneShop, TotalTasks: 7}}
	next := Vector{{MilestoneID: shared.MilestoneShop, TotalTasks: 7, Unlocked: 1}}

	transitions := agg.Diff(prev, next)
	assert.Len(t, transitions, 1)
	assert.Equal(t, shared.EventMilestoneUnlocked, transitions[0].Kind)

	// Staying visible does not refire.
	assert.Empty(t, agg.Diff(next, next))
}

func TestDiff_NilPrevActsAsZeroBaseline(t *testing.T) {
	agg := NewAggregator()
	next := Vector{{MilestoneID: shared.MilestoneFormalization, TotalTasks: 8, Unlocked: 2}}

	transitions := agg.Diff(nil, next)
	assert.Len(t, transitions, 1)
	assert.Equal(t, shared.EventMilestoneUnlocked, transitions[0].Kind)
}

func TestDiff_AlmostCompleteCrossing(t *testing.T) {
	agg := NewAggregator()
	at := func(pct, done int) Vector {
		return Vector{{
			MilestoneID:    shared.MilestoneShop,
			TotalTasks:     7,
			TasksCompleted: done,
			Progress:       pct,
			Unlocked:       1,
		}}
	}

	transitions := agg.Diff(at(71, 5), at(85, 6))
	assert.Len(t, transitions, 1)
	assert.Equal(t, shared.EventMilestoneAlmostComplete, transitions[0].Kind)

	// Already above the threshold: no refire.
	assert.Empty(t, agg.Diff(at(85, 6), at(85, 6)))
}

func TestDiff_CompletedFiresOnceAndSkipsAlmostComplete(t *testing.T) {
	agg := NewAggregator()
	prev := Vector{{MilestoneID: shared.MilestoneBrand, TotalTasks: 2, TasksCompleted: 1, Progress: 50, Unlocked: 1}}
	next := Vector{{MilestoneID: shared.MilestoneBrand, TotalTasks: 2, TasksCompleted: 2, Progress: 100}}

	transitions := agg.Diff(prev, next)
	assert.Len(t, transitions, 1)
	assert.Equal(t, shared.EventMilestoneCompleted, transitions[0].Kind)

	assert.Empty(t, agg.Diff(next, next))
}

func TestDiff_EmptyMilestoneNeverCompletes(t *testing.T) {
	agg := NewAggregator()
	next := Vector{{MilestoneID: shared.MilestoneSales, TotalTasks: 0, Progress: 0}}
	assert.Empty(t, agg.Diff(nil, next))
}

func TestEvents_MaterializesTransitions(t *testing.T) {
	agg := NewAggregator()
	userID := shared.UserID("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	transitions := []Transition{
		{Kind: shared.EventMilestoneUnlocked, Progress: Progress{MilestoneID: shared.MilestoneShop, TotalTasks: 7}},
		{Kind: shared.EventMilestoneCompleted, Progress: Progress{MilestoneID: shared.MilestoneBrand, TotalTasks: 2, TasksCompleted: 2, Progress: 100}},
	}

	events := agg.Events(userID, transitions)
	assert.Len(t, events, 2)
	assert.Equal(t, shared.EventMilestoneUnlocked, events[0].EventType())
	assert.Equal(t, shared.EventMilestoneCompleted, events[1].EventType())
	assert.Equal(t, string(userID), events[0].AggregateID())
}
