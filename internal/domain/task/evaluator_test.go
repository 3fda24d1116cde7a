package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

func evalCatalog(t *testing.T) *Catalog {
	t.Helper()
	return MustCatalog("test", []TaskDefinition{
		{ID: "entry", Milestone: shared.MilestoneShop, Priority: 5},
		{
			ID: "chained", Milestone: shared.MilestoneShop, Priority: 1,
			Requirements: &Requirements{MustComplete: []shared.TaskID{"entry"}},
		},
		{
			ID: "gated", Milestone: shared.MilestoneShop, Priority: 1,
			Requirements: &Requirements{MustHave: &StateCondition{Products: &MinProducts{Min: 3}}},
		},
		{
			ID: "both", Milestone: shared.MilestoneShop, Priority: 2,
			Requirements: &Requirements{
				MustComplete: []shared.TaskID{"entry"},
				MustHave:     &StateCondition{Shop: true},
			},
		},
	})
}

func TestEvaluate_BlankState(t *testing.T) {
	catalog := evalCatalog(t)
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")

	p := Evaluate(catalog, state)
	assert.Equal(t, []shared.TaskID{"entry"}, p.UnlockedIDs())
	assert.Len(t, p.Locked, 3)
	assert.Empty(t, p.Completed)
}

func TestEvaluate_PartitionIsExclusive(t *testing.T) {
	catalog := evalCatalog(t)
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	state.CompleteTask("entry", time.Now())

	p := Evaluate(catalog, state)
	assert.Equal(t, catalog.Len(), len(p.Unlocked)+len(p.Locked)+len(p.Completed))
	assert.Equal(t, []shared.TaskID{"entry"}, p.CompletedIDs())

	// Completed tasks are never reported as unlocked.
	for _, d := range p.Unlocked {
		assert.NotEqual(t, shared.TaskID("entry"), d.ID)
	}
}

func TestEvaluate_MustCompleteAndMustHaveAreConjunctive(t *testing.T) {
	catalog := evalCatalog(t)
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	state.CompleteTask("entry", time.Now())

	// entry done but no shop yet: "both" stays locked.
	p := Evaluate(catalog, state)
	assert.Equal(t, []shared.TaskID{"chained"}, p.UnlockedIDs())

	state.ApplyFact(Fact{Kind: FactShopCreated}, time.Now())
	p = Evaluate(catalog, state)
	assert.ElementsMatch(t, []shared.TaskID{"chained", "both"}, p.UnlockedIDs())
}

func TestEvaluate_StatePredicateUnlocks(t *testing.T) {
	catalog := evalCatalog(t)
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")

	state.ApplyFact(ProductAdded(2), time.Now())
	p := Evaluate(catalog, state)
	assert.NotContains(t, p.UnlockedIDs(), shared.TaskID("gated"))

	state.ApplyFact(ProductAdded(3), time.Now())
	p = Evaluate(catalog, state)
	assert.Contains(t, p.UnlockedIDs(), shared.TaskID("gated"))
}

func TestEvaluate_OrderingIsPriorityThenDeclaration(t *testing.T) {
	catalog := evalCatalog(t)
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	state.CompleteTask("entry", time.Now())
	state.ApplyFact(Fact{Kind: FactShopCreated}, time.Now())
	state.ApplyFact(ProductAdded(3), time.Now())

	p := Evaluate(catalog, state)
	// chained (p1, declared before gated) < gated (p1) < both (p2).
	assert.Equal(t, []shared.TaskID{"chained", "gated", "both"}, p.UnlockedIDs())
}

func TestEvaluate_UnknownReferenceFailsClosed(t *testing.T) {
	// A state evaluated against a catalog that no longer defines a
	// dependency: the dependent task must stay locked, not unlock.
	catalog := MustCatalog("test", []TaskDefinition{
		{ID: "a", Milestone: shared.MilestoneShop},
	})
	def := TaskDefinition{
		ID: "b", Milestone: shared.MilestoneShop,
		Requirements: &Requirements{MustComplete: []shared.TaskID{"removed"}},
	}
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")
	assert.False(t, isUnlocked(catalog, def, state))
}

func TestAutoCompletable(t *testing.T) {
	catalog := MustCatalog("test", []TaskDefinition{
		{
			ID: "five_items", Milestone: shared.MilestoneShop,
			CompletedWhen: &StateCondition{Products: &MinProducts{Min: 5}},
		},
		{ID: "manual_only", Milestone: shared.MilestoneShop},
	})
	state := NewUserProgressionState("3f464f64-6dfd-4d39-868f-11dce35e6ce3")

	assert.Empty(t, AutoCompletable(catalog, state))

	state.ApplyFact(ProductAdded(5), time.Now())
	assert.Equal(t, []shared.TaskID{"five_items"}, AutoCompletable(catalog, state))

	// Already-completed tasks are skipped.
	state.CompleteTask("five_items", time.Now())
	assert.Empty(t, AutoCompletable(catalog, state))
}
