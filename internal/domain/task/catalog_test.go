package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

func TestNewCatalog_Valid(t *testing.T) {
	catalog, err := NewCatalog("v1", []TaskDefinition{
		{ID: "a", Milestone: shared.MilestoneShop, Priority: 1},
		{ID: "b", Milestone: shared.MilestoneShop, Priority: 2, Requirements: &Requirements{MustComplete: []shared.TaskID{"a"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", catalog.Version())
	assert.Equal(t, 2, catalog.Len())
	assert.True(t, catalog.Contains("a"))
	assert.False(t, catalog.Contains("z"))
}

func TestNewCatalog_RejectsEmptyID(t *testing.T) {
	_, err := NewCatalog("v1", []TaskDefinition{
		{ID: "", Milestone: shared.MilestoneShop},
	})
	assert.ErrorIs(t, err, shared.ErrInvalidCatalog)
}

func TestNewCatalog_RejectsUnknownMilestone(t *testing.T) {
	_, err := NewCatalog("v1", []TaskDefinition{
		{ID: "a", Milestone: shared.MilestoneID("warehouse")},
	})
	assert.ErrorIs(t, err, shared.ErrCatalogBadMilestone)
}

func TestNewCatalog_RejectsDuplicateID(t *testing.T) {
	_, err := NewCatalog("v1", []TaskDefinition{
		{ID: "a", Milestone: shared.MilestoneShop},
		{ID: "a", Milestone: shared.MilestoneBrand},
	})
	assert.ErrorIs(t, err, shared.ErrCatalogDuplicateID)
}

func TestNewCatalog_RejectsDanglingReference(t *testing.T) {
	_, err := NewCatalog("v1", []TaskDefinition{
		{ID: "a", Milestone: shared.MilestoneShop, Requirements: &Requirements{MustComplete: []shared.TaskID{"ghost"}}},
	})
	assert.ErrorIs(t, err, shared.ErrCatalogDanglingRef)
}

func TestNewCatalog_RejectsCycle(t *testing.T) {
	_, err := NewCatalog("v1", []TaskDefinition{
		{ID: "a", Milestone: shared.MilestoneShop, Requirements: &Requirements{MustComplete: []shared.TaskID{"c"}}},
		{ID: "b", Milestone: shared.MilestoneShop, Requirements: &Requirements{MustComplete: []shared.TaskID{"a"}}},
		{ID: "c", Milestone: shared.MilestoneShop, Requirements: &Requirements{MustComplete: []shared.TaskID{"b"}}},
	})
	assert.ErrorIs(t, err, shared.ErrCatalogCycle)
}

func TestNewCatalog_SelfReferenceIsACycle(t *testing.T) {
	_, err := NewCatalog("v1", []TaskDefinition{
		{ID: "a", Milestone: shared.MilestoneShop, Requirements: &Requirements{MustComplete: []shared.TaskID{"a"}}},
	})
	assert.ErrorIs(t, err, shared.ErrCatalogCycle)
}

func TestTotalByMilestone(t *testing.T) {
	catalog := MustCatalog("v1", []TaskDefinition{
		{ID: "a", Milestone: shared.MilestoneShop},
		{ID: "b", Milestone: shared.MilestoneShop},
		{ID: "c", Milestone: shared.MilestoneBrand},
	})
	totals := catalog.TotalByMilestone()
	assert.Equal(t, 2, totals[shared.MilestoneShop])
	assert.Equal(t, 1, totals[shared.MilestoneBrand])
	assert.Equal(t, 0, totals[shared.MilestoneSales])
}

func TestFixedTasks_IsValidAndCoversJourney(t *testing.T) {
	catalog := FixedTasks()
	assert.Equal(t, FixedCatalogVersion, catalog.Version())
	assert.Equal(t, 18, catalog.Len())

	totals := catalog.TotalByMilestone()
	assert.Equal(t, 8, totals[shared.MilestoneFormalization])
	assert.Equal(t, 7, totals[shared.MilestoneShop])
	assert.Equal(t, 2, totals[shared.MilestoneBrand])
	assert.Equal(t, 1, totals[shared.MilestoneCommunity])
	assert.Equal(t, 0, totals[shared.MilestoneSales])
}
