// Package milestone rolls task completions up into named milestones with
// percentage progress and detects progress transitions.
package milestone

import (
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress is the derived per-milestone progress record.
// It is recomputed from completedTaskIds and the catalog on every state
// change; it is never the source of truth.
type Progress struct {
	MilestoneID    shared.MilestoneID `json:"milestone_id"`
	TasksCompleted int                `json:"tasks_completed"`
	TotalTasks     int                `json:"total_tasks"`

	// Progress is floor(100 * TasksCompleted / TotalTasks), in [0,100].
	// A milestone with no catalog tasks reports 0.
	Progress int `json:"progress"`

	// Unlocked counts currently unlocked (not completed) tasks.
	Unlocked int `json:"unlocked"`

	// Weight is the milestone's display threshold on the journey bar.
	Weight int `json:"weight"`
}

// Snapshot converts the record to the event payload form.
func (p Progress) Snapshot() shared.MilestoneSnapshot {
	return shared.MilestoneSnapshot{
		MilestoneID:    p.MilestoneID,
		TasksCompleted: p.TasksCompleted,
		TotalTasks:     p.TotalTasks,
		Progress:       p.Progress,
	}
}

// Complete reports whether the milestone is at 100%.
func (p Progress) Complete() bool {
	return p.TotalTasks > 0 && p.Progress >= shared.MaxScore
}

// Display threshold weights for the journey bar, in journey order.
var milestoneWeights = map[shared.MilestoneID]int{
	shared.MilestoneFormalization: 10,
	shared.MilestoneBrand:         20,
	shared.MilestoneShop:          50,
	shared.MilestoneSales:         70,
	shared.MilestoneCommunity:     90,
}

// Vector is the full per-user progress vector in fixed milestone order.
type Vector []Progress

// Get returns the entry for a milestone.
func (v Vector) Get(id shared.MilestoneID) (Progress, bool) {
	for _, p := range v {
		if p.MilestoneID == id {
			return p, true
		}
	}
	return Progress{}, false
}

// ComputeVector derives the progress vector from an evaluator partition.
//
// TotalTasks counts the entire catalog for each milestone, not just
// currently-unlocked tasks, so progress can never regress when a new task
// unlocks. Division rounds down.
func ComputeVector(catalog *task.Catalog, partition task.Partition) Vector {
	totals := catalog.TotalByMilestone()
	completed := partition.CompletedByMilestone()
	unlocked := partition.UnlockedByMilestone()

	vector := make(Vector, 0, len(shared.AllMilestones()))
	for _, id := range shared.AllMilestones() {
		total := totals[id]
		done := completed[id]

		pct := 0
		if total > 0 {
			pct = (done * 100) / total
		}

		vector = append(vector, Progress{
			MilestoneID:    id,
			TasksCompleted: done,
			TotalTasks:     total,
			Progress:       pct,
			Unlocked:       len(unlocked[id]),
			Weight:         milestoneWeights[id],
		})
	}
	return vector
}

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY
// ══════════════════════════════════════════════════════════════════════════════

// HistoryRecord is a time-stamped copy of one milestone's progress, written
// at most once per (user, milestone, calendar day) for trend charts.
type HistoryRecord struct {
	ID             string
	UserID         shared.UserID
	MilestoneID    shared.MilestoneID
	Day            time.Time // UTC midnight
	Progress       int
	TasksCompleted int
	TotalTasks     int
	RecordedAt     time.Time
}
