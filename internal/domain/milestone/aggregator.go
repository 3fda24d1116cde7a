package milestone

import (
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION DETECTION
// ══════════════════════════════════════════════════════════════════════════════

// AlmostCompleteThreshold is the progress percentage at or above which a
// milestone is announced as almost complete.
const AlmostCompleteThreshold = 80

// Transition is a milestone state change detected between two successive
// progress vectors. Each kind fires at most once per upward crossing.
type Transition struct {
	Kind     shared.EventType
	Progress Progress
}

// Aggregator compares a freshly computed progress vector against the
// previous one and produces the milestone transitions that occurred.
// It is pure; persistence of the previous vector is the caller's concern.
type Aggregator struct{}

// NewAggregator creates a transition detector.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Diff returns the transitions between prev and next, in fixed milestone
// order. A nil or empty prev is treated as an all-zero baseline, so a first
// evaluation can still announce unlocks.
//
// Rules:
//   - milestone.unlocked fires when a milestone gains its first unlocked or
//     completed task (it had no visible tasks before).
//   - milestone.almost_complete fires when progress crosses the threshold
//     upward while still below 100.
//   - milestone.completed fires when progress first reaches 100.
//
// Progress never regresses, so each transition fires exactly once per user
// per milestone.
func (a *Aggregator) Diff(prev, next Vector) []Transition {
	var transitions []Transition
	for _, cur := range next {
		var old Progress
		if prev != nil {
			old, _ = prev.Get(cur.MilestoneID)
		}

		if !visible(old) && visible(cur) {
			transitions = append(transitions, Transition{Kind: shared.EventMilestoneUnlocked, Progress: cur})
		}
		if old.Progress < AlmostCompleteThreshold && cur.Progress >= AlmostCompleteThreshold && cur.Progress < 100 {
			transitions = append(transitions, Transition{Kind: shared.EventMilestoneAlmostComplete, Progress: cur})
		}
		if old.Progress < 100 && cur.Progress >= 100 && cur.TotalTasks > 0 {
			transitions = append(transitions, Transition{Kind: shared.EventMilestoneCompleted, Progress: cur})
		}
	}
	return transitions
}

// visible reports whether the user can see any task of the milestone.
func visible(p Progress) bool {
	return p.Unlocked > 0 || p.TasksCompleted > 0
}

// Events materializes transitions into domain events for a user.
func (a *Aggregator) Events(userID shared.UserID, transitions []Transition) []shared.Event {
	events := make([]shared.Event, 0, len(transitions))
	for _, t := range transitions {
		switch t.Kind {
		case shared.EventMilestoneUnlocked:
			events = append(events, shared.NewMilestoneUnlockedEvent(userID, t.Progress.Snapshot()))
		case shared.EventMilestoneAlmostComplete:
			events = append(events, shared.NewMilestoneAlmostCompleteEvent(userID, t.Progress.Snapshot()))
		case shared.EventMilestoneCompleted:
			events = append(events, shared.NewMilestoneCompletedEvent(userID, t.Progress.Snapshot()))
		}
	}
	return events
}
