package task

import (
	"sort"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENT EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// Partition is the evaluator output: a disjoint split of the whole catalog.
// Every catalog task appears in exactly one of the three slices.
type Partition struct {
	Unlocked  []TaskDefinition
	Locked    []TaskDefinition
	Completed []TaskDefinition
}

// UnlockedIDs returns the unlocked task ids in partition order.
func (p Partition) UnlockedIDs() []shared.TaskID {
	return taskIDs(p.Unlocked)
}

// CompletedIDs returns the completed task ids in partition order.
func (p Partition) CompletedIDs() []shared.TaskID {
	return taskIDs(p.Completed)
}

func taskIDs(defs []TaskDefinition) []shared.TaskID {
	ids := make([]shared.TaskID, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	return ids
}

// UnlockedByMilestone groups the unlocked task ids per milestone.
func (p Partition) UnlockedByMilestone() map[shared.MilestoneID][]shared.TaskID {
	out := make(map[shared.MilestoneID][]shared.TaskID)
	for _, d := range p.Unlocked {
		out[d.Milestone] = append(out[d.Milestone], d.ID)
	}
	return out
}

// CompletedByMilestone counts completed tasks per milestone.
func (p Partition) CompletedByMilestone() map[shared.MilestoneID]int {
	out := make(map[shared.MilestoneID]int)
	for _, d := range p.Completed {
		out[d.Milestone]++
	}
	return out
}

// Evaluate partitions the catalog for one user.
//
// Pure function over (catalog, state): no side effects, safe for concurrent
// callers, cheap enough to run on every state mutation.
//
// A task is unlocked iff it is not completed, every id in its mustComplete
// list is completed, and every mustHave predicate holds. A task with no
// requirements is always unlocked. Completed tasks are reported as completed,
// never as unlocked. Requirements never reference state negatively, so the
// unlocked set is monotonic in the state.
//
// Output ordering is deterministic: ascending priority, then catalog
// declaration order.
func Evaluate(catalog *Catalog, state *UserProgressionState) Partition {
	var p Partition

	for _, def := range catalog.Tasks() {
		switch {
		case state.IsTaskCompleted(def.ID):
			p.Completed = append(p.Completed, def)
		case isUnlocked(catalog, def, state):
			p.Unlocked = append(p.Unlocked, def)
		default:
			p.Locked = append(p.Locked, def)
		}
	}

	sortTasks(catalog, p.Unlocked)
	sortTasks(catalog, p.Locked)
	sortTasks(catalog, p.Completed)
	return p
}

func isUnlocked(catalog *Catalog, def TaskDefinition, state *UserProgressionState) bool {
	if def.Requirements == nil {
		return true
	}
	for _, dep := range def.Requirements.MustComplete {
		// Unknown references fail closed; catalog validation rejects them,
		// so this only matters for states built against an older catalog.
		if !catalog.Contains(dep) {
			return false
		}
		if !state.IsTaskCompleted(dep) {
			return false
		}
	}
	return def.Requirements.MustHave.SatisfiedBy(state)
}

func sortTasks(catalog *Catalog, defs []TaskDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Priority != defs[j].Priority {
			return defs[i].Priority < defs[j].Priority
		}
		return catalog.DeclarationIndex(defs[i].ID) < catalog.DeclarationIndex(defs[j].ID)
	})
}

// AutoCompletable returns the ids of tasks whose CompletedWhen predicate is
// satisfied by the state but that are not yet in the completed set.
// Used by reconciliation only; plain fact reporting never auto-completes.
func AutoCompletable(catalog *Catalog, state *UserProgressionState) []shared.TaskID {
	var out []shared.TaskID
	for _, def := range catalog.Tasks() {
		if def.CompletedWhen == nil || state.IsTaskCompleted(def.ID) {
			continue
		}
		if def.CompletedWhen.SatisfiedBy(state) {
			out = append(out, def.ID)
		}
	}
	return out
}
