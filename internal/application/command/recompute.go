// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS RECOMPUTATION
// Shared by every command that mutates progression state: re-evaluates the
// catalog, diffs milestone progress against the stored vector, publishes
// the resulting transitions.
// ══════════════════════════════════════════════════════════════════════════════

// Recomputer re-derives milestone progress after a state change.
type Recomputer struct {
	catalog      *task.Catalog
	progressRepo milestone.ProgressRepository
	aggregator   *milestone.Aggregator
	publisher    shared.EventPublisher
}

// NewRecomputer creates a progress recomputer.
func NewRecomputer(
	catalog *task.Catalog,
	progressRepo milestone.ProgressRepository,
	publisher shared.EventPublisher,
) *Recomputer {
	return &Recomputer{
		catalog:      catalog,
		progressRepo: progressRepo,
		aggregator:   milestone.NewAggregator(),
		publisher:    publisher,
	}
}

// RecomputeResult is the outcome of one recomputation pass.
type RecomputeResult struct {
	Partition   task.Partition
	Vector      milestone.Vector
	Transitions []milestone.Transition
	Events      []shared.Event
}

// Recompute evaluates the catalog for the user's current state, persists
// the fresh progress vector and publishes any milestone transitions.
// Tasks that were locked in the pre-mutation partition and are unlocked
// now additionally produce milestone.tasks.generated, one event per
// affected milestone.
//
// These events go through Publish, never the debounced path: they are
// exactly-once signals derived from a monotonic diff, so dropping one
// would lose it forever.
func (r *Recomputer) Recompute(ctx context.Context, before task.Partition, state *task.UserProgressionState) (*RecomputeResult, error) {
	partition := task.Evaluate(r.catalog, state)
	vector := milestone.ComputeVector(r.catalog, partition)

	previous, err := r.progressRepo.Get(ctx, state.UserID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("recompute: load previous vector: %w", err)
	}

	transitions := r.aggregator.Diff(previous, vector)

	if err := r.progressRepo.Save(ctx, state.UserID, vector); err != nil {
		return nil, fmt.Errorf("recompute: save vector: %w", err)
	}

	events := r.aggregator.Events(state.UserID, transitions)
	events = append(events, tasksGeneratedEvents(state.UserID, before, partition, vector)...)
	for _, event := range events {
		_ = r.publisher.Publish(event)
	}

	return &RecomputeResult{
		Partition:   partition,
		Vector:      vector,
		Transitions: transitions,
		Events:      events,
	}, nil
}

// Partition evaluates the catalog against the state without persisting
// anything. Handlers call it before mutating state so Recompute can diff
// the unlocked sets.
func (r *Recomputer) Partition(state *task.UserProgressionState) task.Partition {
	return task.Evaluate(r.catalog, state)
}

// Catalog exposes the catalog the recomputer evaluates against.
func (r *Recomputer) Catalog() *task.Catalog {
	return r.catalog
}

// tasksGeneratedEvents builds one milestone.tasks.generated per milestone
// that gained unlocked tasks between the two partitions. Unlocks are
// monotonic, so a task absent from both prior sets is genuinely new.
func tasksGeneratedEvents(userID shared.UserID, before, after task.Partition, vector milestone.Vector) []shared.Event {
	known := make(map[shared.TaskID]bool, len(before.Unlocked)+len(before.Completed))
	for _, def := range before.Unlocked {
		known[def.ID] = true
	}
	for _, def := range before.Completed {
		known[def.ID] = true
	}

	fresh := make(map[shared.MilestoneID][]shared.TaskID)
	var order []shared.MilestoneID
	for _, def := range after.Unlocked {
		if known[def.ID] {
			continue
		}
		if _, ok := fresh[def.Milestone]; !ok {
			order = append(order, def.Milestone)
		}
		fresh[def.Milestone] = append(fresh[def.Milestone], def.ID)
	}

	var events []shared.Event
	for _, id := range order {
		progress, _ := vector.Get(id)
		events = append(events, shared.NewMilestoneTasksGeneratedEvent(userID, progress.Snapshot(), fresh[id]))
	}
	return events
}
