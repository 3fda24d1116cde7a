package progression

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telar-hub/progression-engine/internal/application/command"
	"github.com/telar-hub/progression-engine/internal/application/eventhandler"
	"github.com/telar-hub/progression-engine/internal/application/query"
	"github.com/telar-hub/progression-engine/internal/domain/achievement"
	"github.com/telar-hub/progression-engine/internal/domain/maturity"
	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
	"github.com/telar-hub/progression-engine/internal/infrastructure/messaging"
)

const testUser = shared.UserID("3f464f64-6dfd-4d39-868f-11dce35e6ce3")

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeStateRepo struct {
	mu     sync.Mutex
	states map[shared.UserID]*task.UserProgressionState
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[shared.UserID]*task.UserProgressionState)}
}

func (r *fakeStateRepo) Get(_ context.Context, userID shared.UserID) (*task.UserProgressionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return state, nil
}

func (r *fakeStateRepo) Save(_ context.Context, state *task.UserProgressionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.UserID] = state
	return nil
}

type fakeProgressRepo struct {
	mu      sync.Mutex
	vectors map[shared.UserID]milestone.Vector
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{vectors: make(map[shared.UserID]milestone.Vector)}
}

func (r *fakeProgressRepo) Get(_ context.Context, userID shared.UserID) (milestone.Vector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vector, ok := r.vectors[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return vector, nil
}

func (r *fakeProgressRepo) Save(_ context.Context, userID shared.UserID, vector milestone.Vector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectors[userID] = vector
	return nil
}

type fakeHistoryRepo struct {
	mu   sync.Mutex
	rows []milestone.HistoryRecord
}

func (r *fakeHistoryRepo) Record(_ context.Context, record milestone.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == record.UserID && row.MilestoneID == record.MilestoneID && row.Day.Equal(record.Day) {
			return nil
		}
	}
	r.rows = append(r.rows, record)
	return nil
}

func (r *fakeHistoryRepo) ListRange(_ context.Context, userID shared.UserID, from, to time.Time) ([]milestone.HistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []milestone.HistoryRecord
	for _, row := range r.rows {
		if row.UserID == userID && !row.Day.Before(from) && !row.Day.After(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeScoresRepo struct {
	mu     sync.Mutex
	scores map[shared.UserID]*maturity.Scores
}

func newFakeScoresRepo() *fakeScoresRepo {
	return &fakeScoresRepo{scores: make(map[shared.UserID]*maturity.Scores)}
}

func (r *fakeScoresRepo) Get(_ context.Context, userID shared.UserID) (*maturity.Scores, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scores, ok := r.scores[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *scores
	return &copied, nil
}

func (r *fakeScoresRepo) Save(_ context.Context, scores *maturity.Scores) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *scores
	r.scores[scores.UserID] = &copied
	return nil
}

type fakeActionLog struct {
	mu      sync.Mutex
	entries []maturity.TrackedAction
}

func (r *fakeActionLog) Append(_ context.Context, action maturity.TrackedAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.UserID == action.UserID && e.ActionID == action.ActionID {
			return shared.ErrAlreadyExists
		}
	}
	r.entries = append(r.entries, action)
	return nil
}

func (r *fakeActionLog) Exists(_ context.Context, userID shared.UserID, actionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.UserID == userID && e.ActionID == actionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeActionLog) ListSince(_ context.Context, userID shared.UserID, since time.Time) ([]maturity.TrackedAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []maturity.TrackedAction
	for _, e := range r.entries {
		if e.UserID == userID && !e.TrackedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeAchievementRepo struct {
	mu      sync.Mutex
	records []achievement.UserAchievement
}

func (r *fakeAchievementRepo) Insert(_ context.Context, record achievement.UserAchievement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.UserID == record.UserID && rec.AchievementID == record.AchievementID {
			return shared.ErrAlreadyExists
		}
	}
	r.records = append(r.records, record)
	return nil
}

func (r *fakeAchievementRepo) ListByUser(_ context.Context, userID shared.UserID) ([]achievement.UserAchievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []achievement.UserAchievement
	for _, rec := range r.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeAchievementRepo) Unlocked(_ context.Context, userID shared.UserID) (map[shared.AchievementID]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[shared.AchievementID]bool)
	for _, rec := range r.records {
		if rec.UserID == userID {
			out[rec.AchievementID] = true
		}
	}
	return out, nil
}

// eventRecorder captures everything published on the bus.
type eventRecorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *eventRecorder) record(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) ofType(t shared.EventType) []shared.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.Event
	for _, e := range r.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

// threeTaskCatalog mirrors the A/B/C shop example: A has no requirements,
// B needs A completed, C needs five products.
func threeTaskCatalog(t *testing.T) *task.Catalog {
	t.Helper()
	catalog, err := task.NewCatalog("test", []task.TaskDefinition{
		{ID: "A", Title: "Task A", Milestone: shared.MilestoneShop, Priority: 1},
		{
			ID: "B", Title: "Task B", Milestone: shared.MilestoneShop, Priority: 2,
			Requirements: &task.Requirements{MustComplete: []shared.TaskID{"A"}},
		},
		{
			ID: "C", Title: "Task C", Milestone: shared.MilestoneShop, Priority: 3,
			Requirements: &task.Requirements{MustHave: &task.StateCondition{Products: &task.MinProducts{Min: 5}}},
		},
	})
	require.NoError(t, err)
	return catalog
}

type engineFixture struct {
	engine   *Engine
	bus      *messaging.InMemoryEventBus
	recorder *eventRecorder
	deps     Deps
}

func newEngineFixture(t *testing.T, catalog *task.Catalog) *engineFixture {
	t.Helper()

	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	t.Cleanup(func() { _ = bus.Close() })

	recorder := &eventRecorder{}
	bus.SubscribeAll(recorder.record)

	deps := Deps{
		Catalog:            catalog,
		AchievementCatalog: achievement.BuiltinAchievements(),
		StateRepo:          newFakeStateRepo(),
		ProgressRepo:       newFakeProgressRepo(),
		HistoryRepo:        &fakeHistoryRepo{},
		ScoresRepo:         newFakeScoresRepo(),
		ActionLogRepo:      &fakeActionLog{},
		AchievementRepo:    &fakeAchievementRepo{},
		Publisher:          bus,
	}

	return &engineFixture{
		engine:   New(deps),
		bus:      bus,
		recorder: recorder,
		deps:     deps,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCENARIO TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestEngine_ShopScenario(t *testing.T) {
	fx := newEngineFixture(t, threeTaskCatalog(t))
	ctx := context.Background()

	// Blank state: only A is unlocked.
	partition, err := fx.engine.GetUnlockedTasks(ctx, query.GetUnlockedTasksQuery{UserID: testUser})
	require.NoError(t, err)
	require.Len(t, partition.Unlocked, 1)
	assert.Equal(t, shared.TaskID("A"), partition.Unlocked[0].ID)
	assert.Len(t, partition.Locked, 2)

	// Completing A unlocks B; C stays locked; progress 33%.
	result, err := fx.engine.CompleteTask(ctx, command.CompleteTaskCommand{UserID: testUser, TaskID: "A"})
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, []shared.TaskID{"B"}, result.Unlocked)

	shop, _ := result.Vector.Get(shared.MilestoneShop)
	assert.Equal(t, 33, shop.Progress)

	// Reporting five products unlocks C; progress unchanged.
	factResult, err := fx.engine.ReportFact(ctx, command.ReportFactCommand{
		UserID: testUser,
		Fact:   task.ProductAdded(5),
	})
	require.NoError(t, err)
	assert.True(t, factResult.Changed)
	assert.ElementsMatch(t, []shared.TaskID{"B", "C"}, factResult.Unlocked)

	shop, _ = factResult.Vector.Get(shared.MilestoneShop)
	assert.Equal(t, 33, shop.Progress)

	// Completing B and C takes the milestone to 100.
	_, err = fx.engine.CompleteTask(ctx, command.CompleteTaskCommand{UserID: testUser, TaskID: "B"})
	require.NoError(t, err)
	final, err := fx.engine.CompleteTask(ctx, command.CompleteTaskCommand{UserID: testUser, TaskID: "C"})
	require.NoError(t, err)

	shop, _ = final.Vector.Get(shared.MilestoneShop)
	assert.Equal(t, 100, shop.Progress)

	// milestone.completed fired exactly once, even after another recompute.
	_, err = fx.engine.ReconcileState(ctx, command.ReconcileStateCommand{UserID: testUser})
	require.NoError(t, err)
	assert.Len(t, fx.recorder.ofType(shared.EventMilestoneCompleted), 1)
}

func TestEngine_UnlocksAreMonotonic(t *testing.T) {
	fx := newEngineFixture(t, threeTaskCatalog(t))
	ctx := context.Background()

	unlockedAfter := func() map[shared.TaskID]bool {
		partition, err := fx.engine.GetUnlockedTasks(ctx, query.GetUnlockedTasksQuery{UserID: testUser})
		require.NoError(t, err)
		seen := make(map[shared.TaskID]bool)
		for _, d := range partition.Unlocked {
			seen[d.ID] = true
		}
		for _, d := range partition.Completed {
			seen[d.ID] = true
		}
		return seen
	}

	steps := []func(){
		func() {
			_, err := fx.engine.ReportFact(ctx, command.ReportFactCommand{UserID: testUser, Fact: task.ProductAdded(5)})
			require.NoError(t, err)
		},
		func() {
			_, err := fx.engine.CompleteTask(ctx, command.CompleteTaskCommand{UserID: testUser, TaskID: "A"})
			require.NoError(t, err)
		},
		func() {
			// Re-reporting a smaller product count must not relock C.
			_, err := fx.engine.ReportFact(ctx, command.ReportFactCommand{UserID: testUser, Fact: task.ProductAdded(2)})
			require.NoError(t, err)
		},
	}

	previous := unlockedAfter()
	for _, step := range steps {
		step()
		current := unlockedAfter()
		for id := range previous {
			assert.True(t, current[id], "task %s regressed to locked", id)
		}
		previous = current
	}
}

func TestEngine_TrackActionIdempotent(t *testing.T) {
	fx := newEngineFixture(t, threeTaskCatalog(t))
	ctx := context.Background()

	first, err := fx.engine.TrackAction(ctx, command.TrackActionCommand{
		UserID:   testUser,
		Category: shared.CategoryMonetization,
		Points:   80,
		ActionID: "sale-1",
	})
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, 80, first.Scores.Monetization)

	replay, err := fx.engine.TrackAction(ctx, command.TrackActionCommand{
		UserID:   testUser,
		Category: shared.CategoryMonetization,
		Points:   80,
		ActionID: "sale-1",
	})
	require.NoError(t, err)
	assert.False(t, replay.Applied)
	assert.Equal(t, 80, replay.Scores.Monetization)

	// One log entry, one score event.
	log := fx.deps.ActionLogRepo.(*fakeActionLog)
	assert.Len(t, log.entries, 1)
	assert.Len(t, fx.recorder.ofType(shared.EventScoreUpdated), 1)
}

func TestEngine_ScoreClampsAtCap(t *testing.T) {
	fx := newEngineFixture(t, threeTaskCatalog(t))
	ctx := context.Background()

	for i, points := range []int{40, 40, 40} {
		_, err := fx.engine.TrackAction(ctx, command.TrackActionCommand{
			UserID:   testUser,
			Category: shared.CategoryMarketFit,
			Points:   points,
			ActionID: string(rune('a' + i)),
		})
		require.NoError(t, err)
	}

	scores, err := fx.engine.GetMaturityScores(ctx, query.GetMaturityScoresQuery{UserID: testUser})
	require.NoError(t, err)
	assert.Equal(t, 100, scores.MarketFit)

	// Overshoot actions still land in the audit log.
	log := fx.deps.ActionLogRepo.(*fakeActionLog)
	assert.Len(t, log.entries, 3)
}

func TestEngine_SingleOvercapAwardClamps(t *testing.T) {
	fx := newEngineFixture(t, threeTaskCatalog(t))
	ctx := context.Background()

	// One award bigger than the cap itself is recorded at the clamped
	// value, never rejected; the overshoot points are lost.
	result, err := fx.engine.TrackAction(ctx, command.TrackActionCommand{
		UserID:   testUser,
		Category: shared.CategoryMonetization,
		Points:   150,
		ActionID: "big-sale",
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, 100, result.Scores.Monetization)

	log := fx.deps.ActionLogRepo.(*fakeActionLog)
	assert.Len(t, log.entries, 1)
	assert.Len(t, fx.recorder.ofType(shared.EventScoreUpdated), 1)
}

func TestEngine_TrackActionRejectsBadInput(t *testing.T) {
	fx := newEngineFixture(t, threeTaskCatalog(t))
	ctx := context.Background()

	_, err := fx.engine.TrackAction(ctx, command.TrackActionCommand{
		UserID:   testUser,
		Category: shared.MaturityCategory("vibes"),
		Points:   10,
		ActionID: "x",
	})
	assert.Error(t, err)

	_, err = fx.engine.TrackAction(ctx, command.TrackActionCommand{
		UserID:   testUser,
		Category: shared.CategoryMarketFit,
		Points:   0,
		ActionID: "x",
	})
	assert.Error(t, err)

	// Nothing mutated, nothing published.
	log := fx.deps.ActionLogRepo.(*fakeActionLog)
	assert.Empty(t, log.entries)
	assert.Empty(t, fx.recorder.ofType(shared.EventScoreUpdated))
}

func TestEngine_ReconcileAutoCompletes(t *testing.T) {
	fx := newEngineFixture(t, task.FixedTasks())
	ctx := context.Background()

	// The user uploaded five products elsewhere; the facts arrive, then a
	// sweep detects the product tasks whose predicates now hold.
	_, err := fx.engine.ReportFact(ctx, command.ReportFactCommand{UserID: testUser, Fact: task.Fact{Kind: task.FactShopCreated}})
	require.NoError(t, err)
	_, err = fx.engine.ReportFact(ctx, command.ReportFactCommand{UserID: testUser, Fact: task.ProductAdded(5)})
	require.NoError(t, err)

	result, err := fx.engine.ReconcileState(ctx, command.ReconcileStateCommand{UserID: testUser})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AutoCompleted)

	// Facts alone never complete tasks; only the sweep does.
	second, err := fx.engine.ReconcileState(ctx, command.ReconcileStateCommand{UserID: testUser})
	require.NoError(t, err)
	assert.Empty(t, second.AutoCompleted)
}

func TestEngine_TasksGeneratedOnNewUnlocks(t *testing.T) {
	fx := newEngineFixture(t, threeTaskCatalog(t))
	ctx := context.Background()

	// First contact: the initial partition is not "new" tasks.
	_, err := fx.engine.ReportFact(ctx, command.ReportFactCommand{UserID: testUser, Fact: task.Fact{Kind: task.FactShopCreated}})
	require.NoError(t, err)
	assert.Empty(t, fx.recorder.ofType(shared.EventMilestoneTasksGenerated))

	// Completing A unlocks B.
	_, err = fx.engine.CompleteTask(ctx, command.CompleteTaskCommand{UserID: testUser, TaskID: "A"})
	require.NoError(t, err)

	generated := fx.recorder.ofType(shared.EventMilestoneTasksGenerated)
	require.Len(t, generated, 1)
	assert.Equal(t, []string{"B"}, generated[0].Payload()["new_tasks"])

	// Replaying the completion generates nothing further.
	_, err = fx.engine.CompleteTask(ctx, command.CompleteTaskCommand{UserID: testUser, TaskID: "A"})
	require.NoError(t, err)
	assert.Len(t, fx.recorder.ofType(shared.EventMilestoneTasksGenerated), 1)
}

func TestEngine_RecordHistoryFirstWriteWins(t *testing.T) {
	fx := newEngineFixture(t, threeTaskCatalog(t))
	ctx := context.Background()

	_, err := fx.engine.CompleteTask(ctx, command.CompleteTaskCommand{UserID: testUser, TaskID: "A"})
	require.NoError(t, err)

	written, err := fx.engine.RecordHistory(ctx, testUser)
	require.NoError(t, err)
	assert.Greater(t, written, 0)

	repo := fx.deps.HistoryRepo.(*fakeHistoryRepo)
	rowsAfterFirst := len(repo.rows)

	// Same-day replay leaves the stored rows untouched.
	_, err = fx.engine.RecordHistory(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, repo.rows, rowsAfterFirst)

	// A user with no cached vector gets one derived on the fly and
	// snapshots at zero progress.
	written, err = fx.engine.RecordHistory(ctx, "c2a79e41-8f0b-4f4c-9d3e-5a6b7c8d9e0f")
	require.NoError(t, err)
	assert.Greater(t, written, 0)
	assert.Greater(t, len(repo.rows), rowsAfterFirst)
}

func TestEngine_AchievementGrantedOnMilestoneCompleted(t *testing.T) {
	fx := newEngineFixture(t, threeTaskCatalog(t))
	ctx := context.Background()

	// Wire the achievement subscriber the way the composition root does.
	checker := achievement.NewChecker(fx.deps.AchievementCatalog, fx.deps.AchievementRepo)
	handler := eventhandler.NewOnMilestoneCompletedHandler(checker, fx.deps.ProgressRepo, fx.bus, nil)
	fx.bus.Subscribe(shared.EventMilestoneCompleted, handler.Handle)

	_, err := fx.engine.ReportFact(ctx, command.ReportFactCommand{UserID: testUser, Fact: task.ProductAdded(5)})
	require.NoError(t, err)
	for _, id := range []shared.TaskID{"A", "B", "C"} {
		_, err := fx.engine.CompleteTask(ctx, command.CompleteTaskCommand{UserID: testUser, TaskID: id})
		require.NoError(t, err)
	}

	unlocked := fx.recorder.ofType(shared.EventAchievementUnlocked)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "shopkeeper", unlocked[0].Payload()["achievement_id"])

	// Redelivery grants nothing new.
	repo := fx.deps.AchievementRepo.(*fakeAchievementRepo)
	assert.Len(t, repo.records, 1)
}

func TestEngine_ConcurrentUsersDoNotInterfere(t *testing.T) {
	fx := newEngineFixture(t, threeTaskCatalog(t))
	ctx := context.Background()

	users := []shared.UserID{
		"3f464f64-6dfd-4d39-868f-11dce35e6ce3",
		"7ed99bd0-87b2-4dbb-a97b-596c3f29c49b",
		"9ca4322d-ebd5-4ffa-a340-56fe811bbab1",
	}

	var wg sync.WaitGroup
	for _, userID := range users {
		wg.Add(1)
		go func(u shared.UserID) {
			defer wg.Done()
			_, err := fx.engine.CompleteTask(ctx, command.CompleteTaskCommand{UserID: u, TaskID: "A"})
			assert.NoError(t, err)
			_, err = fx.engine.ReportFact(ctx, command.ReportFactCommand{UserID: u, Fact: task.ProductAdded(5)})
			assert.NoError(t, err)
		}(userID)
	}
	wg.Wait()

	for _, userID := range users {
		partition, err := fx.engine.GetUnlockedTasks(ctx, query.GetUnlockedTasksQuery{UserID: userID})
		require.NoError(t, err)
		assert.Len(t, partition.Completed, 1)
		assert.ElementsMatch(t,
			[]shared.TaskID{"B", "C"},
			[]shared.TaskID{partition.Unlocked[0].ID, partition.Unlocked[1].ID},
		)
	}
}
