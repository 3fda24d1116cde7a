package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telar-hub/progression-engine/internal/application/progression"
	"github.com/telar-hub/progression-engine/internal/domain/achievement"
	"github.com/telar-hub/progression-engine/internal/domain/maturity"
	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
	"github.com/telar-hub/progression-engine/internal/infrastructure/messaging"
	"github.com/telar-hub/progression-engine/pkg/logger"
)

const testUser = "b7c9d3f2-51a8-4e6b-9c0d-8f2e7a1b3c4d"

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type memStateRepo struct {
	mu     sync.Mutex
	states map[shared.UserID]*task.UserProgressionState
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{states: make(map[shared.UserID]*task.UserProgressionState)}
}

func (r *memStateRepo) Get(_ context.Context, userID shared.UserID) (*task.UserProgressionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return state, nil
}

func (r *memStateRepo) Save(_ context.Context, state *task.UserProgressionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.UserID] = state
	return nil
}

type memProgressRepo struct {
	mu      sync.Mutex
	vectors map[shared.UserID]milestone.Vector
}

func newMemProgressRepo() *memProgressRepo {
	return &memProgressRepo{vectors: make(map[shared.UserID]milestone.Vector)}
}

func (r *memProgressRepo) Get(_ context.Context, userID shared.UserID) (milestone.Vector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vector, ok := r.vectors[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return vector, nil
}

func (r *memProgressRepo) Save(_ context.Context, userID shared.UserID, vector milestone.Vector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectors[userID] = vector
	return nil
}

type memHistoryRepo struct {
	mu      sync.Mutex
	records []milestone.HistoryRecord
}

func (r *memHistoryRepo) Record(_ context.Context, record milestone.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.UserID == record.UserID &&
			existing.MilestoneID == record.MilestoneID &&
			existing.Day.Equal(record.Day) {
			return nil
		}
	}
	r.records = append(r.records, record)
	return nil
}

func (r *memHistoryRepo) ListRange(_ context.Context, userID shared.UserID, from, to time.Time) ([]milestone.HistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []milestone.HistoryRecord
	for _, record := range r.records {
		if record.UserID == userID && !record.Day.Before(from) && !record.Day.After(to) {
			out = append(out, record)
		}
	}
	return out, nil
}

type memScoresRepo struct {
	mu     sync.Mutex
	scores map[shared.UserID]*maturity.Scores
}

func newMemScoresRepo() *memScoresRepo {
	return &memScoresRepo{scores: make(map[shared.UserID]*maturity.Scores)}
}

func (r *memScoresRepo) Get(_ context.Context, userID shared.UserID) (*maturity.Scores, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scores, ok := r.scores[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return scores, nil
}

func (r *memScoresRepo) Save(_ context.Context, scores *maturity.Scores) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[scores.UserID] = scores
	return nil
}

type memActionLog struct {
	mu      sync.Mutex
	actions []maturity.TrackedAction
}

func (r *memActionLog) Append(_ context.Context, action maturity.TrackedAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.actions {
		if existing.UserID == action.UserID && existing.ActionID == action.ActionID {
			return shared.ErrAlreadyExists
		}
	}
	r.actions = append(r.actions, action)
	return nil
}

func (r *memActionLog) Exists(_ context.Context, userID shared.UserID, actionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.actions {
		if existing.UserID == userID && existing.ActionID == actionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memActionLog) ListSince(_ context.Context, userID shared.UserID, since time.Time) ([]maturity.TrackedAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []maturity.TrackedAction
	for _, action := range r.actions {
		if action.UserID == userID && !action.TrackedAt.Before(since) {
			out = append(out, action)
		}
	}
	return out, nil
}

type memAchievementRepo struct {
	mu      sync.Mutex
	records []achievement.UserAchievement
}

func (r *memAchievementRepo) Insert(_ context.Context, record achievement.UserAchievement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.UserID == record.UserID && existing.AchievementID == record.AchievementID {
			return shared.ErrAlreadyExists
		}
	}
	r.records = append(r.records, record)
	return nil
}

func (r *memAchievementRepo) ListByUser(_ context.Context, userID shared.UserID) ([]achievement.UserAchievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []achievement.UserAchievement
	for _, record := range r.records {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *memAchievementRepo) Unlocked(_ context.Context, userID shared.UserID) (map[shared.AchievementID]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[shared.AchievementID]bool)
	for _, record := range r.records {
		if record.UserID == userID {
			out[record.AchievementID] = true
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

func testCatalog(t *testing.T) *task.Catalog {
	t.Helper()
	catalog, err := task.NewCatalog("test", []task.TaskDefinition{
		{ID: "open-shop", Title: "Open your shop", Milestone: shared.MilestoneShop, Priority: 1},
		{
			ID: "first-sale", Title: "Make your first sale", Milestone: shared.MilestoneSales, Priority: 2,
			Requirements: &task.Requirements{MustComplete: []shared.TaskID{"open-shop"}},
		},
	})
	require.NoError(t, err)
	return catalog
}

func testServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	t.Cleanup(func() { _ = bus.Close() })

	engine := progression.New(progression.Deps{
		Catalog:            testCatalog(t),
		AchievementCatalog: achievement.BuiltinAchievements(),
		StateRepo:          newMemStateRepo(),
		ProgressRepo:       newMemProgressRepo(),
		HistoryRepo:        &memHistoryRepo{},
		ScoresRepo:         newMemScoresRepo(),
		ActionLogRepo:      &memActionLog{},
		AchievementRepo:    &memAchievementRepo{},
		Publisher:          bus,
	})

	config := DefaultConfig()
	config.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&config)
	}

	return NewServer(config, Dependencies{
		Engine: engine,
		Logger: logger.New(logger.Options{Output: io.Discard}),
	})
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_HealthEndpoints(t *testing.T) {
	s := testServer(t, nil)

	for _, path := range []string{"/health", "/healthz", "/ready", "/live"} {
		rec := doRequest(t, s, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_ReportFactUnlocksTasks(t *testing.T) {
	s := testServer(t, nil)

	rec := doRequest(t, s, http.MethodPost,
		fmt.Sprintf("/api/v1/users/%s/facts", testUser),
		map[string]interface{}{"kind": "shop_created"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	rec = doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/api/v1/users/%s/tasks", testUser), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "open-shop")
}

func TestServer_CompleteTaskFlow(t *testing.T) {
	s := testServer(t, nil)

	rec := doRequest(t, s, http.MethodPost,
		fmt.Sprintf("/api/v1/users/%s/tasks/open-shop/complete", testUser), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Replay reports success with completed=false.
	rec = doRequest(t, s, http.MethodPost,
		fmt.Sprintf("/api/v1/users/%s/tasks/open-shop/complete", testUser), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed":false`)

	rec = doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/api/v1/users/%s/progress", testUser), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CompleteUnknownTask(t *testing.T) {
	s := testServer(t, nil)

	rec := doRequest(t, s, http.MethodPost,
		fmt.Sprintf("/api/v1/users/%s/tasks/no-such-task/complete", testUser), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestServer_RecordHistorySnapshot(t *testing.T) {
	s := testServer(t, nil)

	rec := doRequest(t, s, http.MethodPost,
		fmt.Sprintf("/api/v1/users/%s/tasks/open-shop/complete", testUser), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, s, http.MethodPost,
		fmt.Sprintf("/api/v1/users/%s/history", testUser), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"recorded":`)

	// A user with no cached vector still snapshots; the vector is derived
	// on the fly at zero progress.
	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/users/2f0a4c8e-9b1d-4e3a-8c5f-6d7e8f9a0b1c/history", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"recorded":`)
}

func TestServer_TrackActionValidation(t *testing.T) {
	s := testServer(t, nil)
	path := fmt.Sprintf("/api/v1/users/%s/actions", testUser)

	// Unknown category fails request validation.
	rec := doRequest(t, s, http.MethodPost, path,
		map[string]interface{}{"category": "branding", "points": 10, "action_id": "a1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing action id fails too.
	rec = doRequest(t, s, http.MethodPost, path,
		map[string]interface{}{"category": "marketFit", "points": 10}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown body fields are rejected.
	rec = doRequest(t, s, http.MethodPost, path,
		map[string]interface{}{"category": "marketFit", "points": 10, "action_id": "a1", "bogus": true}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_TrackActionIdempotent(t *testing.T) {
	s := testServer(t, nil)
	path := fmt.Sprintf("/api/v1/users/%s/actions", testUser)
	body := map[string]interface{}{"category": "marketFit", "points": 10, "action_id": "survey-1"}

	rec := doRequest(t, s, http.MethodPost, path, body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"applied":true`)

	rec = doRequest(t, s, http.MethodPost, path, body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"applied":false`)
}

func TestServer_ScoresForNewUser(t *testing.T) {
	s := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/api/v1/users/%s/scores", testUser), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"market_fit":0`)
}

func TestServer_AchievementsCatalog(t *testing.T) {
	s := testServer(t, nil)

	rec := doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/api/v1/users/%s/achievements", testUser), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestServer_APIKeyGuardsWrites(t *testing.T) {
	s := testServer(t, func(c *Config) {
		c.APIKeys = []string{"secret-key"}
	})

	path := fmt.Sprintf("/api/v1/users/%s/facts", testUser)
	body := map[string]interface{}{"kind": "shop_created"}

	// No key.
	rec := doRequest(t, s, http.MethodPost, path, body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key.
	rec = doRequest(t, s, http.MethodPost, path, body, map[string]string{"X-API-Key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid key.
	rec = doRequest(t, s, http.MethodPost, path, body, map[string]string{"X-API-Key": "secret-key"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Reads stay open.
	rec = doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/api/v1/users/%s/tasks", testUser), nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RateLimiting(t *testing.T) {
	s := testServer(t, func(c *Config) {
		c.RateLimitPerMinute = 3
	})

	var last int
	for i := 0; i < 5; i++ {
		rec := doRequest(t, s, http.MethodGet, "/live", nil, nil)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestServer_InvalidJSONBody(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/users/%s/facts", testUser),
		bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
