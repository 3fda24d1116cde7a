// Package http exposes the progression engine over a REST API.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/telar-hub/progression-engine/internal/application/command"
	"github.com/telar-hub/progression-engine/internal/application/query"
	"github.com/telar-hub/progression-engine/internal/domain/maturity"
	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
	"github.com/telar-hub/progression-engine/pkg/logger"
)

// validate checks request body structs before they become commands.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Telar Progression Engine API",
		"version":     "v1",
		"description": "REST API for artisan shop progression: tasks, milestones, maturity and achievements",
		"endpoints": map[string]string{
			"health":       "/health",
			"tasks":        "/api/v1/users/{userID}/tasks",
			"progress":     "/api/v1/users/{userID}/progress",
			"scores":       "/api/v1/users/{userID}/scores",
			"achievements": "/api/v1/users/{userID}/achievements",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE HANDLERS
// Command results are mapped to response DTOs; domain events stay
// internal and reach subscribers through the bus, not the API.
// ══════════════════════════════════════════════════════════════════════════════

// factResponse is the body returned by fact reporting.
type factResponse struct {
	Changed  bool             `json:"changed"`
	Unlocked []shared.TaskID  `json:"unlocked"`
	Vector   milestone.Vector `json:"vector"`
}

// completionResponse is the body returned by task completion.
type completionResponse struct {
	Completed bool             `json:"completed"`
	Unlocked  []shared.TaskID  `json:"unlocked"`
	Vector    milestone.Vector `json:"vector"`
}

// actionResponse is the body returned by action tracking.
type actionResponse struct {
	Applied bool             `json:"applied"`
	Scores  *maturity.Scores `json:"scores"`
}

// reconcileResponse is the body returned by a reconciliation sweep.
type reconcileResponse struct {
	AutoCompleted []shared.TaskID  `json:"auto_completed"`
	Vector        milestone.Vector `json:"vector"`
}

// historyResponse is the body returned by an on-demand history snapshot.
type historyResponse struct {
	Recorded int `json:"recorded"`
}

// reportFactRequest is the body of POST /api/v1/users/{userID}/facts.
type reportFactRequest struct {
	// Kind is the business fact that became true.
	Kind string `json:"kind" validate:"required"`

	// Count is the observed product total (product_added only).
	Count int `json:"count" validate:"gte=0"`

	// Block is the completed assessment block (maturity_block_completed only).
	Block int `json:"block" validate:"gte=0"`

	// Timestamp is when the fact was observed. Zero means now.
	Timestamp time.Time `json:"timestamp"`
}

// handleReportFact handles POST /api/v1/users/{userID}/facts
func (s *Server) handleReportFact(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	var req reportFactRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.ReportFactCommand{
		UserID: shared.UserID(userID),
		Fact: task.Fact{
			Kind:  task.FactKind(req.Kind),
			Count: req.Count,
			Block: req.Block,
		},
		Timestamp: req.Timestamp,
	}

	result, err := s.deps.Engine.ReportFact(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, "report fact", err)
		return
	}

	writeJSON(w, http.StatusOK, factResponse{
		Changed:  result.Changed,
		Unlocked: result.Unlocked,
		Vector:   result.Vector,
	})
}

// handleCompleteTask handles POST /api/v1/users/{userID}/tasks/{taskID}/complete
func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	taskID := chi.URLParam(r, "taskID")
	if userID == "" || taskID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID and task ID are required")
		return
	}

	cmd := command.CompleteTaskCommand{
		UserID: shared.UserID(userID),
		TaskID: shared.TaskID(taskID),
	}

	result, err := s.deps.Engine.CompleteTask(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, "complete task", err)
		return
	}

	// An already-completed task is reported as success with completed=false,
	// matching the command's replay semantics.
	writeJSON(w, http.StatusOK, completionResponse{
		Completed: result.Completed,
		Unlocked:  result.Unlocked,
		Vector:    result.Vector,
	})
}

// trackActionRequest is the body of POST /api/v1/users/{userID}/actions.
type trackActionRequest struct {
	// Category is one of the four maturity categories.
	Category string `json:"category" validate:"required,oneof=ideaValidation userExperience marketFit monetization"`

	// Points to award, positive.
	Points int `json:"points" validate:"required,gt=0"`

	// ActionID is the caller's idempotency key.
	ActionID string `json:"action_id" validate:"required,max=128"`

	// Description is free text for the audit log.
	Description string `json:"description" validate:"max=512"`

	// Timestamp is when the action happened. Zero means now.
	Timestamp time.Time `json:"timestamp"`
}

// handleTrackAction handles POST /api/v1/users/{userID}/actions
func (s *Server) handleTrackAction(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	var req trackActionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.TrackActionCommand{
		UserID:      shared.UserID(userID),
		Category:    shared.MaturityCategory(req.Category),
		Points:      req.Points,
		ActionID:    req.ActionID,
		Description: req.Description,
		Timestamp:   req.Timestamp,
	}

	result, err := s.deps.Engine.TrackAction(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, "track action", err)
		return
	}

	// A replayed action id is reported as success with applied=false.
	writeJSON(w, http.StatusOK, actionResponse{
		Applied: result.Applied,
		Scores:  result.Scores,
	})
}

// handleReconcile handles POST /api/v1/users/{userID}/reconcile
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	cmd := command.ReconcileStateCommand{UserID: shared.UserID(userID)}

	result, err := s.deps.Engine.ReconcileState(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, "reconcile state", err)
		return
	}

	writeJSON(w, http.StatusOK, reconcileResponse{
		AutoCompleted: result.AutoCompleted,
		Vector:        result.Vector,
	})
}

// handleRecordHistory handles POST /api/v1/users/{userID}/history
func (s *Server) handleRecordHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	written, err := s.deps.Engine.RecordHistory(r.Context(), shared.UserID(userID))
	if err != nil {
		s.writeCommandError(w, "record history", err)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{Recorded: written})
}

// ══════════════════════════════════════════════════════════════════════════════
// READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetTasks handles GET /api/v1/users/{userID}/tasks
func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	q := query.GetUnlockedTasksQuery{
		UserID:    shared.UserID(userID),
		Milestone: shared.MilestoneID(r.URL.Query().Get("milestone")),
	}

	result, err := s.deps.Engine.GetUnlockedTasks(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, "get tasks", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetProgress handles GET /api/v1/users/{userID}/progress
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	q := query.GetMilestoneProgressQuery{
		UserID:         shared.UserID(userID),
		IncludeHistory: getQueryParamBool(r, "history"),
		HistoryDays:    getQueryParamInt(r, "days", 0),
	}

	result, err := s.deps.Engine.GetMilestoneProgress(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, "get progress", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetScores handles GET /api/v1/users/{userID}/scores
func (s *Server) handleGetScores(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	q := query.GetMaturityScoresQuery{
		UserID:           shared.UserID(userID),
		IncludeEvolution: getQueryParamBool(r, "evolution"),
		EvolutionDays:    getQueryParamInt(r, "days", 0),
	}

	result, err := s.deps.Engine.GetMaturityScores(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, "get scores", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetAchievements handles GET /api/v1/users/{userID}/achievements
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	q := query.GetAchievementsQuery{
		UserID:       shared.UserID(userID),
		UnlockedOnly: getQueryParamBool(r, "unlocked_only"),
	}

	result, err := s.deps.Engine.GetAchievements(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, "get achievements", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": result})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST AND ERROR PLUMBING
// ══════════════════════════════════════════════════════════════════════════════

// maxBodyBytes caps request bodies. The engine's payloads are small
// JSON documents; anything larger is abuse.
const maxBodyBytes = 64 << 10 // 64 KB

// decodeBody decodes and validates a JSON request body. On failure it
// writes the error response and returns false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON", err.Error())
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeJSONErrorWithDetails(w, http.StatusBadRequest, "validation_failed", "Request body failed validation", verrs[0].Error())
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "validation_failed", "Request body failed validation")
		return false
	}

	return true
}

// writeCommandError maps a command error to an HTTP response.
func (s *Server) writeCommandError(w http.ResponseWriter, op string, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("command failed", logger.String("operation", op), logger.Err(err))
		writeJSONError(w, status, code, "Operation failed")
		return
	}
	writeJSONErrorWithDetails(w, status, code, "Operation rejected", err.Error())
}

// writeQueryError maps a query error to an HTTP response.
func (s *Server) writeQueryError(w http.ResponseWriter, op string, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("query failed", logger.String("operation", op), logger.Err(err))
		writeJSONError(w, status, code, "Query failed")
		return
	}
	writeJSONErrorWithDetails(w, status, code, "Query rejected", err.Error())
}

// classifyError maps domain error kinds to HTTP status codes.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInvalidID),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrEmptyValue),
		errors.Is(err, shared.ErrNegativeValue),
		errors.Is(err, shared.ErrValueOutOfRange):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
