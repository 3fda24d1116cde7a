package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/maturity"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATURITY SCORES REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ScoresRepository implements maturity.ScoresRepository for PostgreSQL.
type ScoresRepository struct {
	conn *Connection
}

// NewScoresRepository creates a new ScoresRepository.
func NewScoresRepository(conn *Connection) *ScoresRepository {
	return &ScoresRepository{conn: conn}
}

// Get returns the scores for a user, or shared.ErrNotFound if the user has
// never tracked an action.
func (r *ScoresRepository) Get(ctx context.Context, userID shared.UserID) (*maturity.Scores, error) {
	query := `
		SELECT user_id, idea_validation, user_experience, market_fit, monetization, updated_at
		FROM maturity_scores
		WHERE user_id = $1
	`

	var (
		id        string
		scores    maturity.Scores
		updatedAt time.Time
	)

	err := r.conn.QueryRow(ctx, query, userID.String()).Scan(
		&id,
		&scores.IdeaValidation,
		&scores.UserExperience,
		&scores.MarketFit,
		&scores.Monetization,
		&updatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get maturity scores: %w", err)
	}

	scores.UserID = shared.UserID(id)
	scores.UpdatedAt = updatedAt
	return &scores, nil
}

// Save upserts the scores.
func (r *ScoresRepository) Save(ctx context.Context, scores *maturity.Scores) error {
	query := `
		INSERT INTO maturity_scores (user_id, idea_validation, user_experience, market_fit, monetization, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			idea_validation = EXCLUDED.idea_validation,
			user_experience = EXCLUDED.user_experience,
			market_fit = EXCLUDED.market_fit,
			monetization = EXCLUDED.monetization,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		scores.UserID.String(),
		scores.IdeaValidation,
		scores.UserExperience,
		scores.MarketFit,
		scores.Monetization,
		scores.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save maturity scores: %w", err)
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTION LOG REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ActionLogRepository implements maturity.ActionLogRepository for PostgreSQL.
//
// The UNIQUE(user_id, action_id) constraint is the idempotency gate: the
// insert itself decides the race, no read-then-write window.
type ActionLogRepository struct {
	conn *Connection
}

// NewActionLogRepository creates a new ActionLogRepository.
func NewActionLogRepository(conn *Connection) *ActionLogRepository {
	return &ActionLogRepository{conn: conn}
}

// Append inserts a tracked action. Returns shared.ErrAlreadyExists when the
// (user, action id) pair was already recorded.
func (r *ActionLogRepository) Append(ctx context.Context, action maturity.TrackedAction) error {
	query := `
		INSERT INTO maturity_action_log (id, user_id, action_id, category, points, description, tracked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Exec(ctx, query,
		action.ID,
		action.UserID.String(),
		action.ActionID,
		string(action.Category),
		action.Points,
		action.Description,
		action.TrackedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to append tracked action: %w", err)
	}

	return nil
}

// Exists reports whether the action was already tracked for the user.
func (r *ActionLogRepository) Exists(ctx context.Context, userID shared.UserID, actionID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM maturity_action_log WHERE user_id = $1 AND action_id = $2
		)
	`

	var exists bool
	if err := r.conn.QueryRow(ctx, query, userID.String(), actionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check tracked action: %w", err)
	}

	return exists, nil
}

// ListSince returns the user's tracked actions at or after the given time,
// oldest first.
func (r *ActionLogRepository) ListSince(ctx context.Context, userID shared.UserID, since time.Time) ([]maturity.TrackedAction, error) {
	query := `
		SELECT id, user_id, action_id, category, points, description, tracked_at
		FROM maturity_action_log
		WHERE user_id = $1 AND tracked_at >= $2
		ORDER BY tracked_at ASC
	`

	rows, err := r.conn.Query(ctx, query, userID.String(), since)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked actions: %w", err)
	}
	defer rows.Close()

	var actions []maturity.TrackedAction
	for rows.Next() {
		var (
			action   maturity.TrackedAction
			id       string
			category string
		)

		err := rows.Scan(
			&action.ID,
			&id,
			&action.ActionID,
			&category,
			&action.Points,
			&action.Description,
			&action.TrackedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked action: %w", err)
		}

		action.UserID = shared.UserID(id)
		action.Category = shared.MaturityCategory(category)
		actions = append(actions, action)
	}

	return actions, rows.Err()
}
