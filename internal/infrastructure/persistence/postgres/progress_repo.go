package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS VECTOR REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements milestone.ProgressRepository for PostgreSQL.
//
// The vector is a derived cache: it is recomputed from the state after every
// mutation and stored whole, so a single JSONB column per user is enough.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// Get returns the cached vector, or shared.ErrNotFound if the user has
// never been recomputed.
func (r *ProgressRepository) Get(ctx context.Context, userID shared.UserID) (milestone.Vector, error) {
	query := `SELECT vector FROM progress_vectors WHERE user_id = $1`

	var vectorJSON []byte
	if err := r.conn.QueryRow(ctx, query, userID.String()).Scan(&vectorJSON); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get progress vector: %w", err)
	}

	var vector milestone.Vector
	if err := json.Unmarshal(vectorJSON, &vector); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress vector: %w", err)
	}

	return vector, nil
}

// Save upserts the vector.
func (r *ProgressRepository) Save(ctx context.Context, userID shared.UserID, vector milestone.Vector) error {
	query := `
		INSERT INTO progress_vectors (user_id, vector, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			vector = EXCLUDED.vector,
			updated_at = EXCLUDED.updated_at
	`

	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to marshal progress vector: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, userID.String(), vectorJSON, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save progress vector: %w", err)
	}

	return nil
}
