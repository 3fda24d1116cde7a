package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StateRepository implements task.StateRepository for PostgreSQL.
//
// Business facts and completed tasks are stored as JSONB documents keyed by
// user id. The state is small and always read and written whole, so a
// document column beats a row-per-fact layout here.
type StateRepository struct {
	conn *Connection
}

// NewStateRepository creates a new StateRepository.
func NewStateRepository(conn *Connection) *StateRepository {
	return &StateRepository{conn: conn}
}

// factsDoc is the JSONB shape of the facts column.
type factsDoc struct {
	HasShop           bool  `json:"has_shop"`
	HasBrand          bool  `json:"has_brand"`
	ProductCount      int   `json:"product_count"`
	HasRUT            bool  `json:"has_rut"`
	HasSocialLinks    bool  `json:"has_social_links"`
	HasBankData       bool  `json:"has_bank_data"`
	HasStory          bool  `json:"has_story"`
	HasArtisanProfile bool  `json:"has_artisan_profile"`
	HasHeroSlider     bool  `json:"has_hero_slider"`
	HasContactInfo    bool  `json:"has_contact_info"`
	MaturityBlocks    []int `json:"maturity_blocks,omitempty"`
}

// Get returns the state for a user, or shared.ErrNotFound if the user has
// no state row yet.
func (r *StateRepository) Get(ctx context.Context, userID shared.UserID) (*task.UserProgressionState, error) {
	query := `
		SELECT user_id, facts, completed_tasks, created_at, updated_at
		FROM progression_states
		WHERE user_id = $1
	`

	var (
		id            string
		factsJSON     []byte
		completedJSON []byte
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := r.conn.QueryRow(ctx, query, userID.String()).Scan(
		&id, &factsJSON, &completedJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get progression state: %w", err)
	}

	var facts factsDoc
	if err := json.Unmarshal(factsJSON, &facts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal facts: %w", err)
	}

	completed := make(map[shared.TaskID]time.Time)
	if len(completedJSON) > 0 {
		raw := make(map[string]time.Time)
		if err := json.Unmarshal(completedJSON, &raw); err != nil {
			return nil, fmt.Errorf("failed to unmarshal completed tasks: %w", err)
		}
		for taskID, at := range raw {
			completed[shared.TaskID(taskID)] = at
		}
	}

	blocks := make(map[int]struct{}, len(facts.MaturityBlocks))
	for _, n := range facts.MaturityBlocks {
		blocks[n] = struct{}{}
	}

	return &task.UserProgressionState{
		UserID:                  shared.UserID(id),
		HasShop:                 facts.HasShop,
		HasBrand:                facts.HasBrand,
		ProductCount:            facts.ProductCount,
		HasRUT:                  facts.HasRUT,
		HasSocialLinks:          facts.HasSocialLinks,
		HasBankData:             facts.HasBankData,
		HasStory:                facts.HasStory,
		HasArtisanProfile:       facts.HasArtisanProfile,
		HasHeroSlider:           facts.HasHeroSlider,
		HasContactInfo:          facts.HasContactInfo,
		CompletedMaturityBlocks: blocks,
		CompletedTasks:          completed,
		CreatedAt:               createdAt,
		UpdatedAt:               updatedAt,
	}, nil
}

// ListUserIDs returns every user with a state row. Used by the background
// jobs to enumerate the sweep population.
func (r *StateRepository) ListUserIDs(ctx context.Context) ([]shared.UserID, error) {
	query := `SELECT user_id FROM progression_states ORDER BY user_id`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var userIDs []shared.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, shared.UserID(id))
	}

	return userIDs, rows.Err()
}

// Save upserts the state.
func (r *StateRepository) Save(ctx context.Context, state *task.UserProgressionState) error {
	query := `
		INSERT INTO progression_states (user_id, facts, completed_tasks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			facts = EXCLUDED.facts,
			completed_tasks = EXCLUDED.completed_tasks,
			updated_at = EXCLUDED.updated_at
	`

	blocks := make([]int, 0, len(state.CompletedMaturityBlocks))
	for n := range state.CompletedMaturityBlocks {
		blocks = append(blocks, n)
	}

	factsJSON, err := json.Marshal(factsDoc{
		HasShop:           state.HasShop,
		HasBrand:          state.HasBrand,
		ProductCount:      state.ProductCount,
		HasRUT:            state.HasRUT,
		HasSocialLinks:    state.HasSocialLinks,
		HasBankData:       state.HasBankData,
		HasStory:          state.HasStory,
		HasArtisanProfile: state.HasArtisanProfile,
		HasHeroSlider:     state.HasHeroSlider,
		HasContactInfo:    state.HasContactInfo,
		MaturityBlocks:    blocks,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal facts: %w", err)
	}

	raw := make(map[string]time.Time, len(state.CompletedTasks))
	for taskID, at := range state.CompletedTasks {
		raw[string(taskID)] = at
	}
	completedJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal completed tasks: %w", err)
	}

	_, err = r.conn.Exec(ctx, query,
		state.UserID.String(),
		factsJSON,
		completedJSON,
		state.CreatedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save progression state: %w", err)
	}

	return nil
}
