package postgres

import (
	"context"
	"fmt"

	"github.com/telar-hub/progression-engine/internal/domain/achievement"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Repository for PostgreSQL.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// Insert records an unlock. Returns shared.ErrAlreadyExists when the user
// already holds the achievement, which makes concurrent grant attempts
// resolve to exactly one winner.
func (r *AchievementRepository) Insert(ctx context.Context, record achievement.UserAchievement) error {
	query := `
		INSERT INTO user_achievements (id, user_id, achievement_id, unlocked_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.conn.Exec(ctx, query,
		record.ID,
		record.UserID.String(),
		string(record.AchievementID),
		record.UnlockedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert achievement: %w", err)
	}

	return nil
}

// ListByUser returns the user's unlocked achievements, most recent first.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID shared.UserID) ([]achievement.UserAchievement, error) {
	query := `
		SELECT id, user_id, achievement_id, unlocked_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY unlocked_at DESC
	`

	rows, err := r.conn.Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var records []achievement.UserAchievement
	for rows.Next() {
		var (
			record        achievement.UserAchievement
			id            string
			achievementID string
		)

		if err := rows.Scan(&record.ID, &id, &achievementID, &record.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}

		record.UserID = shared.UserID(id)
		record.AchievementID = shared.AchievementID(achievementID)
		records = append(records, record)
	}

	return records, rows.Err()
}

// Unlocked returns the set of achievement ids the user holds.
func (r *AchievementRepository) Unlocked(ctx context.Context, userID shared.UserID) (map[shared.AchievementID]bool, error) {
	query := `SELECT achievement_id FROM user_achievements WHERE user_id = $1`

	rows, err := r.conn.Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query unlocked achievements: %w", err)
	}
	defer rows.Close()

	unlocked := make(map[shared.AchievementID]bool)
	for rows.Next() {
		var achievementID string
		if err := rows.Scan(&achievementID); err != nil {
			return nil, fmt.Errorf("failed to scan achievement id: %w", err)
		}
		unlocked[shared.AchievementID(achievementID)] = true
	}

	return unlocked, rows.Err()
}
