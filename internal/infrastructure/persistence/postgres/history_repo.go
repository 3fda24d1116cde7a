package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HISTORY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// HistoryRepository implements milestone.HistoryRepository for PostgreSQL.
type HistoryRepository struct {
	conn *Connection
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(conn *Connection) *HistoryRepository {
	return &HistoryRepository{conn: conn}
}

// Record inserts a daily snapshot row. First write of the day wins: a later
// write for the same (user, milestone, day) is a silent no-op.
func (r *HistoryRepository) Record(ctx context.Context, record milestone.HistoryRecord) error {
	query := `
		INSERT INTO progress_history (id, user_id, milestone, day, progress, tasks_completed, total_tasks, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, milestone, day) DO NOTHING
	`

	_, err := r.conn.Exec(ctx, query,
		record.ID,
		record.UserID.String(),
		string(record.MilestoneID),
		record.Day,
		record.Progress,
		record.TasksCompleted,
		record.TotalTasks,
		record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record progress history: %w", err)
	}

	return nil
}

// ListRange returns the user's history rows with day in [from, to],
// oldest first.
func (r *HistoryRepository) ListRange(ctx context.Context, userID shared.UserID, from, to time.Time) ([]milestone.HistoryRecord, error) {
	query := `
		SELECT id, user_id, milestone, day, progress, tasks_completed, total_tasks, recorded_at
		FROM progress_history
		WHERE user_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day ASC, milestone ASC
	`

	rows, err := r.conn.Query(ctx, query, userID.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress history: %w", err)
	}
	defer rows.Close()

	var records []milestone.HistoryRecord
	for rows.Next() {
		var (
			record      milestone.HistoryRecord
			id          string
			milestoneID string
		)

		err := rows.Scan(
			&record.ID,
			&id,
			&milestoneID,
			&record.Day,
			&record.Progress,
			&record.TasksCompleted,
			&record.TotalTasks,
			&record.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}

		record.UserID = shared.UserID(id)
		record.MilestoneID = shared.MilestoneID(milestoneID)
		records = append(records, record)
	}

	return records, rows.Err()
}
