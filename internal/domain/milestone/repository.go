package milestone

import (
	"context"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ProgressRepository stores the last computed progress vector per user so
// the aggregator can diff against it on the next recomputation.
// Get returns shared.ErrNotFound when the user has no stored vector yet.
type ProgressRepository interface {
	Get(ctx context.Context, userID shared.UserID) (Vector, error)
	Save(ctx context.Context, userID shared.UserID, vector Vector) error
}

// HistoryRepository persists daily progress history rows.
//
// Record must be first-write-wins: if a row for the same
// (user, milestone, day) already exists, the call is a no-op and returns
// nil. Day is truncated to UTC midnight by the caller.
type HistoryRepository interface {
	Record(ctx context.Context, record HistoryRecord) error
	ListRange(ctx context.Context, userID shared.UserID, from, to time.Time) ([]HistoryRecord, error)
}
