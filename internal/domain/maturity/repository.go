package maturity

import (
	"context"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ScoresRepository stores the current per-user score record.
// Get returns shared.ErrNotFound when the user has no record yet.
type ScoresRepository interface {
	Get(ctx context.Context, userID shared.UserID) (*Scores, error)
	Save(ctx context.Context, scores *Scores) error
}

// ActionLogRepository is the append-only log behind action idempotency.
//
// Append must enforce (user, action id) uniqueness atomically and return
// shared.ErrAlreadyExists on a replay; concurrent replays must resolve so
// that exactly one append wins.
type ActionLogRepository interface {
	Append(ctx context.Context, action TrackedAction) error
	Exists(ctx context.Context, userID shared.UserID, actionID string) (bool, error)
	ListSince(ctx context.Context, userID shared.UserID, since time.Time) ([]TrackedAction, error)
}
