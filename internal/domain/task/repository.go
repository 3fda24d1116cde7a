package task

import (
	"context"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// StateRepository persists per-user progression state.
//
// The engine serializes all mutations for one user, so implementations only
// need read-committed semantics; cross-user access is fully concurrent.
type StateRepository interface {
	// Get returns the state for a user, or shared.ErrNotFound if the user
	// has no state yet (state is created lazily on first write).
	Get(ctx context.Context, userID shared.UserID) (*UserProgressionState, error)

	// Save upserts the state.
	Save(ctx context.Context, state *UserProgressionState) error
}
