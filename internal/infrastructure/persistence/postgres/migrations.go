package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESSION STATE
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create progression state tables
-- Version: 001

-- Per-user progression state: business facts and completed tasks.
CREATE TABLE IF NOT EXISTS progression_states (
    user_id UUID PRIMARY KEY,
    facts JSONB NOT NULL DEFAULT '{}'::jsonb,
    completed_tasks JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_progression_states_updated_at ON progression_states(updated_at DESC);

-- Cached per-milestone progress vector, recomputed after every mutation.
CREATE TABLE IF NOT EXISTS progress_vectors (
    user_id UUID PRIMARY KEY,
    vector JSONB NOT NULL DEFAULT '{}'::jsonb,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_progression_states_updated_at ON progression_states;
CREATE TRIGGER update_progression_states_updated_at
    BEFORE UPDATE ON progression_states
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_progression_states_updated_at ON progression_states;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS progress_vectors;
DROP TABLE IF EXISTS progression_states;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE MATURITY
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create maturity score tables
-- Version: 002
-- Purpose: Track capped category scores and the append-only action log

CREATE TABLE IF NOT EXISTS maturity_scores (
    user_id UUID PRIMARY KEY,
    idea_validation INTEGER NOT NULL DEFAULT 0,
    user_experience INTEGER NOT NULL DEFAULT 0,
    market_fit INTEGER NOT NULL DEFAULT 0,
    monetization INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_idea_validation CHECK (idea_validation >= 0 AND idea_validation <= 100),
    CONSTRAINT valid_user_experience CHECK (user_experience >= 0 AND user_experience <= 100),
    CONSTRAINT valid_market_fit CHECK (market_fit >= 0 AND market_fit <= 100),
    CONSTRAINT valid_monetization CHECK (monetization >= 0 AND monetization <= 100)
);

-- Append-only action log. The unique constraint on (user_id, action_id)
-- is the idempotency gate for score tracking: a replayed action fails the
-- insert and never touches the scores.
CREATE TABLE IF NOT EXISTS maturity_action_log (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    action_id VARCHAR(100) NOT NULL,
    category VARCHAR(30) NOT NULL,
    points INTEGER NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    tracked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(user_id, action_id),
    CONSTRAINT valid_points CHECK (points > 0 AND points <= 100),
    CONSTRAINT valid_category CHECK (category IN ('ideaValidation', 'userExperience', 'marketFit', 'monetization'))
);

CREATE INDEX IF NOT EXISTS idx_maturity_action_log_user ON maturity_action_log(user_id);
CREATE INDEX IF NOT EXISTS idx_maturity_action_log_user_at ON maturity_action_log(user_id, tracked_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS maturity_action_log;
DROP TABLE IF EXISTS maturity_scores;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE ACHIEVEMENTS AND HISTORY
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create achievement and progress history tables
-- Version: 003

-- Unlocked achievements. The unique constraint guarantees at-most-once
-- grants even when concurrent recomputes race on the same user.
CREATE TABLE IF NOT EXISTS user_achievements (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    achievement_id VARCHAR(100) NOT NULL,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_user ON user_achievements(user_id);
CREATE INDEX IF NOT EXISTS idx_user_achievements_unlocked_at ON user_achievements(unlocked_at DESC);

-- Daily progress snapshots, one row per user, milestone and UTC day.
-- First write of the day wins; later writes for the same day are no-ops.
CREATE TABLE IF NOT EXISTS progress_history (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    milestone VARCHAR(30) NOT NULL,
    day DATE NOT NULL,
    progress INTEGER NOT NULL,
    tasks_completed INTEGER NOT NULL DEFAULT 0,
    total_tasks INTEGER NOT NULL DEFAULT 0,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(user_id, milestone, day),
    CONSTRAINT valid_progress CHECK (progress >= 0 AND progress <= 100),
    CONSTRAINT valid_milestone CHECK (milestone IN ('formalization', 'brand', 'shop', 'sales', 'community'))
);

CREATE INDEX IF NOT EXISTS idx_progress_history_user ON progress_history(user_id);
CREATE INDEX IF NOT EXISTS idx_progress_history_user_day ON progress_history(user_id, day DESC);
CREATE INDEX IF NOT EXISTS idx_progress_history_user_milestone_day ON progress_history(user_id, milestone, day DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS progress_history;
DROP TABLE IF EXISTS user_achievements;
`

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_progression_state",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_maturity",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_achievements_and_history",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}
