package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollouts.
// Supports percentage rollout, user targeting, and segment-based
// experiments so journey changes can reach a slice of artisans first.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int

	// Segment targeting (e.g., "textiles", "ceramics")
	// Empty means all segments
	TargetSegments []string

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// A/B test variant (for experiments)
	Variants []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID string // account id

	Segment string // artisan craft segment (e.g., "textiles")
	IsAdmin bool   // Is admin user
}

// Predefined feature flag names.
const (
	// === Journey Features ===
	FeatureJourneySales          = "journey.sales_milestone"  // Show the sales milestone
	FeatureJourneyAlmostComplete = "journey.almost_complete"  // Emit almost-complete events
	FeatureJourneyAutoReconcile  = "journey.auto_reconcile"   // Background auto-completion sweep
	FeatureJourneyDailyHistory   = "journey.daily_history"    // Nightly progress snapshots

	// === Maturity Features ===
	FeatureMaturityTracking  = "maturity.tracking"  // Accept maturity actions
	FeatureMaturityEvolution = "maturity.evolution" // Per-category trend in score queries

	// === Achievement Features ===
	FeatureAchievementBadges = "achievements.badges" // Unlock and list badges

	// === Integration Features ===
	FeatureIntegrationWebhooks = "integrations.webhooks" // Outbound event delivery

	// === Experimental Features ===
	FeatureExperimentalRecommendations = "experimental.recommendations" // Next-task suggestions
	FeatureExperimentalAnalytics       = "experimental.analytics"       // Advanced analytics
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Journey features - the core product, enabled by default
	ff.features[FeatureJourneySales] = &Feature{
		Name:           FeatureJourneySales,
		Description:    "Show the sales milestone on the journey",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureJourneyAlmostComplete] = &Feature{
		Name:           FeatureJourneyAlmostComplete,
		Description:    "Emit almost-complete milestone events",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureJourneyAutoReconcile] = &Feature{
		Name:           FeatureJourneyAutoReconcile,
		Description:    "Auto-complete tasks whose facts are already true",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureJourneyDailyHistory] = &Feature{
		Name:           FeatureJourneyDailyHistory,
		Description:    "Record nightly per-milestone progress snapshots",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Maturity features
	ff.features[FeatureMaturityTracking] = &Feature{
		Name:           FeatureMaturityTracking,
		Description:    "Track maturity actions and scores",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureMaturityEvolution] = &Feature{
		Name:           FeatureMaturityEvolution,
		Description:    "Per-category score trend over a window",
		Enabled:        true,
		RolloutPercent: 50, // Gradual rollout
	}

	// Achievement features
	ff.features[FeatureAchievementBadges] = &Feature{
		Name:           FeatureAchievementBadges,
		Description:    "Unlock badges for journey progress",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Integration features
	ff.features[FeatureIntegrationWebhooks] = &Feature{
		Name:           FeatureIntegrationWebhooks,
		Description:    "Deliver signed event webhooks",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Experimental features - disabled by default
	ff.features[FeatureExperimentalRecommendations] = &Feature{
		Name:           FeatureExperimentalRecommendations,
		Description:    "Suggest the next best task",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureExperimentalAnalytics] = &Feature{
		Name:           FeatureExperimentalAnalytics,
		Description:    "Advanced analytics dashboard",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_JOURNEY_SALES_MILESTONE=true
// Example: FEATURE_MATURITY_EVOLUTION=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "journey.sales_milestone" -> "FEATURE_JOURNEY_SALES_MILESTONE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check user overrides first
	if ctx != nil && ctx.UserID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admin users get all features
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	// Check if feature is enabled at all
	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check segment targeting
	if len(feature.TargetSegments) > 0 && ctx != nil && ctx.Segment != "" {
		segmentMatch := false
		for _, s := range feature.TargetSegments {
			if s == ctx.Segment {
				segmentMatch = true
				break
			}
		}
		if !segmentMatch {
			return false
		}
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return ff.isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage.
// Uses consistent hashing so users stay in their bucket.
func (ff *FeatureFlags) isInRollout(userID string, featureName string, percent int) bool {
	// Create a consistent hash for this user+feature combination
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// GetVariant returns the A/B test variant for a user.
// Returns empty string if no variants defined or feature disabled.
func (ff *FeatureFlags) GetVariant(featureName string, ctx *FeatureContext) string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !ff.IsEnabled(featureName, ctx) {
		return ""
	}

	if len(feature.Variants) == 0 {
		return ""
	}

	// Use consistent hashing to assign variant
	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(ctx.UserID))
	hash := h.Sum32()

	variantIndex := int(hash % uint32(len(feature.Variants)))
	return feature.Variants[variantIndex]
}

// SetUserOverride sets a feature override for a specific user.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(userID string, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		// Return a copy
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Convenience methods for common checks ---

// MaturityEnabled checks if the maturity module is active.
func (ff *FeatureFlags) MaturityEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureMaturityTracking, ctx)
}

// WebhooksEnabled checks if outbound event delivery is active.
func (ff *FeatureFlags) WebhooksEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureIntegrationWebhooks, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
