// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
//
// The event set is closed: every event the engine can emit is enumerated here,
// so subscribers switch over a fixed set instead of matching free-form strings.
type EventType string

const (
	// Task events
	EventTaskCompleted EventType = "task.completed"

	// Milestone events
	EventMilestoneUnlocked       EventType = "milestone.unlocked"
	EventMilestoneAlmostComplete EventType = "milestone.almost.complete"
	EventMilestoneCompleted      EventType = "milestone.completed"
	EventMilestoneTasksGenerated EventType = "milestone.tasks.generated"

	// Maturity events
	EventScoreUpdated EventType = "maturity.score_updated"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Progression state events
	EventStateUpdated EventType = "progression.state_updated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For progression events this is always the user ID.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Snapshots carried inside event payloads
// ═══════════════════════════════════════════════════════════════════════════

// MilestoneSnapshot is the full post-state of one milestone, carried by every
// milestone event so subscribers can reconcile from the payload alone.
type MilestoneSnapshot struct {
	MilestoneID    MilestoneID `json:"milestone_id"`
	TasksCompleted int         `json:"tasks_completed"`
	TotalTasks     int         `json:"total_tasks"`
	Progress       int         `json:"progress"`
}

// ScoreSnapshot is the full post-state score vector, never a delta.
type ScoreSnapshot struct {
	IdeaValidation int `json:"idea_validation"`
	UserExperience int `json:"user_experience"`
	MarketFit      int `json:"market_fit"`
	Monetization   int `json:"monetization"`
}

// Get returns the score for a category.
func (s ScoreSnapshot) Get(c MaturityCategory) int {
	switch c {
	case CategoryIdeaValidation:
		return s.IdeaValidation
	case CategoryUserExperience:
		return s.UserExperience
	case CategoryMarketFit:
		return s.MarketFit
	case CategoryMonetization:
		return s.Monetization
	default:
		return 0
	}
}

// Total returns the rounded average of the four categories.
func (s ScoreSnapshot) Total() int {
	return (s.IdeaValidation + s.UserExperience + s.MarketFit + s.Monetization + 2) / 4
}

// ═══════════════════════════════════════════════════════════════════════════
// Task Events
// ═══════════════════════════════════════════════════════════════════════════

// TaskCompletedEvent is emitted when a fixed task is completed for a user.
type TaskCompletedEvent struct {
	BaseEvent
	UserID      UserID            `json:"user_id"`
	TaskID      TaskID            `json:"task_id"`
	MilestoneID MilestoneID       `json:"milestone_id"`
	Milestone   MilestoneSnapshot `json:"milestone"`
}

// Payload implements Event interface.
func (e TaskCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID.String(),
		"task_id":         e.TaskID.String(),
		"milestone_id":    e.MilestoneID.String(),
		"tasks_completed": e.Milestone.TasksCompleted,
		"total_tasks":     e.Milestone.TotalTasks,
		"progress":        e.Milestone.Progress,
	}
}

// NewTaskCompletedEvent creates a new TaskCompletedEvent.
func NewTaskCompletedEvent(userID UserID, taskID TaskID, snapshot MilestoneSnapshot) TaskCompletedEvent {
	return TaskCompletedEvent{
		BaseEvent:   NewBaseEvent(EventTaskCompleted, userID.String()),
		UserID:      userID,
		TaskID:      taskID,
		MilestoneID: snapshot.MilestoneID,
		Milestone:   snapshot,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Milestone Events
// ═══════════════════════════════════════════════════════════════════════════

// MilestoneUnlockedEvent is emitted when a milestone gains its first unlocked task.
type MilestoneUnlockedEvent struct {
	BaseEvent
	UserID    UserID            `json:"user_id"`
	Milestone MilestoneSnapshot `json:"milestone"`
}

// Payload implements Event interface.
func (e MilestoneUnlockedEvent) Payload() map[string]interface{} {
	return milestonePayload(e.UserID, e.Milestone)
}

// NewMilestoneUnlockedEvent creates a new MilestoneUnlockedEvent.
func NewMilestoneUnlockedEvent(userID UserID, snapshot MilestoneSnapshot) MilestoneUnlockedEvent {
	return MilestoneUnlockedEvent{
		BaseEvent: NewBaseEvent(EventMilestoneUnlocked, userID.String()),
		UserID:    userID,
		Milestone: snapshot,
	}
}

// MilestoneAlmostCompleteEvent is emitted when progress crosses upward through
// the configured near-complete threshold (default 80%).
type MilestoneAlmostCompleteEvent struct {
	BaseEvent
	UserID    UserID            `json:"user_id"`
	Milestone MilestoneSnapshot `json:"milestone"`
	TasksLeft int               `json:"tasks_left"`
}

// Payload implements Event interface.
func (e MilestoneAlmostCompleteEvent) Payload() map[string]interface{} {
	p := milestonePayload(e.UserID, e.Milestone)
	p["tasks_left"] = e.TasksLeft
	return p
}

// NewMilestoneAlmostCompleteEvent creates a new MilestoneAlmostCompleteEvent.
func NewMilestoneAlmostCompleteEvent(userID UserID, snapshot MilestoneSnapshot) MilestoneAlmostCompleteEvent {
	return MilestoneAlmostCompleteEvent{
		BaseEvent: NewBaseEvent(EventMilestoneAlmostComplete, userID.String()),
		UserID:    userID,
		Milestone: snapshot,
		TasksLeft: snapshot.TotalTasks - snapshot.TasksCompleted,
	}
}

// MilestoneCompletedEvent is emitted exactly once when a milestone first
// reaches 100% for a user.
type MilestoneCompletedEvent struct {
	BaseEvent
	UserID    UserID            `json:"user_id"`
	Milestone MilestoneSnapshot `json:"milestone"`
}

// Payload implements Event interface.
func (e MilestoneCompletedEvent) Payload() map[string]interface{} {
	return milestonePayload(e.UserID, e.Milestone)
}

// NewMilestoneCompletedEvent creates a new MilestoneCompletedEvent.
func NewMilestoneCompletedEvent(userID UserID, snapshot MilestoneSnapshot) MilestoneCompletedEvent {
	return MilestoneCompletedEvent{
		BaseEvent: NewBaseEvent(EventMilestoneCompleted, userID.String()),
		UserID:    userID,
		Milestone: snapshot,
	}
}

// MilestoneTasksGeneratedEvent is emitted when new tasks become unlocked
// within a milestone after a state change.
type MilestoneTasksGeneratedEvent struct {
	BaseEvent
	UserID    UserID            `json:"user_id"`
	Milestone MilestoneSnapshot `json:"milestone"`
	NewTasks  []TaskID          `json:"new_tasks"`
}

// Payload implements Event interface.
func (e MilestoneTasksGeneratedEvent) Payload() map[string]interface{} {
	ids := make([]string, len(e.NewTasks))
	for i, id := range e.NewTasks {
		ids[i] = id.String()
	}
	p := milestonePayload(e.UserID, e.Milestone)
	p["new_tasks"] = ids
	p["count"] = len(ids)
	return p
}

// NewMilestoneTasksGeneratedEvent creates a new MilestoneTasksGeneratedEvent.
func NewMilestoneTasksGeneratedEvent(userID UserID, snapshot MilestoneSnapshot, newTasks []TaskID) MilestoneTasksGeneratedEvent {
	return MilestoneTasksGeneratedEvent{
		BaseEvent: NewBaseEvent(EventMilestoneTasksGenerated, userID.String()),
		UserID:    userID,
		Milestone: snapshot,
		NewTasks:  newTasks,
	}
}

func milestonePayload(userID UserID, s MilestoneSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"user_id":         userID.String(),
		"milestone_id":    s.MilestoneID.String(),
		"milestone_name":  s.MilestoneID.Label(),
		"tasks_completed": s.TasksCompleted,
		"total_tasks":     s.TotalTasks,
		"progress":        s.Progress,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Maturity Events
// ═══════════════════════════════════════════════════════════════════════════

// ScoreUpdatedEvent is emitted after a maturity action is applied.
// It carries the full post-update score vector, never a delta.
type ScoreUpdatedEvent struct {
	BaseEvent
	UserID   UserID           `json:"user_id"`
	Category MaturityCategory `json:"category"`
	ActionID string           `json:"action_id"`
	Scores   ScoreSnapshot    `json:"scores"`
}

// Payload implements Event interface.
func (e ScoreUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID.String(),
		"category":        e.Category.String(),
		"action_id":       e.ActionID,
		"idea_validation": e.Scores.IdeaValidation,
		"user_experience": e.Scores.UserExperience,
		"market_fit":      e.Scores.MarketFit,
		"monetization":    e.Scores.Monetization,
		"total":           e.Scores.Total(),
	}
}

// NewScoreUpdatedEvent creates a new ScoreUpdatedEvent.
func NewScoreUpdatedEvent(userID UserID, category MaturityCategory, actionID string, scores ScoreSnapshot) ScoreUpdatedEvent {
	return ScoreUpdatedEvent{
		BaseEvent: NewBaseEvent(EventScoreUpdated, userID.String()),
		UserID:    userID,
		Category:  category,
		ActionID:  actionID,
		Scores:    scores,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted when a user achievement is granted.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID        UserID        `json:"user_id"`
	AchievementID AchievementID `json:"achievement_id"`
	Title         string        `json:"title"`
	Icon          string        `json:"icon"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID.String(),
		"achievement_id": e.AchievementID.String(),
		"title":          e.Title,
		"icon":           e.Icon,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID UserID, achievementID AchievementID, title, icon string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID.String()),
		UserID:        userID,
		AchievementID: achievementID,
		Title:         title,
		Icon:          icon,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression State Events
// ═══════════════════════════════════════════════════════════════════════════

// StateUpdatedEvent is emitted after a business fact mutates a user's
// progression state. Burst-prone (e.g. bulk product imports), so publishers
// use the debounced variant for this type.
type StateUpdatedEvent struct {
	BaseEvent
	UserID       UserID `json:"user_id"`
	HasShop      bool   `json:"has_shop"`
	HasBrand     bool   `json:"has_brand"`
	ProductCount int    `json:"product_count"`
	HasRUT       bool   `json:"has_rut"`
}

// Payload implements Event interface.
func (e StateUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID.String(),
		"has_shop":      e.HasShop,
		"has_brand":     e.HasBrand,
		"product_count": e.ProductCount,
		"has_rut":       e.HasRUT,
	}
}

// NewStateUpdatedEvent creates a new StateUpdatedEvent.
func NewStateUpdatedEvent(userID UserID, hasShop, hasBrand bool, productCount int, hasRUT bool) StateUpdatedEvent {
	return StateUpdatedEvent{
		BaseEvent:    NewBaseEvent(EventStateUpdated, userID.String()),
		UserID:       userID,
		HasShop:      hasShop,
		HasBrand:     hasBrand,
		ProductCount: productCount,
		HasRUT:       hasRUT,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
// Returned errors are logged by the bus and never propagated to the publisher.
type EventHandler func(event Event) error

// UnsubscribeFunc removes a previously registered handler.
// Safe to call more than once and safe to call during a dispatch pass
// (the current pass still sees the handler).
type UnsubscribeFunc func()

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish delivers an event synchronously, in subscription order,
	// to all current subscribers of its type.
	Publish(event Event) error

	// PublishDebounced coalesces bursts per event type: if called again for
	// the same type before the window elapses, the timer resets and only the
	// last payload is delivered. Superseded payloads are dropped entirely, so
	// guaranteed-delivery signals must use Publish.
	PublishDebounced(event Event, window time.Duration)
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type and returns its
	// unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) UnsubscribeFunc

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) UnsubscribeFunc
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
