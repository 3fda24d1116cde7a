// Package notify delivers progression events to external subscribers over
// HTTP webhooks. Delivery is best-effort: a dead endpoint never blocks the
// progression pipeline, it just trips the circuit breaker.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/pkg/circuitbreaker"
	"github.com/telar-hub/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Endpoint describes one webhook subscriber.
type Endpoint struct {
	// URL is the delivery target.
	URL string

	// Secret signs the payload body (X-Signature header, HMAC-SHA256 hex).
	// Empty disables signing.
	Secret string

	// Events restricts delivery to the listed event types.
	// Empty means all events.
	Events []shared.EventType
}

// Config contains configuration for the webhook notifier.
type Config struct {
	// Endpoints are the registered subscribers.
	Endpoints []Endpoint

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// WebhookNotifier posts progression events to the configured endpoints.
// It is subscribed to the event bus for the guaranteed-delivery signals
// (milestone.completed, achievement.unlocked) and delivers asynchronously
// so a slow endpoint never stalls event dispatch.
type WebhookNotifier struct {
	config  Config
	client  *http.Client
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// envelope is the wire shape of a delivered event.
type envelope struct {
	Type       shared.EventType       `json:"type"`
	UserID     string                 `json:"user_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// NewWebhookNotifier creates a notifier with the retry and circuit breaker
// policies for outbound deliveries.
func NewWebhookNotifier(config Config) *WebhookNotifier {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	n := &WebhookNotifier{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		retrier: retry.WebhookRetrier(),
		logger:  config.Logger,
	}

	n.breaker = circuitbreaker.WebhookBreaker(func(name string, from, to circuitbreaker.State) {
		n.logger.Warn("webhook circuit state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return n
}

// Handle implements shared.EventHandler. It fans the event out to every
// matching endpoint in the background and always returns nil: webhook
// failures are logged, never propagated into the publishing pipeline.
func (n *WebhookNotifier) Handle(event shared.Event) error {
	for _, ep := range n.config.Endpoints {
		if !endpointWants(ep, event.EventType()) {
			continue
		}

		go func(ep Endpoint) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if err := n.deliver(ctx, ep, event); err != nil {
				n.logger.Error("webhook delivery failed",
					"url", ep.URL,
					"event", event.EventType(),
					"user_id", event.AggregateID(),
					"error", err,
				)
			}
		}(ep)
	}

	return nil
}

// deliver posts one event to one endpoint through the breaker and retrier.
func (n *WebhookNotifier) deliver(ctx context.Context, ep Endpoint, event shared.Event) error {
	body, err := json.Marshal(envelope{
		Type:       event.EventType(),
		UserID:     event.AggregateID(),
		OccurredAt: event.OccurredAt(),
		Payload:    event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		return n.retrier.Do(ctx, func(ctx context.Context) error {
			return n.post(ctx, ep, event.EventType(), body)
		})
	})
}

// post performs a single HTTP delivery attempt.
func (n *WebhookNotifier) post(ctx context.Context, ep Endpoint, eventType shared.EventType, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(eventType))
	if ep.Secret != "" {
		req.Header.Set("X-Signature", sign(ep.Secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.Retryable(fmt.Errorf("webhook endpoint returned %d", resp.StatusCode))
	default:
		// 4xx other than 429 will not get better on retry.
		return retry.Permanent(fmt.Errorf("webhook endpoint returned %d", resp.StatusCode))
	}
}

// endpointWants reports whether the endpoint subscribed to the event type.
func endpointWants(ep Endpoint, eventType shared.EventType) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, t := range ep.Events {
		if t == eventType {
			return true
		}
	}
	return false
}

// sign computes the HMAC-SHA256 hex signature of the body.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
