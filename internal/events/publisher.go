/**
 * Progress events
 *
 * Batch progress is published to a Redis channel so a UI can show per-page
 * progress while a long batch runs. Events are fire-and-forget: nothing is
 * stored, and a publish failure never fails the batch.
 */

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// Event types
const (
	BatchStarted   = "batch:started"
	PageCompleted  = "page:completed"
	BatchCompleted = "batch:completed"
	BatchFailed    = "batch:failed"
)

// Event is one progress notification for a batch
type Event struct {
	Event     string                 `json:"event"`
	BatchID   string                 `json:"batchId"`
	FileName  string                 `json:"fileName,omitempty"`
	Index     int                    `json:"index,omitempty"` // 1-based page position
	Total     int                    `json:"total,omitempty"`
	Succeeded int                    `json:"succeeded,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// Publisher delivers progress events
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// NopPublisher drops every event. Used when REDIS_URL is not set.
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(ctx context.Context, event Event) {}

// Close does nothing
func (NopPublisher) Close() error { return nil }

// RedisPublisher publishes events as JSON on a Redis pub/sub channel
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *logging.Logger
}

// RedisPublisherConfig holds publisher configuration
type RedisPublisherConfig struct {
	RedisURL string
	Channel  string
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(ctx context.Context, cfg *RedisPublisherConfig) (*RedisPublisher, error) {
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "ocr:events"
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logging.NewLogger("RedisPublisher"),
	}, nil
}

// Publish sends the event. Failures are logged and swallowed.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().Format(time.RFC3339)
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("Failed to marshal event", "event", event.Event, "error", err)
		return
	}

	// Progress must still be reported after the request context is cancelled
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := p.client.Publish(pubCtx, p.channel, data).Err(); err != nil {
		p.logger.Warn("Failed to publish event", "event", event.Event, "batch", event.BatchID, "error", err)
	}
}

// HealthCheck pings Redis
func (p *RedisPublisher) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
