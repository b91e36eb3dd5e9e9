package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"rpchubBack/internal/models"
)

// WebhookCache is a fast-path duplicate filter in front of the database.
// The unique index on (provider, external_event_id) remains the source of
// truth; a cache miss or Redis outage only means the request falls through
// to the authoritative path.
type WebhookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewWebhookCache(rdb *redis.Client) *WebhookCache {
	return &WebhookCache{rdb: rdb, ttl: 48 * time.Hour}
}

func webhookKey(provider models.PaymentProvider, externalEventID string) string {
	return fmt.Sprintf("webhooks:%s:%s", strings.ToLower(string(provider)), externalEventID)
}

// AlreadyProcessed reports whether this event id was recently marked done.
// Errors degrade to false (fail open towards the database).
func (c *WebhookCache) AlreadyProcessed(ctx context.Context, provider models.PaymentProvider, externalEventID string) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	n, err := c.rdb.Exists(ctx, webhookKey(provider, externalEventID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// MarkProcessed is best-effort; a write failure is not surfaced.
func (c *WebhookCache) MarkProcessed(ctx context.Context, provider models.PaymentProvider, externalEventID string) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Set(ctx, webhookKey(provider, externalEventID), 1, c.ttl).Err()
}
