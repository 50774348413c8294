// Package notify implements the NotificationCache: a time-expiring,
// destructive-read map from bid_event_id to the demand partner's notice
// URLs, which is the dedup primitive that guarantees at-most-once billing.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexusrtb/catalyst/pkg/redis"
)

// NoticeUrls are the demand partner's URLs captured at bid time.
type NoticeUrls struct {
	Burl string `json:"burl,omitempty"`
	Lurl string `json:"lurl,omitempty"`
}

const keyPrefix = "notify:"

// Cache is a Redis-backed NotificationCache. GETDEL makes Get atomic: two
// concurrent billing hits for the same bid_event_id can never both see the
// URLs, so a bid is billed at most once regardless of how many times its
// event URL is retried or duplicated upstream.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// New builds a cache with the given per-entry TTL (spec: notifications.ttl).
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: client, ttl: ttl}
}

// Cache inserts urls under id, to expire after the configured TTL if never
// read.
func (c *Cache) Cache(ctx context.Context, id string, urls NoticeUrls) error {
	payload, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("notify: marshal notice urls: %w", err)
	}
	return c.redis.Set(ctx, keyPrefix+id, payload, c.ttl)
}

// Get destructively reads and removes the entry for id. ok is false when
// the id is missing or was already consumed — the caller's sole signal
// that an incoming billing event is a duplicate or has expired.
func (c *Cache) Get(ctx context.Context, id string) (NoticeUrls, bool, error) {
	raw, err := c.redis.GetDel(ctx, keyPrefix+id)
	if err != nil {
		return NoticeUrls{}, false, fmt.Errorf("notify: getdel: %w", err)
	}
	if raw == "" {
		return NoticeUrls{}, false, nil
	}
	var urls NoticeUrls
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return NoticeUrls{}, false, fmt.Errorf("notify: unmarshal notice urls: %w", err)
	}
	return urls, true, nil
}
