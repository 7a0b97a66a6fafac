// Package events publishes ingestion events on Redis pub/sub and provides
// the distributed lock that keeps scrape cycles from overlapping.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis channels.
const (
	ChannelGigUpserted = "EVENT_EXTERNAL_GIG_UPSERTED"
	ChannelGigDeleted  = "EVENT_EXTERNAL_GIG_DELETED"
	ChannelGigsReaped  = "EVENT_EXTERNAL_GIGS_REAPED"
)

// GigUpserted is published after every successful upsert.
type GigUpserted struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	ExternalID string    `json:"externalId"`
	Inserted   bool      `json:"inserted"`
	Origin     string    `json:"origin"` // "scraper" or "gateway"
	At         time.Time `json:"at"`
}

// GigDeleted is published when the gateway removed a gig.
type GigDeleted struct {
	Source     string    `json:"source"`
	ExternalID string    `json:"externalId"`
	At         time.Time `json:"at"`
}

// GigsReaped is published when a reaper run deleted something.
type GigsReaped struct {
	Expired int64     `json:"expired"`
	Stale   int64     `json:"stale"`
	At      time.Time `json:"at"`
}

// Publisher sends a JSON payload to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// RedisPublisher publishes on Redis pub/sub.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher returns a Publisher backed by rdb.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", channel, err)
	}
	if err := p.rdb.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
