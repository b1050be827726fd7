package billing

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/SubTrack/app/repository"
	"github.com/ManuelReschke/SubTrack/internal/pkg/clock"
)

const dedupKeyPrefix = "billing_event:"

// DedupStore is the check-and-set on processor event ids.
type DedupStore interface {
	// Claim reports whether this caller is the first to see eventID within ttl.
	Claim(ctx context.Context, eventID, eventType string, ttl time.Duration) (bool, error)
	// Release drops the marker so a redelivery can be applied again.
	Release(ctx context.Context, eventID string) error
}

// RedisDedupStore keeps markers as SET NX keys with an expiry.
type RedisDedupStore struct {
	client *redis.Client
	prefix string
}

func NewRedisDedupStore(client *redis.Client) *RedisDedupStore {
	return &RedisDedupStore{client: client, prefix: dedupKeyPrefix}
}

func (s *RedisDedupStore) key(eventID string) string {
	return s.prefix + strings.TrimSpace(eventID)
}

func (s *RedisDedupStore) Claim(ctx context.Context, eventID, eventType string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(eventID), eventType, ttl).Result()
}

func (s *RedisDedupStore) Release(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, s.key(eventID)).Err()
}

// GormDedupStore keeps markers in the billing_event_markers table.
type GormDedupStore struct {
	markers repository.MarkerRepository
	clock   clock.Clock
}

func NewGormDedupStore(markers repository.MarkerRepository, clk clock.Clock) *GormDedupStore {
	if clk == nil {
		clk = clock.Real{}
	}
	return &GormDedupStore{markers: markers, clock: clk}
}

func (s *GormDedupStore) Claim(ctx context.Context, eventID, eventType string, ttl time.Duration) (bool, error) {
	return s.markers.Insert(ctx, strings.TrimSpace(eventID), eventType, s.clock.Now(), ttl)
}

func (s *GormDedupStore) Release(ctx context.Context, eventID string) error {
	return s.markers.Delete(ctx, strings.TrimSpace(eventID))
}

// Purge removes expired markers. Redis expires keys by itself.
func (s *GormDedupStore) Purge(ctx context.Context) (int64, error) {
	return s.markers.PurgeExpired(ctx, s.clock.Now())
}
