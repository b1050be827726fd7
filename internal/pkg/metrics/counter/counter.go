// Package counter keeps operational totals in Redis hashes so that every
// process (server, workers, cmd/remind) contributes to the same numbers.
package counter

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	dispatchKey = "subtrack:counters:dispatch"
	webhookKey  = "subtrack:counters:webhooks"
)

// Stats is a snapshot of all counters.
type Stats struct {
	Dispatch map[string]int64 `json:"dispatch"`
	Webhooks map[string]int64 `json:"webhooks"`
}

type Counter struct {
	client *redis.Client
}

func New(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// RecordDispatch adds one run's totals. Errors are logged, never returned:
// counters must not fail a dispatch.
func (c *Counter) RecordDispatch(ctx context.Context, processed, skipped, failed int) {
	pipe := c.client.TxPipeline()
	pipe.HIncrBy(ctx, dispatchKey, "runs", 1)
	pipe.HIncrBy(ctx, dispatchKey, "processed", int64(processed))
	pipe.HIncrBy(ctx, dispatchKey, "skipped", int64(skipped))
	pipe.HIncrBy(ctx, dispatchKey, "failed", int64(failed))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[Counter] Failed to record dispatch totals: %v", err)
	}
}

// RecordWebhook increments the counter for one reconciliation outcome.
func (c *Counter) RecordWebhook(ctx context.Context, outcome string) {
	if outcome == "" {
		outcome = "error"
	}
	if err := c.client.HIncrBy(ctx, webhookKey, outcome, 1).Err(); err != nil {
		log.Warnf("[Counter] Failed to record webhook outcome %s: %v", outcome, err)
	}
}

func (c *Counter) Stats(ctx context.Context) (Stats, error) {
	dispatch, err := c.readHash(ctx, dispatchKey)
	if err != nil {
		return Stats{}, err
	}
	webhooks, err := c.readHash(ctx, webhookKey)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Dispatch: dispatch, Webhooks: webhooks}, nil
}

func (c *Counter) readHash(ctx context.Context, key string) (map[string]int64, error) {
	data, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}
