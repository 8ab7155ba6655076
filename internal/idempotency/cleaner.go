package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cleanerScanBatch = 100

// Cleaner removes idempotency keys that lost their TTL or carry one longer
// than maxTTL.
type Cleaner struct {
	client   *redis.Client
	log      *slog.Logger
	interval time.Duration
	maxTTL   time.Duration
}

func NewCleaner(client *redis.Client, log *slog.Logger, interval, maxTTL time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	return &Cleaner{client: client, log: log, interval: interval, maxTTL: maxTTL}
}

// Run sweeps every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.client == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := c.Sweep(ctx)
			if err != nil {
				c.log.ErrorContext(ctx, "idempotency sweep failed", slog.Any("error", err))
			}
			if removed > 0 {
				c.log.InfoContext(ctx, "idempotency keys cleaned", slog.Int("keys_removed", removed))
			}
		}
	}
}

// Sweep performs one pass over the keyspace and reports how many keys it
// removed.
func (c *Cleaner) Sweep(ctx context.Context) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", cleanerScanBatch).Iterator()

	batch := make([]string, 0, cleanerScanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cleanerScanBatch {
			n, err := c.sweepBatch(ctx, batch)
			removed += n
			if err != nil {
				return removed, err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}

	n, err := c.sweepBatch(ctx, batch)
	return removed + n, err
}

func (c *Cleaner) sweepBatch(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := c.client.Pipeline()
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, key := range keys {
		ttls[i] = pipe.TTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	var stale []string
	for i, cmd := range ttls {
		ttl, err := cmd.Result()
		if err != nil {
			continue
		}
		if ttl == -1 || (c.maxTTL > 0 && ttl > c.maxTTL) {
			stale = append(stale, keys[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := c.client.Unlink(ctx, stale...).Result()
	return int(n), err
}
