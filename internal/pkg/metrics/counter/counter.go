// Package counter keeps running totals of webhook ingest outcomes in Redis.
package counter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const outcomesKey = "webhook:counters:outcomes"

// Outcomes is a Redis hash of outcome name to total.
type Outcomes struct {
	client *redis.Client
	key    string
}

func New(client *redis.Client) *Outcomes {
	return &Outcomes{client: client, key: outcomesKey}
}

// Add increments every non-zero delta in one transaction.
func (o *Outcomes) Add(ctx context.Context, deltas map[string]int) error {
	pipe := o.client.TxPipeline()
	queued := 0
	for field, n := range deltas {
		if n == 0 {
			continue
		}
		pipe.HIncrBy(ctx, o.key, field, int64(n))
		queued++
	}
	if queued == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot returns the current totals.
func (o *Outcomes) Snapshot(ctx context.Context) (map[string]int64, error) {
	data, err := o.client.HGetAll(ctx, o.key).Result()
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int64, len(data))
	for field, raw := range data {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", field, err)
		}
		totals[field] = n
	}
	return totals, nil
}
