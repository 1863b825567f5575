package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

const (
	checkKey      = "pulsewatch:jobs:checks"
	sloKey        = "pulsewatch:jobs:slo"
	escalationKey = "pulsewatch:jobs:escalations"
)

// RedisBroker keeps check and SLO jobs on lists and escalation steps on a
// sorted set scored by due time.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(c *redis.Client) *RedisBroker {
	return &RedisBroker{client: c}
}

func (b *RedisBroker) EnqueueCheck(ctx context.Context, j CheckJob) error {
	return b.push(ctx, checkKey, j)
}

func (b *RedisBroker) DequeueCheck(ctx context.Context, wait time.Duration) (CheckJob, bool, error) {
	var j CheckJob
	ok, err := b.pop(ctx, checkKey, wait, &j)
	return j, ok, err
}

func (b *RedisBroker) EnqueueSLO(ctx context.Context, j SLOJob) error {
	return b.push(ctx, sloKey, j)
}

func (b *RedisBroker) DequeueSLO(ctx context.Context, wait time.Duration) (SLOJob, bool, error) {
	var j SLOJob
	ok, err := b.pop(ctx, sloKey, wait, &j)
	return j, ok, err
}

func (b *RedisBroker) ScheduleEscalation(ctx context.Context, j EscalationJob) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode escalation job: %w", err)
	}
	return b.client.ZAdd(ctx, escalationKey, redis.Z{
		Score:  float64(j.DueAt.UnixMilli()),
		Member: raw,
	}).Err()
}

func (b *RedisBroker) ClaimDueEscalations(ctx context.Context, now time.Time, limit int) ([]EscalationJob, error) {
	members, err := b.client.ZRangeByScore(ctx, escalationKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range escalations: %w", err)
	}
	var (
		out  []EscalationJob
		errs error
	)
	for _, m := range members {
		// whoever removes the member owns the job
		n, err := b.client.ZRem(ctx, escalationKey, m).Result()
		if err != nil {
			// unclaimed members stay queued; the claimed ones are returned
			return out, multierr.Append(errs, fmt.Errorf("claim escalation: %w", err))
		}
		if n == 0 {
			continue
		}
		var j EscalationJob
		if err := json.Unmarshal([]byte(m), &j); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("decode escalation job: %w", err))
			continue
		}
		out = append(out, j)
	}
	return out, errs
}

func (b *RedisBroker) push(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return b.client.LPush(ctx, key, raw).Err()
}

func (b *RedisBroker) pop(ctx context.Context, key string, wait time.Duration, v any) (bool, error) {
	res, err := b.client.BRPop(ctx, wait, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pop %s: %w", key, err)
	}
	// res is [key, value]
	if err := json.Unmarshal([]byte(res[1]), v); err != nil {
		return false, fmt.Errorf("decode job from %s: %w", key, err)
	}
	return true, nil
}
