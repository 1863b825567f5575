//go:build integration

package notify

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func TestRedisQueue_Push(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer c.Close()

	r := NewRouter(func(name string) Queue { return &RedisQueue{Client: c, Key: "test:" + name} })
	q := r.Select(domain.ChannelTeams)
	_ = c.Del(ctx, q.Name()).Err()

	if err := q.Push(ctx, Job{ID: "j1", ChannelType: domain.ChannelTeams}); err != nil {
		t.Fatal(err)
	}
	raw, err := c.RPop(ctx, q.Name()).Result()
	if err != nil {
		t.Fatal(err)
	}
	var got Job
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "j1" {
		t.Fatalf("want j1, got %+v", got)
	}
}
