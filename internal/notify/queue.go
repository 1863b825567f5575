package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

const DefaultQueue = "notifications:default"

// Queue is one named delivery queue.
type Queue interface {
	Name() string
	Push(ctx context.Context, job Job) error
}

// QueueName returns the queue for a channel type; unknown types share the
// default queue.
func QueueName(t domain.ChannelType) string {
	switch t {
	case domain.ChannelEmail, domain.ChannelSlack, domain.ChannelPagerDuty, domain.ChannelWebhook,
		domain.ChannelSMS, domain.ChannelTeams, domain.ChannelDiscord:
		return "notifications:" + string(t)
	}
	return DefaultQueue
}

// Router hands out one queue per name, created on first use.
type Router struct {
	mu     sync.Mutex
	open   func(name string) Queue
	queues map[string]Queue
}

func NewRouter(open func(name string) Queue) *Router {
	return &Router{open: open, queues: map[string]Queue{}}
}

func (r *Router) Select(t domain.ChannelType) Queue {
	name := QueueName(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[name]
	if !ok {
		q = r.open(name)
		r.queues[name] = q
	}
	return q
}

// RedisQueue pushes JSON jobs onto a Redis list.
type RedisQueue struct {
	Client *redis.Client
	Key    string
}

func (q *RedisQueue) Name() string { return q.Key }

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.Client.LPush(ctx, q.Key, b).Err()
}

// RedisQueues opens Redis-backed queues for a Router.
func RedisQueues(c *redis.Client) func(string) Queue {
	return func(name string) Queue { return &RedisQueue{Client: c, Key: name} }
}

// MemoryQueue keeps jobs in process.
type MemoryQueue struct {
	name string
	mu   sync.Mutex
	jobs []Job
}

func NewMemoryQueue(name string) *MemoryQueue { return &MemoryQueue{name: name} }

func (q *MemoryQueue) Name() string { return q.name }

func (q *MemoryQueue) Push(_ context.Context, job Job) error {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	return nil
}

// Drain returns and clears the queued jobs.
func (q *MemoryQueue) Drain() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.jobs
	q.jobs = nil
	return out
}

func MemoryQueues() func(string) Queue {
	return func(name string) Queue { return NewMemoryQueue(name) }
}
