package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config controls retry, quarantine and polling behavior.
type Config struct {
	KeyPrefix    string
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	DeadLimit    int64
	PollInterval time.Duration
	LeaseTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = time.Hour
	}
	if c.DeadLimit <= 0 {
		c.DeadLimit = 1000
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = 5 * time.Minute
	}
	return c
}

// Options tune a single enqueue.
type Options struct {
	// Delay postpones the first delivery.
	Delay time.Duration
	// JobID makes the enqueue a no-op while an item with the same id is queued.
	JobID string
}

// Job is the envelope stored for every work item.
type Job struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"createdAt"`
	LastError string          `json:"lastError,omitempty"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s job %s: %w", j.Queue, j.ID, err)
	}
	return nil
}

// Handler processes one job. A returned error schedules a retry.
type Handler func(ctx context.Context, job *Job) error

// Enqueuer is the write side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts Options) (bool, error)
}

// Counts is a snapshot of one queue.
type Counts struct {
	Waiting int64
	Active  int64
	Dead    int64
}

// Queue is a set of named Redis-backed work queues with at-least-once delivery.
type Queue struct {
	client redis.UniversalClient
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New builds a Queue on top of an existing Redis client.
func New(client redis.UniversalClient, cfg Config, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

var enqueueScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// Enqueue schedules payload on the named queue. It returns false when opts.JobID
// matched an item that is still waiting, delayed or running.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts Options) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("queue name is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal %s payload: %w", name, err)
	}

	now := q.now()
	job := Job{
		ID:        opts.JobID,
		Queue:     name,
		Payload:   body,
		CreatedAt: now.UTC(),
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	envelope, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshal %s job: %w", name, err)
	}

	runAt := now.Add(opts.Delay)
	added, err := enqueueScript.Run(ctx, q.client,
		[]string{q.jobsKey(name), q.waitingKey(name)},
		job.ID, envelope, runAt.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", name, err)
	}
	if added == 0 {
		q.logger.Debug("duplicate job skipped", zap.String("queue", name), zap.String("job_id", job.ID))
		return false, nil
	}
	return true, nil
}

// Counts returns the number of waiting, running and quarantined items.
func (q *Queue) Counts(ctx context.Context, name string) (Counts, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.ZCard(ctx, q.waitingKey(name))
	active := pipe.ZCard(ctx, q.activeKey(name))
	dead := pipe.LLen(ctx, q.deadKey(name))
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, fmt.Errorf("count %s: %w", name, err)
	}
	return Counts{Waiting: waiting.Val(), Active: active.Val(), Dead: dead.Val()}, nil
}

// Dead returns up to limit quarantined jobs, newest first.
func (q *Queue) Dead(ctx context.Context, name string, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = q.cfg.DeadLimit
	}
	items, err := q.client.LRange(ctx, q.deadKey(name), 0, limit-1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dead %s: %w", name, err)
	}
	jobs := make([]Job, 0, len(items))
	for _, item := range items {
		var job Job
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			q.logger.Warn("skip unreadable dead job", zap.String("queue", name), zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Keys share a hash tag so the multi-key scripts stay on one cluster slot.
func (q *Queue) key(name, suffix string) string {
	return q.cfg.KeyPrefix + "queue:{" + name + "}:" + suffix
}

func (q *Queue) jobsKey(name string) string    { return q.key(name, "jobs") }
func (q *Queue) waitingKey(name string) string { return q.key(name, "waiting") }
func (q *Queue) activeKey(name string) string  { return q.key(name, "active") }
func (q *Queue) deadKey(name string) string    { return q.key(name, "dead") }
