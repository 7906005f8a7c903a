package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
local body = redis.call('HGET', KEYS[3], id)
if not body then
  return {id, ''}
end
redis.call('ZADD', KEYS[2], ARGV[2], id)
return {id, body}
`)

var requeueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('ZADD', KEYS[2], ARGV[1], id)
end
return #ids
`)

// Consume runs up to concurrency handler invocations at a time until ctx is
// cancelled. Failed jobs are retried with exponential backoff and quarantined
// once they reach the attempt ceiling.
func (q *Queue) Consume(ctx context.Context, name string, concurrency int, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is nil")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	q.logger.Info("consumer start", zap.String("queue", name), zap.Int("concurrency", concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			q.work(gctx, name, handler)
			return nil
		})
	}
	g.Go(func() error {
		q.watchLeases(gctx, name)
		return nil
	})

	err := g.Wait()
	q.logger.Info("consumer stop", zap.String("queue", name))
	return err
}

func (q *Queue) work(ctx context.Context, name string, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := q.ProcessNext(ctx, name, handler)
		if err != nil && ctx.Err() == nil {
			q.logger.Warn("process job failed", zap.String("queue", name), zap.Error(err))
		}
		if processed && err == nil {
			continue
		}
		if !sleep(ctx, q.cfg.PollInterval) {
			return
		}
	}
}

func (q *Queue) watchLeases(ctx context.Context, name string) {
	ticker := time.NewTicker(q.cfg.LeaseTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.RecoverStale(ctx, name); err != nil && ctx.Err() == nil {
				q.logger.Warn("recover stale jobs failed", zap.String("queue", name), zap.Error(err))
			}
		}
	}
}

// RecoverStale returns jobs whose lease expired to the waiting set.
func (q *Queue) RecoverStale(ctx context.Context, name string) (int, error) {
	n, err := requeueScript.Run(ctx, q.client,
		[]string{q.activeKey(name), q.waitingKey(name)},
		q.now().UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("recover %s: %w", name, err)
	}
	if n > 0 {
		q.logger.Warn("requeued expired leases", zap.String("queue", name), zap.Int("jobs", n))
	}
	return n, nil
}

// ProcessNext claims one due job and runs handler on it. It reports whether a
// job was claimed. Handler failures are absorbed into the retry policy and are
// not returned.
func (q *Queue) ProcessNext(ctx context.Context, name string, handler Handler) (bool, error) {
	now := q.now()
	res, err := claimScript.Run(ctx, q.client,
		[]string{q.waitingKey(name), q.activeKey(name), q.jobsKey(name)},
		now.UnixMilli(), now.Add(q.cfg.LeaseTimeout).UnixMilli(),
	).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("claim %s: %w", name, err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("claim %s: unexpected reply length %d", name, len(res))
	}
	if res[1] == "" {
		q.logger.Warn("dropped job without envelope", zap.String("queue", name), zap.String("job_id", res[0]))
		return true, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		job = Job{ID: res[0], Queue: name, Payload: json.RawMessage(res[1])}
		return true, q.fail(ctx, name, &job, fmt.Errorf("decode envelope: %w", err))
	}

	if err := runHandler(ctx, handler, &job); err != nil {
		return true, q.fail(ctx, name, &job, err)
	}
	return true, q.complete(ctx, name, job.ID)
}

func runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) complete(ctx context.Context, name, id string) error {
	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.jobsKey(name), id)
	pipe.ZRem(ctx, q.activeKey(name), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete %s job %s: %w", name, id, err)
	}
	return nil
}

func (q *Queue) fail(ctx context.Context, name string, job *Job, cause error) error {
	job.Attempts++
	job.LastError = cause.Error()
	envelope, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal %s job: %w", name, err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.activeKey(name), job.ID)
	if job.Attempts >= q.cfg.MaxAttempts {
		pipe.HDel(ctx, q.jobsKey(name), job.ID)
		pipe.LPush(ctx, q.deadKey(name), envelope)
		pipe.LTrim(ctx, q.deadKey(name), 0, q.cfg.DeadLimit-1)
		q.logger.Error("job quarantined",
			zap.String("queue", name),
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.Error(cause),
		)
	} else {
		delay := Backoff(job.Attempts, q.cfg.BackoffBase, q.cfg.BackoffMax)
		pipe.HSet(ctx, q.jobsKey(name), job.ID, envelope)
		pipe.ZAdd(ctx, q.waitingKey(name), redis.Z{
			Score:  float64(q.now().Add(delay).UnixMilli()),
			Member: job.ID,
		})
		q.logger.Warn("job failed",
			zap.String("queue", name),
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.Duration("retry_in", delay),
			zap.Error(cause),
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reschedule %s job %s: %w", name, job.ID, err)
	}
	return nil
}

// Backoff returns the delay before retry number attempt (1-based): base doubled
// for every previous attempt, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
