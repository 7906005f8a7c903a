package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Hash string `json:"hash"`
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T, cfg Config) (*Queue, *miniredis.Miniredis, *clock) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := &clock{t: time.Unix(1_700_000_000, 0)}
	q := New(client, cfg, nil)
	q.now = c.now
	return q, mr, c
}

func TestEnqueueDedupeByJobID(t *testing.T) {
	q, _, _ := newTestQueue(t, Config{})
	ctx := context.Background()

	added, err := q.Enqueue(ctx, "tokens", payload{Hash: "0x1"}, Options{JobID: "0xabc:1"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Enqueue(ctx, "tokens", payload{Hash: "0x1"}, Options{JobID: "0xabc:1"})
	require.NoError(t, err)
	assert.False(t, added)

	counts, err := q.Counts(ctx, "tokens")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Waiting)

	_, err = q.Enqueue(ctx, "tokens", payload{Hash: "0x1"}, Options{})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "tokens", payload{Hash: "0x1"}, Options{})
	require.NoError(t, err)

	counts, err = q.Counts(ctx, "tokens")
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Waiting)
}

func TestJobIDReusableAfterCompletion(t *testing.T) {
	q, _, _ := newTestQueue(t, Config{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "orders", payload{Hash: "0x1"}, Options{JobID: "x"})
	require.NoError(t, err)

	processed, err := q.ProcessNext(ctx, "orders", func(context.Context, *Job) error { return nil })
	require.NoError(t, err)
	require.True(t, processed)

	added, err := q.Enqueue(ctx, "orders", payload{Hash: "0x1"}, Options{JobID: "x"})
	require.NoError(t, err)
	assert.True(t, added)
}

func TestDelayedDelivery(t *testing.T) {
	q, _, clk := newTestQueue(t, Config{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "tokens", payload{Hash: "0x1"}, Options{Delay: time.Hour})
	require.NoError(t, err)

	var got payload
	handler := func(_ context.Context, job *Job) error { return job.Decode(&got) }

	processed, err := q.ProcessNext(ctx, "tokens", handler)
	require.NoError(t, err)
	assert.False(t, processed)

	clk.advance(time.Hour)
	processed, err = q.ProcessNext(ctx, "tokens", handler)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, "0x1", got.Hash)

	counts, err := q.Counts(ctx, "tokens")
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)
}

func TestRetryThenQuarantine(t *testing.T) {
	q, _, clk := newTestQueue(t, Config{BackoffBase: time.Second, BackoffMax: time.Minute, DeadLimit: 2})
	ctx := context.Background()

	fail := func(context.Context, *Job) error { return errors.New("storage unavailable") }

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, "fills", payload{Hash: "0x1"}, Options{})
		require.NoError(t, err)
	}

	calls := 0
	for {
		processed, err := q.ProcessNext(ctx, "fills", func(ctx context.Context, job *Job) error {
			calls++
			return fail(ctx, job)
		})
		require.NoError(t, err)
		if !processed {
			counts, err := q.Counts(ctx, "fills")
			require.NoError(t, err)
			if counts.Waiting == 0 {
				break
			}
			clk.advance(time.Minute)
		}
	}

	assert.Equal(t, 30, calls)

	dead, err := q.Dead(ctx, "fills", 0)
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, 10, dead[0].Attempts)
	assert.Equal(t, "storage unavailable", dead[0].LastError)
}

func TestHandlerPanicIsRetried(t *testing.T) {
	q, _, _ := newTestQueue(t, Config{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "orders", payload{Hash: "0x1"}, Options{JobID: "p"})
	require.NoError(t, err)

	processed, err := q.ProcessNext(ctx, "orders", func(context.Context, *Job) error { panic("boom") })
	require.NoError(t, err)
	require.True(t, processed)

	counts, err := q.Counts(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Waiting)
	assert.Equal(t, int64(0), counts.Active)
}

func TestRecoverStaleLease(t *testing.T) {
	q, _, clk := newTestQueue(t, Config{LeaseTimeout: time.Minute})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "orders", payload{Hash: "0x1"}, Options{})
	require.NoError(t, err)

	// Simulate a worker that claimed the job and died.
	_, err = claimScript.Run(ctx, q.client,
		[]string{q.waitingKey("orders"), q.activeKey("orders"), q.jobsKey("orders")},
		clk.t.UnixMilli(), clk.t.Add(time.Minute).UnixMilli(),
	).StringSlice()
	require.NoError(t, err)

	n, err := q.RecoverStale(ctx, "orders")
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.advance(2 * time.Minute)
	n, err = q.RecoverStale(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := q.Counts(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, Counts{Waiting: 1}, counts)
}

func TestAcquireLockOnce(t *testing.T) {
	q, mr, _ := newTestQueue(t, Config{KeyPrefix: "test:"})
	ctx := context.Background()

	ok, err := q.AcquireLock(ctx, "orders-resync-sweep-lock", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.AcquireLock(ctx, "orders-resync-sweep-lock", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = q.AcquireLock(ctx, "orders-resync-sweep-lock", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsumeStopsOnCancel(t *testing.T) {
	q, _, _ := newTestQueue(t, Config{PollInterval: 5 * time.Millisecond, LeaseTimeout: time.Minute})
	q.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, "orders", payload{Hash: "0x1"}, Options{})
		require.NoError(t, err)
	}

	var handled atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, "orders", 3, func(context.Context, *Job) error {
			if handled.Add(1) == 5 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer did not stop")
	}
	assert.Equal(t, int32(5), handled.Load())
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 20, want: time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt, time.Second, time.Minute), "attempt %d", tt.attempt)
	}
}
