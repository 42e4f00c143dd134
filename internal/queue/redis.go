package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ureshii/partner/internal/config"
)

// RedisQueue is the Redis-backed queue. Producers LPUSH job IDs onto the
// pending list; consumers move entries to a processing list (BLMOVE) and
// remove them only after execution reaches a verdict, so a consumer crash
// leaves the entry in the processing list for reclaim and redelivery
// (at-least-once).
type RedisQueue struct {
	client     *redis.Client
	pending    string
	processing string
	lockPrefix string
	lockTTL    time.Duration
}

// NewRedisQueue creates the Redis backend from configuration.
func NewRedisQueue(cfg *config.RedisConfig) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ureshii"
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}

	return &RedisQueue{
		client:     redis.NewClient(opts),
		pending:    prefix + ":jobs",
		processing: prefix + ":jobs:processing",
		lockPrefix: prefix + ":jobs:lock:",
		lockTTL:    lockTTL,
	}, nil
}

// Enqueue pushes a job ID onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.pending, jobID).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job ID, atomically moving it
// to the processing list. Returns empty string when the timeout elapses
// with no work.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	jobID, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to dequeue: %w", err)
	}
	return jobID, nil
}

// Ack removes a delivered job ID from the processing list once execution
// reached a verdict. An unacked entry is redelivered by Reclaim.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	return q.client.LRem(ctx, q.processing, 1, jobID).Err()
}

// Requeue moves a delivered job ID from the processing list back to the
// pending list so another consumer picks it up. Used when execution hit
// an infrastructure failure rather than a verdict; the caller must have
// released the job lock first.
func (q *RedisQueue) Requeue(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processing, 1, jobID)
	pipe.LPush(ctx, q.pending, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", jobID, err)
	}
	return nil
}

// Reclaim moves all orphaned processing entries back to the pending list.
// Called on consumer startup; entries belong to consumers that crashed
// before acking. Redelivery is safe due to executor idempotence.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.client.LMove(ctx, q.processing, q.pending, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to reclaim processing entries: %w", err)
		}
		moved++
	}
}

// AcquireLock takes a short-lived per-job lock so concurrent consumers
// skip duplicate deliveries instead of racing on the same job. Returns
// false when another consumer holds the job.
func (q *RedisQueue) AcquireLock(ctx context.Context, jobID string) (bool, error) {
	return q.client.SetNX(ctx, q.lockPrefix+jobID, "1", q.lockTTL).Result()
}

// ReleaseLock drops the per-job lock.
func (q *RedisQueue) ReleaseLock(ctx context.Context, jobID string) error {
	return q.client.Del(ctx, q.lockPrefix+jobID).Err()
}

// Ping checks queue backend reachability for health checks.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
