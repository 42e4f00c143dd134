package queue

import (
	"context"

	"github.com/ureshii/partner/internal/domain"
)

// InlineQueue is the no-queue backend: Enqueue executes the job
// immediately in the calling goroutine, driving retryable stage failures
// until the executor reaches a verdict. Used when no external queue is
// configured.
type InlineQueue struct {
	runner Runner
}

// NewInlineQueue creates the inline backend.
func NewInlineQueue(runner Runner) *InlineQueue {
	return &InlineQueue{runner: runner}
}

// Enqueue runs the job to a terminal state inline. The executor's attempt
// budget bounds the loop. A verdict on the job record (including an
// exhausted, failed job) is a successful dispatch; only infrastructure
// failures surface as enqueue errors.
func (q *InlineQueue) Enqueue(ctx context.Context, jobID string) error {
	for {
		err := q.runner.Execute(ctx, jobID)
		if err == nil || domain.IsVerdict(err) {
			return nil
		}
		if !domain.IsRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Ping always succeeds; there is no external backend to reach.
func (q *InlineQueue) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (q *InlineQueue) Close() error { return nil }
