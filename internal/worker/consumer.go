package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ureshii/partner/internal/domain"
	"github.com/ureshii/partner/internal/logger"
	"github.com/ureshii/partner/internal/queue"
)

// Runner executes one delivery attempt for a job (service.Executor).
type Runner interface {
	Execute(ctx context.Context, jobID string) error
}

// Consumer pulls job IDs from the Redis queue and drives them to a
// terminal state. Multiple consumers may run against the same queue;
// the per-job lock skips duplicate deliveries and the executor's stage
// cursor makes any that slip through harmless.
type Consumer struct {
	queue       *queue.RedisQueue
	runner      Runner
	concurrency int
	popTimeout  time.Duration
}

// Config holds consumer tuning.
type Config struct {
	Concurrency int
	PopTimeout  time.Duration
}

// NewConsumer creates a Redis queue consumer.
func NewConsumer(q *queue.RedisQueue, runner Runner, cfg *Config) *Consumer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	popTimeout := cfg.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 15 * time.Second
	}
	return &Consumer{
		queue:       q,
		runner:      runner,
		concurrency: concurrency,
		popTimeout:  popTimeout,
	}
}

// Run reclaims orphaned deliveries, then processes the queue with the
// configured number of worker goroutines until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	reclaimed, err := c.queue.Reclaim(ctx)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.CtxInfo(ctx, "Reclaimed %d unacknowledged deliveries", reclaimed)
	}

	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.loop(ctx, workerID)
		}(i)
	}
	wg.Wait()
	return nil
}

func (c *Consumer) loop(ctx context.Context, workerID int) {
	log := logger.FromContext(ctx).WithField("worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Info("Worker shutting down")
			return
		default:
		}

		jobID, err := c.queue.Dequeue(ctx, c.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("Dequeue failed; backing off")
			time.Sleep(time.Second)
			continue
		}
		if jobID == "" {
			continue
		}

		c.process(ctx, log, jobID)
	}
}

// process drives one delivery to a verdict and acks it. A crash anywhere
// in here leaves the entry in the processing list for redelivery.
func (c *Consumer) process(ctx context.Context, log *logger.Logger, jobID string) {
	log = log.WithField(logger.FieldJobID, jobID)
	ctx = log.WithContext(ctx)

	locked, err := c.queue.AcquireLock(ctx, jobID)
	if err != nil {
		log.WithError(err).Warn("Lock acquisition failed; leaving delivery for retry")
		return
	}
	if !locked {
		// Another consumer holds this job; drop our delivery, theirs
		// carries the work.
		log.Info("Job locked by another consumer; acking duplicate delivery")
		if err := c.queue.Ack(ctx, jobID); err != nil {
			log.WithError(err).Warn("Failed to ack duplicate delivery")
		}
		return
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := c.queue.ReleaseLock(ctx, jobID); err != nil {
			log.WithError(err).Warn("Failed to release job lock")
		}
	}
	defer release()

	for {
		err := c.runner.Execute(ctx, jobID)
		if err == nil {
			break
		}
		if domain.IsVerdict(err) {
			// The job record holds the outcome (or the job is gone);
			// nothing left to drive.
			log.WithError(err).Error("Execution finished without success")
			break
		}
		if domain.IsRetryable(err) {
			if ctx.Err() != nil {
				// Shutting down mid-retry: leave the entry unacked so it
				// is redelivered to another consumer.
				return
			}
			continue
		}

		// Infrastructure failure (job store unreachable, context torn
		// down): the job may never have run, so the delivery must
		// survive. Hand it back to the pending list; if even that fails
		// the entry stays in the processing list for reclaim.
		log.WithError(err).Warn("Execution hit an infrastructure failure; requeueing delivery")
		release()
		if rerr := c.queue.Requeue(ctx, jobID); rerr != nil {
			log.WithError(rerr).Warn("Failed to requeue delivery; leaving it for reclaim")
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}

	if err := c.queue.Ack(ctx, jobID); err != nil {
		log.WithError(err).Warn("Failed to ack delivery; a redelivery will no-op")
	}
}
