package queue

import (
	"context"
	"fmt"

	"github.com/ureshii/partner/internal/config"
)

// Queue is the common contract over the pluggable backends. Enqueue hands
// a job ID to the backend for at-least-once delivery to some future
// consumer; duplicate deliveries are safe because the executor is
// idempotent per stage.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	Ping(ctx context.Context) error
	Close() error
}

// Runner executes one delivery attempt for a job. Implemented by
// service.Executor; declared here so backends stay decoupled from the
// service package.
type Runner interface {
	Execute(ctx context.Context, jobID string) error
}

// New selects the queue backend once at startup from configuration.
// Variants: "none" (inline execution), "redis", "qstash".
func New(cfg *config.QueueConfig, runner Runner) (Queue, error) {
	switch cfg.Backend {
	case "", "none":
		return NewInlineQueue(runner), nil
	case "redis":
		return NewRedisQueue(&cfg.Redis)
	case "qstash":
		return NewQStashQueue(&cfg.QStash)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
