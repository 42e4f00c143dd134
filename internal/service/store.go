package service

import (
	"context"

	"github.com/ureshii/partner/internal/domain"
	"github.com/ureshii/partner/internal/provider"
)

// JobStore is the durable record of jobs, implemented by
// repository.JobRepository. Guarded updates (AdvanceStage, Mark*) are the
// serialization point for concurrent deliveries of the same job.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	ListByOwner(ctx context.Context, owner string, skip, limit int) ([]domain.Job, error)
	MarkRunning(ctx context.Context, id string) error
	AdvanceStage(ctx context.Context, id string, fromCursor int, result domain.StageResult, results []domain.StageResult) error
	MarkCompleted(ctx context.Context, id string, result string) error
	MarkFailed(ctx context.Context, id string, lastError string, results []domain.StageResult) error
	RecordFailure(ctx context.Context, id string, lastError string) (int, error)
	Ping(ctx context.Context) error
}

// CompletionProvider turns a prompt plus model identifier into generated
// text or a failure. Implemented by provider.Client.
type CompletionProvider interface {
	Complete(ctx context.Context, req *provider.Request) (string, error)
}

// Enqueuer hands a job ID to the configured queue backend for later
// execution. Implemented by the queue package backends.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// ArtifactArchiver persists stage outputs out-of-band. Archive failures
// are logged by callers and never fail the job.
type ArtifactArchiver interface {
	Archive(ctx context.Context, key string, content []byte) error
}
