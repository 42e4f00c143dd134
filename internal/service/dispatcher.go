package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ureshii/partner/internal/config"
	"github.com/ureshii/partner/internal/domain"
	"github.com/ureshii/partner/internal/logger"
	"github.com/ureshii/partner/internal/pipeline"
)

// Dispatcher turns submitted requests into durable jobs and routes them to
// synchronous execution or the configured queue backend. Both paths write
// through the same store and executor, so semantics are identical
// regardless of mode.
type Dispatcher struct {
	store    JobStore
	registry *pipeline.Registry
	executor *Executor
	queue    Enqueuer
	cfg      *config.PipelineConfig
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(store JobStore, registry *pipeline.Registry, executor *Executor, queue Enqueuer, cfg *config.PipelineConfig) *Dispatcher {
	return &Dispatcher{
		store:    store,
		registry: registry,
		executor: executor,
		queue:    queue,
		cfg:      cfg,
	}
}

// Submit validates the request, creates the job in pending state, and
// either drives it to a terminal state (sync) or enqueues it (queue).
// Validation failures reject the request before any job exists.
func (d *Dispatcher) Submit(ctx context.Context, owner, prompt string, reqOpts domain.JobOptions) (*domain.Job, error) {
	opts, err := d.resolveOptions(reqOpts)
	if err != nil {
		return nil, err
	}

	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}
	if len(prompt) > d.cfg.PromptMaxChars {
		return nil, fmt.Errorf("%w: %d chars (max %d)", domain.ErrPromptTooLarge, len(prompt), d.cfg.PromptMaxChars)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:           uuid.New().String(),
		Owner:        owner,
		Prompt:       prompt,
		PipelineName: opts.PipelineName,
		Options:      opts,
		Status:       domain.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := d.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	ctx = logger.WithField(ctx, logger.FieldJobID, job.ID)
	logger.CtxInfo(ctx, "Job submitted: pipeline=%s mode=%s owner=%s", opts.PipelineName, opts.Mode, owner)

	if opts.Mode == domain.ModeSync {
		return d.runSync(ctx, job.ID)
	}

	if err := d.queue.Enqueue(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	// The inline backend has already finished the job by now; re-read so
	// the caller sees whatever state enqueueing produced.
	return d.store.Get(ctx, job.ID)
}

// runSync drives the executor until the job is terminal or the sync
// timeout expires, re-invoking on retryable stage failures.
func (d *Dispatcher) runSync(ctx context.Context, jobID string) (*domain.Job, error) {
	syncCtx, cancel := context.WithTimeout(ctx, d.cfg.SyncTimeout)
	defer cancel()

	for {
		err := d.executor.Execute(syncCtx, jobID)
		if err == nil || !domain.IsRetryable(err) {
			break
		}
		if syncCtx.Err() != nil {
			logger.CtxWarn(ctx, "Sync execution timed out; job continues via retry drivers")
			break
		}
	}

	return d.store.Get(ctx, jobID)
}

// resolveOptions layers request-provided overrides on configured defaults
// exactly once; the result is stored immutably on the job.
func (d *Dispatcher) resolveOptions(reqOpts domain.JobOptions) (domain.JobOptions, error) {
	opts := reqOpts

	if opts.Mode == "" {
		opts.Mode = domain.ModeQueue
	}
	if opts.Mode != domain.ModeSync && opts.Mode != domain.ModeQueue {
		return opts, fmt.Errorf("%w: %q", domain.ErrInvalidMode, opts.Mode)
	}

	if opts.PipelineName == "" {
		opts.PipelineName = d.cfg.DefaultPipeline
	}
	if !d.registry.Known(opts.PipelineName) {
		return opts, fmt.Errorf("%w: %q", domain.ErrUnknownPipeline, opts.PipelineName)
	}

	for _, model := range []string{opts.CoderModel, opts.DebuggerModel, opts.FixerModel, opts.ChatbotModel} {
		if model != "" && !d.registry.ModelAllowed(model) {
			return opts, fmt.Errorf("%w: %q", domain.ErrModelNotAllowed, model)
		}
	}

	return opts, nil
}

// GetJob returns the current job representation.
func (d *Dispatcher) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return d.store.Get(ctx, id)
}

// GetResult returns the final result of a completed job.
// domain.ErrJobNotCompleted is returned for non-terminal or failed jobs.
func (d *Dispatcher) GetResult(ctx context.Context, id string) (string, error) {
	job, err := d.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != domain.JobStatusCompleted {
		return "", fmt.Errorf("%w: status=%s", domain.ErrJobNotCompleted, job.Status)
	}
	return job.Result, nil
}

// ListJobs returns a page of the owner's jobs, newest first.
func (d *Dispatcher) ListJobs(ctx context.Context, owner string, skip, limit int) ([]domain.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if skip < 0 {
		skip = 0
	}
	return d.store.ListByOwner(ctx, owner, skip, limit)
}
