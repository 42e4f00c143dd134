package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ureshii/partner/internal/domain"
	"github.com/ureshii/partner/internal/pipeline"
)

// recordingQueue captures enqueued job IDs without executing anything,
// mimicking an external broker.
type recordingQueue struct {
	mu     sync.Mutex
	jobIDs []string
	fail   error
}

func (q *recordingQueue) Enqueue(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return q.fail
	}
	q.jobIDs = append(q.jobIDs, jobID)
	return nil
}

func newTestDispatcher(store JobStore, prov CompletionProvider, q Enqueuer) *Dispatcher {
	cfg := pipelineConfig()
	registry := pipeline.NewRegistry(cfg)
	exec := NewExecutor(store, registry, prov, nil, &ExecutorConfig{MaxAttempts: cfg.MaxAttempts})
	return NewDispatcher(store, registry, exec, q, cfg)
}

func TestDispatcher_SubmitValidation(t *testing.T) {
	store := newMemStore()
	cfg := pipelineConfig()
	cfg.AllowedModels = []string{"openai/gpt-4"}
	registry := pipeline.NewRegistry(cfg)
	exec := NewExecutor(store, registry, &fakeProvider{}, nil, &ExecutorConfig{MaxAttempts: cfg.MaxAttempts})
	d := NewDispatcher(store, registry, exec, &recordingQueue{}, cfg)
	ctx := context.Background()

	tests := []struct {
		name    string
		prompt  string
		opts    domain.JobOptions
		wantErr error
	}{
		{
			name:    "empty prompt",
			prompt:  "",
			wantErr: domain.ErrEmptyPrompt,
		},
		{
			name:    "oversized prompt",
			prompt:  strings.Repeat("x", 2001),
			wantErr: domain.ErrPromptTooLarge,
		},
		{
			name:    "unknown pipeline",
			prompt:  "hello",
			opts:    domain.JobOptions{PipelineName: "nope"},
			wantErr: domain.ErrUnknownPipeline,
		},
		{
			name:    "invalid mode",
			prompt:  "hello",
			opts:    domain.JobOptions{Mode: "batch"},
			wantErr: domain.ErrInvalidMode,
		},
		{
			name:    "disallowed model override",
			prompt:  "hello",
			opts:    domain.JobOptions{CoderModel: "evil/model"},
			wantErr: domain.ErrModelNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Submit(ctx, "alice", tt.prompt, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// Rejected submissions never create a job.
	if n := len(store.jobs); n != 0 {
		t.Errorf("expected no jobs after rejected submissions, got %d", n)
	}
}

func TestDispatcher_SubmitSyncCompletes(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, &fakeProvider{}, &recordingQueue{})

	job, err := d.Submit(context.Background(), "alice", "build a parser", domain.JobOptions{Mode: domain.ModeSync})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected sync submission to return a completed job, got %s", job.Status)
	}
	if job.PipelineName != "ureshii-p1" {
		t.Errorf("expected default pipeline, got %q", job.PipelineName)
	}
	if len(job.StageResults) != 3 || job.Result == "" {
		t.Errorf("expected 3 stages and a result, got stages=%d result=%q", len(job.StageResults), job.Result)
	}
	if job.Owner != "alice" {
		t.Errorf("expected owner recorded, got %q", job.Owner)
	}
}

func TestDispatcher_SubmitSyncRetriesTransientFailure(t *testing.T) {
	store := newMemStore()
	prov := &fakeProvider{failNext: 2}
	d := newTestDispatcher(store, prov, &recordingQueue{})

	job, err := d.Submit(context.Background(), "alice", "build a parser", domain.JobOptions{Mode: domain.ModeSync})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completion after retries, got %s", job.Status)
	}
}

func TestDispatcher_SubmitSyncExhaustionReturnsFailedJob(t *testing.T) {
	store := newMemStore()
	prov := &fakeProvider{failNext: 100}
	d := newTestDispatcher(store, prov, &recordingQueue{})

	job, err := d.Submit(context.Background(), "alice", "build a parser", domain.JobOptions{Mode: domain.ModeSync})
	if err != nil {
		t.Fatalf("expected the failed job, not an error: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.LastError == "" {
		t.Error("expected last_error on the failed job")
	}
}

func TestDispatcher_SubmitQueueStaysPending(t *testing.T) {
	store := newMemStore()
	q := &recordingQueue{}
	d := newTestDispatcher(store, &fakeProvider{}, q)

	job, err := d.Submit(context.Background(), "alice", "build a parser", domain.JobOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("expected queue submission to return a pending job, got %s", job.Status)
	}
	if len(q.jobIDs) != 1 || q.jobIDs[0] != job.ID {
		t.Errorf("expected the job ID enqueued once, got %v", q.jobIDs)
	}
}

func TestDispatcher_SubmitQueueBackendFailure(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, &fakeProvider{}, &recordingQueue{fail: errors.New("broker down")})

	_, err := d.Submit(context.Background(), "alice", "build a parser", domain.JobOptions{})
	if !errors.Is(err, domain.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
}

func TestDispatcher_IdenticalSubmissionsGetDistinctJobs(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, &fakeProvider{}, &recordingQueue{})
	ctx := context.Background()

	a, err := d.Submit(ctx, "alice", "same prompt", domain.JobOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := d.Submit(ctx, "alice", "same prompt", domain.JobOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == b.ID {
		t.Errorf("expected distinct job IDs, both got %q", a.ID)
	}
}

func TestDispatcher_GetResult(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, &fakeProvider{}, &recordingQueue{})
	ctx := context.Background()

	job, err := d.Submit(ctx, "alice", "build a parser", domain.JobOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := d.GetResult(ctx, job.ID); !errors.Is(err, domain.ErrJobNotCompleted) {
		t.Fatalf("expected ErrJobNotCompleted before execution, got %v", err)
	}

	store.MarkRunning(ctx, job.ID)
	store.MarkCompleted(ctx, job.ID, "final answer")

	result, err := d.GetResult(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "final answer" {
		t.Errorf("expected the stored result, got %q", result)
	}

	if _, err := d.GetResult(ctx, "missing"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound for missing job, got %v", err)
	}
}

func TestDispatcher_GetResultOfFailedJob(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, &fakeProvider{}, &recordingQueue{})
	ctx := context.Background()

	job, _ := d.Submit(ctx, "alice", "build a parser", domain.JobOptions{})
	store.MarkRunning(ctx, job.ID)
	store.MarkFailed(ctx, job.ID, "boom", nil)

	if _, err := d.GetResult(ctx, job.ID); !errors.Is(err, domain.ErrJobNotCompleted) {
		t.Errorf("expected ErrJobNotCompleted for failed job, got %v", err)
	}
}
