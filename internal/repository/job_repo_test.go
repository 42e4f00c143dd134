package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ureshii/partner/internal/config"
	"github.com/ureshii/partner/internal/domain"
)

func newTestRepo(t *testing.T) *JobRepository {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "jobs.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("failed to init database: %v", err)
	}
	return NewJobRepository(db)
}

func newTestJob(id string) *domain.Job {
	now := time.Now().UTC()
	return &domain.Job{
		ID:           id,
		Owner:        "alice",
		Prompt:       "write a parser",
		PipelineName: "ureshii-p1",
		Options: domain.JobOptions{
			Mode:         domain.ModeQueue,
			PipelineName: "ureshii-p1",
		},
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestJobRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := newTestJob("job-1")
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := repo.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Prompt != "write a parser" || got.Status != domain.JobStatusPending {
		t.Errorf("unexpected job: %+v", got)
	}
	if got.Options.PipelineName != "ureshii-p1" {
		t.Errorf("expected options round-trip, got %+v", got.Options)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobRepository_ListByOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i, id := range []string{"job-1", "job-2", "job-3"} {
		job := newTestJob(id)
		job.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		repo.Create(ctx, job)
	}
	other := newTestJob("job-4")
	other.Owner = "bob"
	repo.Create(ctx, other)

	jobs, err := repo.ListByOwner(ctx, "alice", 0, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs for alice, got %d", len(jobs))
	}
	if jobs[0].ID != "job-3" {
		t.Errorf("expected newest first, got %s", jobs[0].ID)
	}

	page, err := repo.ListByOwner(ctx, "alice", 1, 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != "job-2" {
		t.Errorf("expected the middle job on page 2, got %+v", page)
	}
}

func TestJobRepository_AdvanceStage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	repo.Create(ctx, newTestJob("job-1"))

	result := domain.StageResult{
		StageName: "coder",
		AgentRole: domain.RoleCoder,
		Output:    "code",
	}
	if err := repo.AdvanceStage(ctx, "job-1", 0, result, nil); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	job, _ := repo.Get(ctx, "job-1")
	if job.StageCursor != 1 {
		t.Errorf("expected cursor 1, got %d", job.StageCursor)
	}
	if job.Status != domain.JobStatusRunning {
		t.Errorf("expected running, got %s", job.Status)
	}
	if len(job.StageResults) != 1 || job.StageResults[0].Output != "code" {
		t.Errorf("expected stage result persisted, got %+v", job.StageResults)
	}
}

func TestJobRepository_AdvanceStageConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	repo.Create(ctx, newTestJob("job-1"))

	result := domain.StageResult{StageName: "coder", AgentRole: domain.RoleCoder, Output: "first"}
	if err := repo.AdvanceStage(ctx, "job-1", 0, result, nil); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	// A concurrent delivery racing on the same cursor slot loses.
	dup := domain.StageResult{StageName: "coder", AgentRole: domain.RoleCoder, Output: "second"}
	err := repo.AdvanceStage(ctx, "job-1", 0, dup, nil)
	if !errors.Is(err, domain.ErrStageConflict) {
		t.Fatalf("expected ErrStageConflict, got %v", err)
	}

	job, _ := repo.Get(ctx, "job-1")
	if len(job.StageResults) != 1 || job.StageResults[0].Output != "first" {
		t.Errorf("expected the winner's result to stand, got %+v", job.StageResults)
	}
}

func TestJobRepository_AdvanceStageResetsAttempts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	repo.Create(ctx, newTestJob("job-1"))

	if _, err := repo.RecordFailure(ctx, "job-1", "transient"); err != nil {
		t.Fatalf("record failure failed: %v", err)
	}
	if err := repo.AdvanceStage(ctx, "job-1", 0, domain.StageResult{StageName: "coder"}, nil); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	job, _ := repo.Get(ctx, "job-1")
	if job.AttemptCount != 0 {
		t.Errorf("expected attempt counter reset on advance, got %d", job.AttemptCount)
	}
}

func TestJobRepository_RecordFailureIncrements(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	repo.Create(ctx, newTestJob("job-1"))

	for want := 1; want <= 3; want++ {
		got, err := repo.RecordFailure(ctx, "job-1", "provider down")
		if err != nil {
			t.Fatalf("record failure failed: %v", err)
		}
		if got != want {
			t.Errorf("expected attempt count %d, got %d", want, got)
		}
	}

	job, _ := repo.Get(ctx, "job-1")
	if job.LastError != "provider down" {
		t.Errorf("expected last_error recorded, got %q", job.LastError)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("expected status untouched by attempt accounting, got %s", job.Status)
	}
}

func TestJobRepository_TerminalStatesAreImmutable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	repo.Create(ctx, newTestJob("job-1"))

	if err := repo.MarkCompleted(ctx, "job-1", "done"); err != nil {
		t.Fatalf("mark completed failed: %v", err)
	}

	// Late duplicate deliveries must not regress or rewrite the verdict.
	if err := repo.MarkFailed(ctx, "job-1", "late failure", nil); err != nil {
		t.Fatalf("mark failed errored: %v", err)
	}
	if err := repo.MarkRunning(ctx, "job-1"); err != nil {
		t.Fatalf("mark running errored: %v", err)
	}
	err := repo.AdvanceStage(ctx, "job-1", 0, domain.StageResult{StageName: "coder"}, nil)
	if !errors.Is(err, domain.ErrStageConflict) {
		t.Fatalf("expected ErrStageConflict on terminal job, got %v", err)
	}

	job, _ := repo.Get(ctx, "job-1")
	if job.Status != domain.JobStatusCompleted || job.Result != "done" {
		t.Errorf("expected terminal state preserved, got status=%s result=%q", job.Status, job.Result)
	}
}

func TestJobRepository_MarkFailedRecordsStageResults(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	repo.Create(ctx, newTestJob("job-1"))

	results := []domain.StageResult{{
		StageName: "coder",
		AgentRole: domain.RoleCoder,
		Error:     "provider down",
	}}
	if err := repo.MarkFailed(ctx, "job-1", "provider down", results); err != nil {
		t.Fatalf("mark failed errored: %v", err)
	}

	job, _ := repo.Get(ctx, "job-1")
	if job.Status != domain.JobStatusFailed || job.LastError != "provider down" {
		t.Errorf("unexpected failed job: %+v", job)
	}
	if len(job.StageResults) != 1 || job.StageResults[0].Error != "provider down" {
		t.Errorf("expected the error entry persisted, got %+v", job.StageResults)
	}
}

func TestJobRepository_Ping(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("expected ping to succeed: %v", err)
	}
}
