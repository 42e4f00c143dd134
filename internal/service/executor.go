package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ureshii/partner/internal/domain"
	"github.com/ureshii/partner/internal/logger"
	"github.com/ureshii/partner/internal/pipeline"
	"github.com/ureshii/partner/internal/prompts"
	"github.com/ureshii/partner/internal/provider"
)

// Executor drives a job through its pipeline's stages sequentially. One
// Execute invocation runs all remaining stages until the job is terminal
// or a stage attempt fails; the stage cursor in the store makes
// re-invocation after a crash or duplicate delivery resume at the first
// unexecuted stage instead of re-running completed ones.
type Executor struct {
	store        JobStore
	registry     *pipeline.Registry
	provider     CompletionProvider
	artifacts    ArtifactArchiver // optional
	maxAttempts  int
	stageTimeout time.Duration
}

// ExecutorConfig holds executor tuning.
type ExecutorConfig struct {
	MaxAttempts  int
	StageTimeout time.Duration
}

// NewExecutor creates a new pipeline executor. artifacts may be nil to
// disable out-of-band stage output archival.
func NewExecutor(store JobStore, registry *pipeline.Registry, completions CompletionProvider, artifacts ArtifactArchiver, cfg *ExecutorConfig) *Executor {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	stageTimeout := cfg.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = 60 * time.Second
	}
	return &Executor{
		store:        store,
		registry:     registry,
		provider:     completions,
		artifacts:    artifacts,
		maxAttempts:  maxAttempts,
		stageTimeout: stageTimeout,
	}
}

// Execute is one delivery attempt for a job. Terminal jobs are a no-op.
// A provider failure below the attempt budget returns a retryable error
// and leaves the job re-drivable; at the budget the job is marked failed.
func (e *Executor) Execute(ctx context.Context, jobID string) error {
	ctx = logger.WithField(ctx, logger.FieldJobID, jobID)

	job, err := e.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status.Terminal() {
		logger.CtxDebug(ctx, "Job already terminal (%s); nothing to execute", job.Status)
		return nil
	}

	stages, err := e.registry.Resolve(job.PipelineName)
	if err != nil {
		// The pipeline was validated at submission; reaching this means
		// the registry changed across deploys. Terminal, not retryable.
		ferr := e.store.MarkFailed(ctx, job.ID, err.Error(), job.StageResults)
		if ferr != nil {
			return ferr
		}
		return err
	}

	if job.Status == domain.JobStatusPending {
		if err := e.store.MarkRunning(ctx, job.ID); err != nil {
			return err
		}
	}

	idx := job.StageCursor
	for idx < len(stages) {
		spec := stages[idx]
		model := job.Options.ModelForRole(spec.Role)
		if model == "" {
			model = spec.DefaultModel
		}

		started := time.Now().UTC()
		output, perr := e.runStage(ctx, job, spec, model, idx)
		finished := time.Now().UTC()

		if perr != nil {
			return e.recordStageFailure(ctx, job, spec, model, perr, started, finished)
		}

		entry := domain.StageResult{
			StageName:  spec.Name,
			AgentRole:  spec.Role,
			ModelUsed:  model,
			Output:     output,
			StartedAt:  started,
			FinishedAt: finished,
		}

		if err := e.store.AdvanceStage(ctx, job.ID, idx, entry, job.StageResults); err != nil {
			if errors.Is(err, domain.ErrStageConflict) {
				// A concurrent delivery advanced this job first. Reload
				// and continue from whatever it left behind.
				logger.CtxWarn(ctx, "Stage %s advanced by concurrent delivery; resyncing", spec.Name)
				job, err = e.store.Get(ctx, job.ID)
				if err != nil {
					return err
				}
				if job.Status.Terminal() {
					return nil
				}
				idx = job.StageCursor
				continue
			}
			return err
		}

		job.StageResults = append(job.StageResults, entry)
		job.StageCursor = idx + 1
		idx++

		e.archiveArtifact(ctx, job.ID, spec.Name, output)

		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldStage:      spec.Name,
			logger.FieldDurationMs: finished.Sub(started).Milliseconds(),
		}).Infof("Stage completed (%d/%d)", idx, len(stages))
	}

	final := job.StageResults[len(job.StageResults)-1].Output
	if err := e.store.MarkCompleted(ctx, job.ID, final); err != nil {
		return err
	}
	logger.CtxInfo(ctx, "Job completed after %d stages", len(stages))
	return nil
}

// runStage performs one completion call with a bounded timeout.
func (e *Executor) runStage(ctx context.Context, job *domain.Job, spec pipeline.StageSpec, model string, idx int) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()

	return e.provider.Complete(stageCtx, &provider.Request{
		Model:        model,
		SystemPrompt: prompts.ForRole(spec.Role),
		UserContent:  buildStageInput(job, idx),
		Temperature:  temperatureForRole(spec.Role),
	})
}

// recordStageFailure applies the retry budget: below the maximum the job
// stays re-drivable and a retryable error is returned; at the maximum the
// error entry is appended and the job goes terminal.
func (e *Executor) recordStageFailure(ctx context.Context, job *domain.Job, spec pipeline.StageSpec, model string, perr error, started, finished time.Time) error {
	attempts, err := e.store.RecordFailure(ctx, job.ID, perr.Error())
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldStage:   spec.Name,
		logger.FieldAttempt: attempts,
	})

	if attempts < e.maxAttempts {
		log.WithError(perr).Warnf("Stage attempt failed; %d attempts remain", e.maxAttempts-attempts)
		return domain.Retryable(perr)
	}

	entry := domain.StageResult{
		StageName:  spec.Name,
		AgentRole:  spec.Role,
		ModelUsed:  model,
		Error:      perr.Error(),
		StartedAt:  started,
		FinishedAt: finished,
	}
	if ferr := e.store.MarkFailed(ctx, job.ID, perr.Error(), append(job.StageResults, entry)); ferr != nil {
		return ferr
	}
	log.WithError(perr).Error("Attempts exhausted; job failed")
	return fmt.Errorf("%w: stage %s: %v", domain.ErrAttemptsExhausted, spec.Name, perr)
}

func (e *Executor) archiveArtifact(ctx context.Context, jobID, stage, output string) {
	if e.artifacts == nil || output == "" {
		return
	}
	key := fmt.Sprintf("jobs/%s/%s.txt", jobID, stage)
	if err := e.artifacts.Archive(ctx, key, []byte(output)); err != nil {
		logger.CtxWarn(ctx, "Failed to archive stage artifact %s: %v", key, err)
	}
}

// buildStageInput assembles the user content for the stage at idx: the
// original prompt, any external context from the options snapshot, and the
// outputs of all previously completed stages so a debugger stage sees the
// coder stage's code.
func buildStageInput(job *domain.Job, idx int) string {
	var b strings.Builder
	b.WriteString("Original request:\n")
	b.WriteString(job.Prompt)

	if ctx := optionsContext(job.Options); ctx != "" {
		b.WriteString("\n\n")
		b.WriteString(ctx)
	}

	for _, prior := range job.StageResults[:idx] {
		if prior.Error != "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(prior.StageName)
		b.WriteString(" output:\n")
		b.WriteString(prior.Output)
	}

	return b.String()
}

func optionsContext(opts domain.JobOptions) string {
	var parts []string
	if opts.GithubRepo != "" {
		repo := "Repository: " + opts.GithubRepo
		if opts.GithubBranch != "" {
			repo += " (branch " + opts.GithubBranch + ")"
		}
		parts = append(parts, repo)
	}
	if opts.GithubFile != "" {
		parts = append(parts, "File: "+opts.GithubFile)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n")
}

func temperatureForRole(role domain.AgentRole) float64 {
	if role == domain.RoleChatbot {
		return 0.7
	}
	return 0.2
}
