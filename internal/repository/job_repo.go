package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ureshii/partner/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles job persistence. Stage advancement and status
// transitions are guarded updates so concurrent deliveries of the same job
// serialize on the database row: one advance succeeds, the loser observes
// the already-advanced state.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Get retrieves a job by its ID.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListByOwner retrieves a page of an owner's jobs, newest first.
func (r *JobRepository) ListByOwner(ctx context.Context, owner string, skip, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := r.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkRunning transitions a pending job to running. A no-op if the job
// already left pending; never regresses a terminal status.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusRunning,
			"updated_at": time.Now().UTC(),
		}).Error
}

// AdvanceStage appends a successful stage result and moves the cursor from
// fromCursor to fromCursor+1 in one guarded update. Returns
// domain.ErrStageConflict when another delivery advanced the cursor first;
// the caller reloads and proceeds from the stored state.
func (r *JobRepository) AdvanceStage(ctx context.Context, id string, fromCursor int, result domain.StageResult, results []domain.StageResult) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND stage_cursor = ? AND status IN ?", id, fromCursor,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning}).
		Updates(map[string]interface{}{
			"stage_results": append(results, result),
			"stage_cursor":  fromCursor + 1,
			"attempt_count": 0,
			"status":        domain.JobStatusRunning,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStageConflict
	}
	return nil
}

// MarkCompleted sets the terminal completed status and the final result.
// Guarded against terminal states so duplicate deliveries no-op.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, result string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND status IN ?", id,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusCompleted,
			"result":     result,
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkFailed sets the terminal failed status with the recorded error and
// the final stage_results slice (including the error entry).
func (r *JobRepository) MarkFailed(ctx context.Context, id string, lastError string, results []domain.StageResult) error {
	return r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND status IN ?", id,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusFailed,
			"last_error":    lastError,
			"stage_results": results,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// RecordFailure increments the attempt counter for the current stage and
// stores the error text. Status is left untouched so a retry driver can
// re-invoke execution.
func (r *JobRepository) RecordFailure(ctx context.Context, id string, lastError string) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND status IN ?", id,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning}).
		Updates(map[string]interface{}{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    lastError,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}

	var job domain.Job
	if err := r.db.WithContext(ctx).Select("attempt_count").First(&job, "id = ?", id).Error; err != nil {
		return 0, err
	}
	return job.AttemptCount, nil
}

// Ping verifies database connectivity for health checks.
func (r *JobRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
