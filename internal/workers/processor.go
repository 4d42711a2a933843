package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/questlog/internal/cache"
	"github.com/benvon/questlog/internal/engine"
	"github.com/benvon/questlog/internal/metrics"
	"github.com/benvon/questlog/internal/queue"
	"github.com/benvon/questlog/internal/tracker"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	baseRetryDelay = 30 * time.Second
	maxRetryDelay  = 15 * time.Minute
)

// SessionSource hands out user sessions. *tracker.Manager implements it.
type SessionSource interface {
	Session(ctx context.Context, userID uuid.UUID) (*tracker.Session, error)
	Evict(ctx context.Context, userID uuid.UUID) error
}

var _ SessionSource = (*tracker.Manager)(nil)

// BoundaryProcessor runs period boundary jobs against user sessions
type BoundaryProcessor struct {
	sessions SessionSource
	markers  cache.Cache
	jobQueue queue.JobQueue // For re-enqueueing jobs with delays
	logger   *zap.Logger
}

// NewBoundaryProcessor creates a new processor. markers records processed
// boundaries so a redelivered job is not applied twice.
func NewBoundaryProcessor(sessions SessionSource, markers cache.Cache, jobQueue queue.JobQueue, logger *zap.Logger) *BoundaryProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoundaryProcessor{
		sessions: sessions,
		markers:  markers,
		jobQueue: jobQueue,
		logger:   logger,
	}
}

func markerKey(job *queue.Job) string {
	return "boundary:" + string(job.Type) + ":" + job.Boundary.UTC().Format(time.RFC3339)
}

func (p *BoundaryProcessor) alreadyProcessed(ctx context.Context, job *queue.Job) bool {
	if p.markers == nil {
		return false
	}
	_, ok, err := p.markers.GetItem(ctx, job.UserID, markerKey(job))
	if err != nil {
		p.logger.Warn("boundary_marker_unreadable", zap.String("job_id", job.ID.String()), zap.Error(err))
		return false
	}
	return ok
}

func (p *BoundaryProcessor) markProcessed(ctx context.Context, job *queue.Job) {
	if p.markers == nil {
		return
	}
	if err := p.markers.SetItem(ctx, job.UserID, markerKey(job), job.ID.String()); err != nil {
		p.logger.Warn("boundary_marker_write_failed", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

// runBoundary applies the job's boundary and syncs it. applied reports whether the
// user's state changed, in which case the job must not run again.
func (p *BoundaryProcessor) runBoundary(ctx context.Context, job *queue.Job) (applied bool, err error) {
	session, err := p.sessions.Session(ctx, job.UserID)
	if err != nil {
		return false, err
	}

	switch job.Type {
	case queue.JobTypeDailyBoundary:
		_, err = session.DailyBoundary(ctx)
	case queue.JobTypeWeeklyBoundary:
		// Weekly syncs itself together with the archive
		if _, err = session.WeeklyBoundary(ctx); err != nil {
			return true, err
		}
		return true, p.sessions.Evict(ctx, job.UserID)
	case queue.JobTypeMonthlyBoundary:
		_, err = session.MonthlyBoundary(ctx)
	default:
		return false, fmt.Errorf("unknown job type: %s", job.Type)
	}
	if err != nil {
		return false, err
	}
	return true, p.sessions.Evict(ctx, job.UserID)
}

// ProcessJob processes a job based on its type
func (p *BoundaryProcessor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	period := job.Type.Period()
	log := p.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.String("user_id", job.UserID.String()),
	)

	if !job.Type.IsValid() {
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			log.Error("failed_to_nack_unknown_job", zap.Error(nackErr))
		}
		metrics.TrackBoundary(period, "rejected")
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	if job.IsExpired() {
		log.Warn("boundary_job_expired", zap.Time("boundary", job.Boundary))
		metrics.TrackBoundary(period, "expired")
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack expired job: %w", ackErr)
		}
		return nil
	}

	// Check if job should be processed now (respect NotBefore)
	if !job.ShouldProcess() {
		log.Debug("boundary_job_not_due", zap.Time("boundary", job.Boundary))
		if nackErr := msg.Nack(true); nackErr != nil {
			log.Error("failed_to_requeue_job", zap.Error(nackErr))
		}
		return nil
	}

	if p.alreadyProcessed(ctx, job) {
		log.Info("boundary_job_duplicate", zap.Time("boundary", job.Boundary))
		metrics.TrackBoundary(period, "duplicate")
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack duplicate job: %w", ackErr)
		}
		return nil
	}

	applied, err := p.runBoundary(ctx, job)
	switch {
	case err == nil:
		p.markProcessed(ctx, job)
		metrics.TrackBoundary(period, "ok")
		log.Info("boundary_processed", zap.Time("boundary", job.Boundary))
	case applied && errors.Is(err, engine.ErrSyncFailure):
		// The session keeps the change and retries the push on its next sync
		p.markProcessed(ctx, job)
		metrics.TrackBoundary(period, "pending_sync")
		log.Warn("boundary_saved_locally", zap.Error(err))
	case applied:
		p.markProcessed(ctx, job)
		metrics.TrackBoundary(period, "ok")
		log.Warn("boundary_processed_with_errors", zap.Error(err))
	default:
		metrics.TrackBoundary(period, "failed")
		return p.handleJobError(ctx, msg, job, err)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

// retryDelay doubles from baseRetryDelay per attempt, capped at maxRetryDelay
func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// handleJobError retries the job with backoff or sends it to the DLQ
func (p *BoundaryProcessor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	log := p.logger.With(zap.String("job_id", job.ID.String()), zap.String("job_type", string(job.Type)))

	if job.CanRetry() && p.jobQueue != nil {
		notBefore := time.Now().Add(retryDelay(job.RetryCount))
		delayedJob := &queue.Job{
			ID:         job.ID,
			Type:       job.Type,
			UserID:     job.UserID,
			Boundary:   job.Boundary,
			NotBefore:  &notBefore,
			NotAfter:   job.NotAfter,
			Metadata:   job.Metadata,
			CreatedAt:  job.CreatedAt,
			RetryCount: job.RetryCount + 1,
			MaxRetries: job.MaxRetries,
		}

		// Ack the current message
		if ackErr := msg.Ack(); ackErr != nil {
			log.Warn("failed_to_ack_job_before_retry", zap.Error(ackErr))
		}

		if enqueueErr := p.jobQueue.Enqueue(ctx, delayedJob); enqueueErr != nil {
			log.Error("failed_to_reenqueue_job", zap.Error(enqueueErr))
			return fmt.Errorf("boundary failed, failed to re-enqueue: %w", errors.Join(err, enqueueErr))
		}

		log.Warn("boundary_job_retry_scheduled",
			zap.Int("attempt", delayedJob.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Time("not_before", notBefore),
			zap.Error(err),
		)
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	if job.CanRetry() {
		job.IncrementRetry()
		if nackErr := msg.Nack(true); nackErr != nil {
			log.Error("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	// Max retries exceeded, send to DLQ
	log.Error("boundary_job_dead_lettered", zap.Int("max_retries", job.MaxRetries), zap.Error(err))
	if nackErr := msg.Nack(false); nackErr != nil {
		log.Error("failed_to_nack_job_to_dlq", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}
