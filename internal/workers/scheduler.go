package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/questlog/internal/database"
	"github.com/benvon/questlog/internal/queue"
	"github.com/benvon/questlog/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserLister returns the users whose boundaries should be scheduled
type UserLister interface {
	ListActive(ctx context.Context) ([]uuid.UUID, error)
}

// inactivePauser is implemented by listers that can pause idle users
type inactivePauser interface {
	PauseInactive(ctx context.Context, idle time.Duration) (int64, error)
}

var _ UserLister = (database.UserActivityRepositoryInterface)(nil)

// TreeUsers lists every user with a progress subtree. Used when no activity table is available.
type TreeUsers struct {
	tree store.Tree
}

// NewTreeUsers creates a lister over the users/ subtree
func NewTreeUsers(tree store.Tree) *TreeUsers {
	return &TreeUsers{tree: tree}
}

// ListActive returns the ids under users/, skipping keys that are not user ids
func (u *TreeUsers) ListActive(ctx context.Context) ([]uuid.UUID, error) {
	keys, err := u.tree.ChildKeys(ctx, store.UsersRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(keys))
	for _, key := range keys {
		id, err := uuid.Parse(key)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var boundaryTypes = []queue.JobType{
	queue.JobTypeDailyBoundary,
	queue.JobTypeWeeklyBoundary,
	queue.JobTypeMonthlyBoundary,
}

// BoundaryScheduler enqueues the next daily, weekly and monthly boundary job for each active user
type BoundaryScheduler struct {
	jobQueue   queue.JobQueue
	users      UserLister
	calendar   Calendar
	maxRetries int
	idlePause  time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	scheduled map[string]time.Time
}

// SchedulerOption configures a BoundaryScheduler
type SchedulerOption func(*BoundaryScheduler)

// WithMaxRetries sets the retry budget of scheduled jobs
func WithMaxRetries(n int) SchedulerOption {
	return func(s *BoundaryScheduler) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithIdlePause pauses users idle for longer than d before each scheduling pass.
// It only applies when the user lister supports pausing.
func WithIdlePause(d time.Duration) SchedulerOption {
	return func(s *BoundaryScheduler) {
		s.idlePause = d
	}
}

// NewBoundaryScheduler creates a new scheduler
func NewBoundaryScheduler(jobQueue queue.JobQueue, users UserLister, calendar Calendar, logger *zap.Logger, opts ...SchedulerOption) *BoundaryScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BoundaryScheduler{
		jobQueue:   jobQueue,
		users:      users,
		calendar:   calendar,
		maxRetries: queue.DefaultMaxRetries,
		logger:     logger,
		scheduled:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func scheduleKey(jobType queue.JobType, userID uuid.UUID) string {
	return string(jobType) + ":" + userID.String()
}

// ScheduleBoundaryJobs enqueues the boundaries following now that have not been
// enqueued yet and returns how many jobs were enqueued
func (s *BoundaryScheduler) ScheduleBoundaryJobs(ctx context.Context, now time.Time) (int, error) {
	if pauser, ok := s.users.(inactivePauser); ok && s.idlePause > 0 {
		paused, err := pauser.PauseInactive(ctx, s.idlePause)
		if err != nil {
			s.logger.Warn("failed_to_pause_inactive_users", zap.Error(err))
		} else if paused > 0 {
			s.logger.Info("paused_inactive_users", zap.Int64("count", paused))
		}
	}

	users, err := s.users.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get active users: %w", err)
	}

	enqueued := 0
	for _, userID := range users {
		for _, jobType := range boundaryTypes {
			boundary, _ := s.calendar.Next(jobType, now)
			if s.alreadyScheduled(jobType, userID, boundary) {
				continue
			}
			if err := s.createBoundaryJob(ctx, jobType, userID, boundary); err != nil {
				s.logger.Warn("failed_to_schedule_boundary_job",
					zap.String("user_id", userID.String()),
					zap.String("job_type", string(jobType)),
					zap.Error(err),
				)
				// Continue with other users
				continue
			}
			s.markScheduled(jobType, userID, boundary)
			enqueued++
		}
	}

	s.logger.Info("scheduled_boundary_jobs",
		zap.Int("user_count", len(users)),
		zap.Int("enqueued", enqueued),
		zap.Time("next_daily", s.calendar.NextDaily(now)),
		zap.Time("next_weekly", s.calendar.NextWeekly(now)),
		zap.Time("next_monthly", s.calendar.NextMonthly(now)),
	)
	return enqueued, nil
}

func (s *BoundaryScheduler) alreadyScheduled(jobType queue.JobType, userID uuid.UUID, boundary time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.scheduled[scheduleKey(jobType, userID)]
	return ok && last.Equal(boundary)
}

func (s *BoundaryScheduler) markScheduled(jobType queue.JobType, userID uuid.UUID, boundary time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[scheduleKey(jobType, userID)] = boundary
}

// createBoundaryJob creates a boundary job for a user
func (s *BoundaryScheduler) createBoundaryJob(ctx context.Context, jobType queue.JobType, userID uuid.UUID, boundary time.Time) error {
	job := queue.NewBoundaryJob(jobType, userID, boundary, Grace(jobType))
	job.MaxRetries = s.maxRetries

	if err := s.jobQueue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue boundary job: %w", err)
	}
	return nil
}

// Run schedules immediately and then every interval until ctx is done
func (s *BoundaryScheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.ScheduleBoundaryJobs(ctx, time.Now()); err != nil {
			s.logger.Error("boundary_scheduling_failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
