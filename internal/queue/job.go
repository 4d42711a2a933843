package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeDailyBoundary closes a user's day: DoubleOrDie penalties and daily counters
	JobTypeDailyBoundary JobType = "daily_boundary"
	// JobTypeWeeklyBoundary archives the user's week and resets the weekly ledger
	JobTypeWeeklyBoundary JobType = "weekly_boundary"
	// JobTypeMonthlyBoundary resets the user's monthly ledger
	JobTypeMonthlyBoundary JobType = "monthly_boundary"
)

// DefaultMaxRetries is the retry budget of a new job
const DefaultMaxRetries = 3

// IsValid reports whether t is a job type the worker knows how to process
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeDailyBoundary, JobTypeWeeklyBoundary, JobTypeMonthlyBoundary:
		return true
	}
	return false
}

// Period returns the boundary period name used in logs and metrics
func (t JobType) Period() string {
	switch t {
	case JobTypeDailyBoundary:
		return "daily"
	case JobTypeWeeklyBoundary:
		return "weekly"
	case JobTypeMonthlyBoundary:
		return "monthly"
	}
	return string(t)
}

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	UserID     uuid.UUID      `json:"user_id"`
	Boundary   time.Time      `json:"boundary"`             // Instant the period closes
	NotBefore  *time.Time     `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`   // Job-specific data
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, userID uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}
}

// NewBoundaryJob creates a job that runs at boundary and expires after grace
func NewBoundaryJob(jobType JobType, userID uuid.UUID, boundary time.Time, grace time.Duration) *Job {
	job := NewJob(jobType, userID)
	job.Boundary = boundary
	notBefore := boundary
	job.NotBefore = &notBefore
	if grace > 0 {
		notAfter := boundary.Add(grace)
		job.NotAfter = &notAfter
	}
	return job
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	// Check NotBefore
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}

	// Check NotAfter
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}

	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
