package database

import (
	"context"
	"time"

	"github.com/benvon/questlog/internal/models"
	"github.com/google/uuid"
)

// UserActivityRepositoryInterface defines the interface for user activity repository operations
// This interface enables better testability by allowing mock implementations
type UserActivityRepositoryInterface interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserActivity, error)
	Touch(ctx context.Context, userID uuid.UUID) error
	ListActive(ctx context.Context) ([]uuid.UUID, error)
	PauseInactive(ctx context.Context, idle time.Duration) (int64, error)
}

// Ensure concrete types implement the interfaces
var (
	_ UserActivityRepositoryInterface = (*UserActivityRepository)(nil)
)
