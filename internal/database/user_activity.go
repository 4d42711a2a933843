package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/questlog/internal/models"
	"github.com/google/uuid"
)

// UserActivityRepository handles user activity database operations
type UserActivityRepository struct {
	db *DB
}

// NewUserActivityRepository creates a new user activity repository
func NewUserActivityRepository(db *DB) *UserActivityRepository {
	return &UserActivityRepository{db: db}
}

// GetByUserID retrieves user activity by user ID
func (r *UserActivityRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserActivity, error) {
	activity := &models.UserActivity{}

	query := `
		SELECT user_id, last_api_interaction, boundaries_paused, created_at, updated_at
		FROM user_activity
		WHERE user_id = $1
	`

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&activity.UserID,
		&activity.LastAPIInteraction,
		&activity.BoundariesPaused,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user activity: %w", err)
	}

	return activity, nil
}

// Touch records an API interaction and resumes boundary processing for the user
func (r *UserActivityRepository) Touch(ctx context.Context, userID uuid.UUID) error {
	query := `
		INSERT INTO user_activity (user_id, last_api_interaction, boundaries_paused, created_at, updated_at)
		VALUES ($1, $2, false, $2, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET last_api_interaction = EXCLUDED.last_api_interaction,
		    boundaries_paused = false,
		    updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, userID, time.Now()); err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

// ListActive returns users whose period boundaries are still being scheduled
func (r *UserActivityRepository) ListActive(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM user_activity
		WHERE boundaries_paused = false
		ORDER BY user_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var userIDs []uuid.UUID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return userIDs, nil
}

// PauseInactive pauses boundary scheduling for users idle longer than idle.
// Their progress stays as it was at the last processed boundary.
func (r *UserActivityRepository) PauseInactive(ctx context.Context, idle time.Duration) (int64, error) {
	query := `
		UPDATE user_activity
		SET boundaries_paused = true, updated_at = $2
		WHERE last_api_interaction < $1
		  AND boundaries_paused = false
	`

	now := time.Now()
	res, err := r.db.ExecContext(ctx, query, now.Add(-idle), now)
	if err != nil {
		return 0, fmt.Errorf("failed to pause inactive users: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count paused users: %w", err)
	}
	return n, nil
}
