package models

import (
	"time"

	"github.com/google/uuid"
)

// UserActivity tracks when a user last used the API. Boundary jobs are only
// scheduled for users whose boundaries are not paused.
type UserActivity struct {
	UserID             uuid.UUID `json:"userId"`
	LastAPIInteraction time.Time `json:"lastApiInteraction"`
	BoundariesPaused   bool      `json:"boundariesPaused"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
