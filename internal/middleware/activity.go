package middleware

import (
	"context"
	"net/http"

	"github.com/benvon/questlog/internal/logger"
	"github.com/benvon/questlog/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActivityToucher records that a user interacted with the API
type ActivityToucher interface {
	Touch(ctx context.Context, userID uuid.UUID) error
}

// ActivityTracking records every request on a user route so boundary scheduling
// resumes for returning users. Must be installed on a router with the user id variable.
func ActivityTracking(toucher ActivityToucher, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := request.UserID(r); err == nil {
				if err := toucher.Touch(r.Context(), userID); err != nil {
					// Don't fail the request if activity tracking fails
					log.Warn("failed_to_record_activity",
						zap.String("user_id", logger.SanitizeUserID(userID.String())),
						zap.Error(err),
					)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
