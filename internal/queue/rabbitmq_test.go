package queue

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestRoutingKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		jobType JobType
		want    string
	}{
		{JobTypeDailyBoundary, "boundary.daily"},
		{JobTypeWeeklyBoundary, "boundary.weekly"},
		{JobTypeMonthlyBoundary, "boundary.monthly"},
	}
	for _, tt := range tests {
		if got := RoutingKey(tt.jobType); got != tt.want {
			t.Errorf("Expected routing key %q for %s, got %q", tt.want, tt.jobType, got)
		}
	}
}

func TestRabbitMQQueue_Publishing(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC)
	boundary := now.Add(time.Hour)
	userID := uuid.New()

	tests := []struct {
		name           string
		delayed        bool
		job            *Job
		wantExchange   string
		wantDelay      int64
		wantExpiration string
	}{
		{
			name:           "future boundary uses the delayed exchange",
			delayed:        true,
			job:            NewBoundaryJob(JobTypeWeeklyBoundary, userID, boundary, 3*24*time.Hour),
			wantExchange:   DelayedExchangeName,
			wantDelay:      time.Hour.Milliseconds(),
			wantExpiration: strconv.FormatInt((time.Hour + 3*24*time.Hour).Milliseconds(), 10),
		},
		{
			name:           "without the plugin jobs go to the main exchange",
			delayed:        false,
			job:            NewBoundaryJob(JobTypeDailyBoundary, userID, boundary, 12*time.Hour),
			wantExchange:   ExchangeName,
			wantExpiration: strconv.FormatInt((time.Hour + 12*time.Hour).Milliseconds(), 10),
		},
		{
			name:           "past boundary is published immediately",
			delayed:        true,
			job:            NewBoundaryJob(JobTypeMonthlyBoundary, userID, now.Add(-time.Hour), 7*24*time.Hour),
			wantExchange:   ExchangeName,
			wantExpiration: strconv.FormatInt((7*24*time.Hour - time.Hour).Milliseconds(), 10),
		},
		{
			name:         "job without window never expires",
			delayed:      true,
			job:          NewJob(JobTypeDailyBoundary, userID),
			wantExchange: ExchangeName,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := &RabbitMQQueue{delayed: tt.delayed, logger: zap.NewNop()}

			p, exchange, err := q.publishing(tt.job, now)
			if err != nil {
				t.Fatalf("publishing() error = %v", err)
			}
			if exchange != tt.wantExchange {
				t.Errorf("Expected exchange %q, got %q", tt.wantExchange, exchange)
			}
			if p.Expiration != tt.wantExpiration {
				t.Errorf("Expected expiration %q, got %q", tt.wantExpiration, p.Expiration)
			}
			if tt.wantDelay > 0 {
				if got, _ := p.Headers["x-delay"].(int64); got != tt.wantDelay {
					t.Errorf("Expected x-delay %d, got %v", tt.wantDelay, p.Headers["x-delay"])
				}
			} else if _, ok := p.Headers["x-delay"]; ok {
				t.Error("Expected no x-delay header")
			}
			if p.Type != string(tt.job.Type) {
				t.Errorf("Expected message type %q, got %q", tt.job.Type, p.Type)
			}

			var decoded Job
			if err := json.Unmarshal(p.Body, &decoded); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if decoded.ID != tt.job.ID {
				t.Errorf("Expected job id %s, got %s", tt.job.ID, decoded.ID)
			}
		})
	}
}
