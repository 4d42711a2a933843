package workers

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/benvon/questlog/internal/queue"
)

func TestCalendar_Next(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}

	tests := []struct {
		name     string
		calendar Calendar
		jobType  queue.JobType
		now      time.Time
		want     time.Time
	}{
		{
			name:     "daily mid-day",
			calendar: Calendar{Location: time.UTC},
			jobType:  queue.JobTypeDailyBoundary,
			now:      time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "daily exactly at midnight moves to the next day",
			calendar: Calendar{Location: time.UTC},
			jobType:  queue.JobTypeDailyBoundary,
			now:      time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "daily uses the user time zone",
			calendar: Calendar{Location: berlin},
			jobType:  queue.JobTypeDailyBoundary,
			now:      time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 6, 0, 0, 0, 0, berlin),
		},
		{
			name:     "weekly from a wednesday to monday",
			calendar: Calendar{Location: time.UTC, WeekStart: time.Monday},
			jobType:  queue.JobTypeWeeklyBoundary,
			now:      time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "weekly on the start day moves a full week",
			calendar: Calendar{Location: time.UTC, WeekStart: time.Monday},
			jobType:  queue.JobTypeWeeklyBoundary,
			now:      time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "weekly starting sunday",
			calendar: Calendar{Location: time.UTC, WeekStart: time.Sunday},
			jobType:  queue.JobTypeWeeklyBoundary,
			now:      time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly",
			calendar: Calendar{},
			jobType:  queue.JobTypeMonthlyBoundary,
			now:      time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC),
			want:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly across the year end",
			calendar: Calendar{Location: time.UTC},
			jobType:  queue.JobTypeMonthlyBoundary,
			now:      time.Date(2026, 12, 15, 12, 0, 0, 0, time.UTC),
			want:     time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tt.calendar.Next(tt.jobType, tt.now)
			if !ok {
				t.Fatalf("Expected %s to be a boundary type", tt.jobType)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCalendar_NextUnknownType(t *testing.T) {
	t.Parallel()

	if _, ok := (Calendar{}).Next(queue.JobType("reprocess_user"), time.Now()); ok {
		t.Error("Expected unknown job type to have no boundary")
	}
}

func TestGrace(t *testing.T) {
	t.Parallel()

	daily := Grace(queue.JobTypeDailyBoundary)
	weekly := Grace(queue.JobTypeWeeklyBoundary)
	monthly := Grace(queue.JobTypeMonthlyBoundary)
	if daily >= 24*time.Hour {
		t.Errorf("Expected the daily grace to end before the next day, got %v", daily)
	}
	if weekly >= 7*24*time.Hour {
		t.Errorf("Expected the weekly grace to end before the next week, got %v", weekly)
	}
	if monthly <= weekly {
		t.Errorf("Expected the monthly grace %v to exceed the weekly grace %v", monthly, weekly)
	}
}
