// Package metrics holds the prometheus collectors for the progress engine and its API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questlog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "questlog_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Engine Metrics
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questlog_transitions_total",
			Help: "Total number of session transitions by operation and result",
		},
		[]string{"operation", "result"}, // ok, validation, limit_reached, boost_conflict, not_found, error
	)

	PointsAwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questlog_points_awarded_total",
			Help: "Sum of positive point deltas applied to the short-cycle ledger",
		},
	)

	AchievementsUnlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questlog_achievements_unlocked_total",
			Help: "Total number of achievements unlocked by tier",
		},
		[]string{"tier"},
	)

	// Sync Metrics
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questlog_syncs_total",
			Help: "Total number of remote sync attempts",
		},
		[]string{"result"}, // written, skipped, failed
	)

	BoundariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questlog_boundaries_total",
			Help: "Total number of period boundaries processed",
		},
		[]string{"period", "result"},
	)

	DeadLettersPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questlog_dead_letters_purged_total",
			Help: "Total number of expired boundary jobs dropped from the dead letter queue",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "questlog_active_sessions",
			Help: "Current number of loaded user sessions",
		},
	)
)

// TrackTransition records the result of one session operation
func TrackTransition(operation, result string) {
	TransitionsTotal.WithLabelValues(operation, result).Inc()
}

// TrackPoints adds a positive point delta
func TrackPoints(delta float64) {
	if delta > 0 {
		PointsAwarded.Add(delta)
	}
}

// TrackAchievement records an unlocked achievement
func TrackAchievement(tier string) {
	AchievementsUnlocked.WithLabelValues(tier).Inc()
}

// TrackSync records a sync attempt
func TrackSync(result string) {
	SyncsTotal.WithLabelValues(result).Inc()
}

// TrackBoundary records a processed period boundary
func TrackBoundary(period, result string) {
	BoundariesTotal.WithLabelValues(period, result).Inc()
}

// TrackDeadLetterPurge counts jobs dropped by a dead letter queue purge
func TrackDeadLetterPurge(n int) {
	if n > 0 {
		DeadLettersPurged.Add(float64(n))
	}
}

// UpdateActiveSessions sets the current number of loaded sessions
func UpdateActiveSessions(count int) {
	ActiveSessions.Set(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and durations labelled by the matched route template
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
