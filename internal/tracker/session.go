// Package tracker runs engine transitions for a user session and carries their side effects:
// local persistence, remote sync, metrics, tracing and user notifications.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benvon/questlog/internal/engine"
	"github.com/benvon/questlog/internal/metrics"
	"github.com/benvon/questlog/internal/models"
	"github.com/benvon/questlog/internal/store"
	"github.com/benvon/questlog/internal/syncer"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrNotConfirmed is returned when the user declined a destructive action
var ErrNotConfirmed = errors.New("action not confirmed")

// MessageSavedLocally is the outcome message for a change the remote store has not accepted yet
const MessageSavedLocally = "Saved locally, not yet synced"

var tracer = otel.Tracer("github.com/benvon/questlog/internal/tracker")

// Outcome is the result of a session operation
type Outcome struct {
	State   *models.UserProgressState `json:"state"`
	Result  any                       `json:"result,omitempty"`
	Message string                    `json:"message"`
	Synced  bool                      `json:"synced"`
}

// Session owns one user's progress state. Operations run one at a time; each
// produces a new snapshot that is written to the local store before returning.
type Session struct {
	userID     uuid.UUID
	reconciler *syncer.Reconciler
	confirmer  Confirmer
	notifier   Notifier
	logger     *zap.Logger

	// syncMu serializes Sync so a pending archive is pushed and trimmed once
	syncMu sync.Mutex

	mu             sync.Mutex
	engine         *engine.Engine
	state          *models.UserProgressState
	pendingArchive []*models.WeekArchive
}

// transition computes the next state and a user-facing message
type transition func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error)

// NewSession creates a session over an already hydrated state
func NewSession(state *models.UserProgressState, eng *engine.Engine, reconciler *syncer.Reconciler, confirmer Confirmer, notifier Notifier, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Session{
		userID:     state.UserID,
		reconciler: reconciler,
		confirmer:  confirmer,
		notifier:   notifier,
		logger:     logger.With(zap.String("user_id", state.UserID.String())),
		engine:     eng,
		state:      state,
	}
}

// UserID returns the session's user
func (s *Session) UserID() uuid.UUID {
	return s.userID
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() *models.UserProgressState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Session) apply(ctx context.Context, op, taskID string, fn transition) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "session."+op, trace.WithAttributes(
		attribute.String("user_id", s.userID.String()),
		attribute.String("task_id", taskID),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	next, message, err := fn(s.engine, prev)
	if err != nil {
		metrics.TrackTransition(op, resultLabel(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug("transition_rejected", zap.String("operation", op), zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}

	next.LastUpdated = nextStamp(s.engine.Now(), prev.LastUpdated)
	s.state = next
	s.saveLocal(ctx, next)

	metrics.TrackTransition(op, "ok")
	metrics.TrackPoints(next.Points.Current - prev.Points.Current)
	s.logger.Info("transition_applied",
		zap.String("operation", op),
		zap.String("task_id", taskID),
		zap.Float64("points", next.Points.Current),
		zap.Int64("last_updated", next.LastUpdated))

	return &Outcome{State: next.Clone(), Message: message}, nil
}

// saveLocal must be called with s.mu held
func (s *Session) saveLocal(ctx context.Context, st *models.UserProgressState) {
	doc, err := st.Document()
	if err != nil {
		s.logger.Error("progress_encode_failed", zap.Error(err))
		return
	}
	if err := s.reconciler.SaveLocal(ctx, s.userID, doc); err != nil {
		s.logger.Warn("local_save_failed", zap.Error(err))
	}
}

// nextStamp returns a millisecond stamp strictly after prev
func nextStamp(now time.Time, prev int64) int64 {
	stamp := now.UnixMilli()
	if stamp <= prev {
		stamp = prev + 1
	}
	return stamp
}

func resultLabel(err error) string {
	switch engine.KindOf(err) {
	case engine.ErrValidation:
		return "validation"
	case engine.ErrLimitReached:
		return "limit_reached"
	case engine.ErrBoostConflict:
		return "boost_conflict"
	case engine.ErrNotFound:
		return "not_found"
	case engine.ErrSyncFailure:
		return "sync_failure"
	}
	if errors.Is(err, ErrNotConfirmed) {
		return "not_confirmed"
	}
	return "error"
}

func (s *Session) notify(ctx context.Context, kind NotificationKind, taskID, message string) {
	s.notifier.Notify(ctx, Notification{UserID: s.userID, Kind: kind, TaskID: taskID, Message: message})
}

func taskName(st *models.UserProgressState, taskID string) string {
	if idx := st.TaskIndex(taskID); idx >= 0 {
		return st.Tasks[idx].Template.Name
	}
	if rp, ok := st.RankedTasks[taskID]; ok && rp.Name != "" {
		return rp.Name
	}
	return taskID
}

func formatPoints(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v > 0 {
		return "+" + s
	}
	return s
}

// Complete records times completions of a task
func (s *Session) Complete(ctx context.Context, taskID string, times int) (*Outcome, error) {
	var res *engine.CompletionResult
	out, err := s.apply(ctx, "complete", taskID, func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		next, r, err := eng.Complete(st, taskID, times)
		if err != nil {
			return nil, "", err
		}
		res = r
		msg := fmt.Sprintf("Completed %s: %s points", taskName(next, taskID), formatPoints(r.Points))
		if times > 1 {
			msg = fmt.Sprintf("Completed %s x%d: %s points", taskName(next, taskID), times, formatPoints(r.Points))
		}
		return next, msg, nil
	})
	if err != nil {
		return nil, err
	}
	out.Result = res

	s.announceAchievements(ctx, out.State, res.Achievements)
	if res.BonusAvailable {
		s.notify(ctx, NotifyBonusAvailable, taskID, fmt.Sprintf("%s is complete for this period, claim your bonus", taskName(out.State, taskID)))
	}
	return out, nil
}

func (s *Session) announceAchievements(ctx context.Context, st *models.UserProgressState, ids []string) {
	for _, id := range ids {
		earned := st.Achievements[id]
		metrics.TrackAchievement(string(earned.Tier))
		s.notify(ctx, NotifyAchievement, "", fmt.Sprintf("Achievement unlocked: %s (%s)", id, earned.Tier))
	}
}

// Undo reverses one completion of the named completed entry
func (s *Session) Undo(ctx context.Context, entryName string) (*Outcome, error) {
	var res *engine.UndoResult
	out, err := s.apply(ctx, "undo", entryName, func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		next, r, err := eng.Undo(st, entryName)
		if err != nil {
			return nil, "", err
		}
		res = r
		return next, fmt.Sprintf("Undid one completion of %s: %s points", entryName, formatPoints(-r.Points)), nil
	})
	if err != nil {
		return nil, err
	}
	out.Result = res
	return out, nil
}

// SetMode selects the scoring mode of a task or ranked task
func (s *Session) SetMode(ctx context.Context, taskID string, mode models.Mode) (*Outcome, error) {
	return s.apply(ctx, "set_mode", taskID, func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		var (
			next *models.UserProgressState
			err  error
		)
		if _, ranked := st.RankedTasks[taskID]; ranked && st.TaskIndex(taskID) < 0 {
			next, err = eng.SetRankedMode(st, taskID, mode)
		} else {
			next, err = eng.SetMode(st, taskID, mode)
		}
		if err != nil {
			return nil, "", err
		}
		return next, fmt.Sprintf("%s set to %s mode", taskName(next, taskID), mode), nil
	})
}

// ApplyBoost activates a boost on a task
func (s *Session) ApplyBoost(ctx context.Context, taskID string, kind models.BoostKind) (*Outcome, error) {
	return s.apply(ctx, "apply_boost", taskID, func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		next, err := eng.ApplyBoost(st, taskID, kind)
		if err != nil {
			return nil, "", err
		}
		return next, fmt.Sprintf("%s boost applied to %s", kind, taskName(next, taskID)), nil
	})
}

// RemoveBoost clears the active boost of a task
func (s *Session) RemoveBoost(ctx context.Context, taskID string) (*Outcome, error) {
	return s.apply(ctx, "remove_boost", taskID, func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		next, err := eng.RemoveBoost(st, taskID)
		if err != nil {
			return nil, "", err
		}
		return next, fmt.Sprintf("Boost removed from %s", taskName(next, taskID)), nil
	})
}

// ResetCount zeroes a task's period counters after the user confirms
func (s *Session) ResetCount(ctx context.Context, taskID string) (*Outcome, error) {
	name := taskName(s.Snapshot(), taskID)
	confirmer := confirmerFrom(ctx, s.confirmer)
	if confirmer == nil || !confirmer.Confirm(ctx, fmt.Sprintf("Reset the completion count of %s?", name)) {
		metrics.TrackTransition("reset_count", resultLabel(ErrNotConfirmed))
		return nil, ErrNotConfirmed
	}
	return s.apply(ctx, "reset_count", taskID, func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		next, err := eng.ResetCount(st, taskID)
		if err != nil {
			return nil, "", err
		}
		return next, fmt.Sprintf("%s count reset", name), nil
	})
}

// ClaimBonus awards the completion bonus of an exhausted task
func (s *Session) ClaimBonus(ctx context.Context, taskID string) (*Outcome, error) {
	var bonus float64
	out, err := s.apply(ctx, "claim_bonus", taskID, func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		next, b, err := eng.ClaimBonus(st, taskID)
		if err != nil {
			return nil, "", err
		}
		bonus = b
		return next, fmt.Sprintf("Bonus claimed for %s: %s points", taskName(next, taskID), formatPoints(b)), nil
	})
	if err != nil {
		return nil, err
	}
	out.Result = map[string]float64{"bonus": bonus}
	return out, nil
}

// CompleteRanked records completions of a ranked task and promotes the account
func (s *Session) CompleteRanked(ctx context.Context, taskID string, times int) (*Outcome, error) {
	var res *engine.RankedResult
	out, err := s.apply(ctx, "complete_ranked", taskID, func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		next, r, err := eng.CompleteRankedTask(st, taskID, times)
		if err != nil {
			return nil, "", err
		}
		res = r
		return next, fmt.Sprintf("Completed %s: %s XP", taskName(next, taskID), formatPoints(r.XP)), nil
	})
	if err != nil {
		return nil, err
	}
	out.Result = res

	if res.Promoted() {
		msg := fmt.Sprintf("Promoted to level %d", res.LevelAfter)
		if rank, ok := engine.RankFor(res.LevelAfter, s.rankTable()); ok && rank.Name != "" {
			msg = fmt.Sprintf("Promoted to %s (level %d)", rank.Name, res.LevelAfter)
		}
		s.notify(ctx, NotifyPromotion, taskID, msg)
	}
	if res.UpgradeAvailable {
		s.notify(ctx, NotifyUpgradeAvailable, taskID, fmt.Sprintf("%s can be upgraded to the next level", taskName(out.State, taskID)))
	}
	return out, nil
}

func (s *Session) rankTable() []models.RankTier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Catalog().SortedRanks()
}

// UpgradeRankedTask moves a ranked task to its next level
func (s *Session) UpgradeRankedTask(ctx context.Context, taskID string) (*Outcome, error) {
	return s.apply(ctx, "upgrade_ranked", taskID, func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		next, err := eng.UpgradeTask(st, taskID)
		if err != nil {
			return nil, "", err
		}
		rp := next.RankedTasks[taskID]
		return next, fmt.Sprintf("Upgraded to %s (level %d)", rp.Name, rp.Level), nil
	})
}

// DailyBoundary charges missed-day penalties and zeroes daily counters
func (s *Session) DailyBoundary(ctx context.Context) (*Outcome, error) {
	var report *engine.DailyReport
	out, err := s.apply(ctx, "daily_boundary", "", func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		next, r := eng.DailyBoundary(st)
		report = r
		return next, "A new day has started", nil
	})
	if err != nil {
		return nil, err
	}
	out.Result = report
	for _, taskID := range report.PenalizedTasks {
		penalty := strconv.FormatFloat(report.TaskPenalties[taskID], 'f', -1, 64)
		s.notify(ctx, NotifyPenalty, taskID, fmt.Sprintf("%s was not completed yesterday: -%s points", taskName(out.State, taskID), penalty))
	}
	return out, nil
}

// WeeklyBoundary archives the week, resets the period and pushes the archive and the
// reset to the remote store in one atomic update. When the push fails the change is
// kept locally, the archive stays pending for the next Sync and ErrSyncFailure is returned.
func (s *Session) WeeklyBoundary(ctx context.Context) (*Outcome, error) {
	var archive *models.WeekArchive
	out, err := s.apply(ctx, "weekly_boundary", "", func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		next, a := eng.WeeklyBoundary(st)
		archive = a
		s.pendingArchive = append(s.pendingArchive, a)
		return next, fmt.Sprintf("Week %d closed at %s%% performance", a.WeekNumber, strconv.FormatFloat(a.OverallPerformance, 'f', -1, 64)), nil
	})
	if err != nil {
		return nil, err
	}
	out.Result = archive
	s.notify(ctx, NotifyWeekClosed, "", out.Message)

	synced, err := s.Sync(ctx)
	if err != nil {
		out.Message = MessageSavedLocally
		return out, err
	}
	out.Synced = synced.Synced
	return out, nil
}

// MonthlyBoundary resets the long-cycle ledger
func (s *Session) MonthlyBoundary(ctx context.Context) (*Outcome, error) {
	return s.apply(ctx, "monthly_boundary", "", func(eng *engine.Engine, st *models.UserProgressState) (*models.UserProgressState, string, error) {
		return eng.MonthlyBoundary(st), "A new month has started", nil
	})
}

// Sync writes the current state to the remote store. It is a no-op when nothing
// changed since the last successful sync. Pending week archives are written in the
// same atomic update as the state.
func (s *Session) Sync(ctx context.Context) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "session.sync", trace.WithAttributes(attribute.String("user_id", s.userID.String())))
	defer span.End()

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	state := s.state
	pending := append([]*models.WeekArchive(nil), s.pendingArchive...)
	s.mu.Unlock()

	doc, err := state.Document()
	if err != nil {
		return nil, fmt.Errorf("failed to encode progress: %w", err)
	}

	var wrote bool
	if len(pending) > 0 {
		updates := store.DocumentUpdates(s.userID, doc)
		for _, a := range pending {
			updates[store.ArchivePath(s.userID, a.WeekNumber)] = a
		}
		err = s.reconciler.Push(ctx, s.userID, doc, updates)
		wrote = err == nil
	} else {
		wrote, err = s.reconciler.Sync(ctx, s.userID, doc)
	}

	if err != nil {
		metrics.TrackSync("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("sync_failed", zap.Int64("last_updated", doc.LastUpdated), zap.Error(err))
		s.notify(ctx, NotifySyncFailed, "", MessageSavedLocally)
		return &Outcome{State: state.Clone(), Message: MessageSavedLocally}, err
	}

	if len(pending) > 0 {
		s.mu.Lock()
		s.pendingArchive = withoutArchives(s.pendingArchive, pending)
		s.mu.Unlock()
	}

	if wrote {
		metrics.TrackSync("written")
		s.logger.Debug("sync_written", zap.Int64("last_updated", doc.LastUpdated))
		return &Outcome{State: state.Clone(), Message: "Progress synced", Synced: true}, nil
	}
	metrics.TrackSync("skipped")
	return &Outcome{State: state.Clone(), Message: "Already up to date", Synced: true}, nil
}

// withoutArchives drops the archives whose week was pushed
func withoutArchives(all, pushed []*models.WeekArchive) []*models.WeekArchive {
	done := make(map[int]bool, len(pushed))
	for _, a := range pushed {
		done[a.WeekNumber] = true
	}
	kept := make([]*models.WeekArchive, 0, len(all))
	for _, a := range all {
		if !done[a.WeekNumber] {
			kept = append(kept, a)
		}
	}
	return kept
}

// ReloadCatalog re-merges the state with a new catalog. Stored progress is kept.
func (s *Session) ReloadCatalog(ctx context.Context, eng *engine.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := eng.Rehydrate(s.state)
	if err != nil {
		return fmt.Errorf("failed to rehydrate progress: %w", err)
	}
	s.engine = eng
	s.state = next
	s.saveLocal(ctx, next)
	s.logger.Info("catalog_reloaded", zap.Int("tasks", len(next.Tasks)))
	return nil
}

// Refresh adopts the stored progress when another writer saved a newer version.
// It reports whether the session state changed.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	doc, source, err := s.reconciler.Load(ctx, s.userID)
	if err != nil {
		return false, fmt.Errorf("failed to load progress: %w", err)
	}
	if doc == nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.LastUpdated <= s.state.LastUpdated {
		return false, nil
	}
	s.state = s.engine.Hydrate(s.userID, doc)
	s.logger.Info("session_refreshed", zap.String("source", string(source)), zap.Int64("last_updated", doc.LastUpdated))
	return true, nil
}

// PendingArchives reports how many week archives are waiting for a successful sync
func (s *Session) PendingArchives() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingArchive)
}
