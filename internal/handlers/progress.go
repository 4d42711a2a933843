package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/benvon/questlog/internal/engine"
	"github.com/benvon/questlog/internal/logger"
	"github.com/benvon/questlog/internal/models"
	"github.com/benvon/questlog/internal/request"
	"github.com/benvon/questlog/internal/tracker"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SessionProvider resolves the progress session of a user
type SessionProvider interface {
	Session(ctx context.Context, userID uuid.UUID) (*tracker.Session, error)
	Engine() *engine.Engine
}

// ArchiveLister reads closed weeks from the remote store
type ArchiveLister interface {
	Archives(ctx context.Context, userID uuid.UUID) ([]models.WeekArchive, error)
}

var _ SessionProvider = (*tracker.Manager)(nil)

// ProgressHandler exposes the task progress operations of a user
type ProgressHandler struct {
	sessions SessionProvider
	archives ArchiveLister
	log      *zap.Logger
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(sessions SessionProvider, archives ArchiveLister, log *zap.Logger) *ProgressHandler {
	return &ProgressHandler{sessions: sessions, archives: archives, log: log}
}

// RegisterRoutes registers progress routes on the given router
// The router should already have the /users/{userID} prefix
func (h *ProgressHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/progress", h.GetProgress).Methods("GET")
	r.HandleFunc("/tasks/{taskID}/complete", h.CompleteTask).Methods("POST")
	r.HandleFunc("/tasks/{taskID}/mode", h.SetMode).Methods("PUT")
	r.HandleFunc("/tasks/{taskID}/boost", h.ApplyBoost).Methods("POST")
	r.HandleFunc("/tasks/{taskID}/boost", h.RemoveBoost).Methods("DELETE")
	r.HandleFunc("/tasks/{taskID}/reset", h.ResetCount).Methods("POST")
	r.HandleFunc("/tasks/{taskID}/bonus", h.ClaimBonus).Methods("POST")
	r.HandleFunc("/completed/{name}/undo", h.Undo).Methods("POST")
	r.HandleFunc("/ranked/{taskID}/complete", h.CompleteRanked).Methods("POST")
	r.HandleFunc("/ranked/{taskID}/upgrade", h.UpgradeRanked).Methods("POST")
	r.HandleFunc("/boundaries/{period}", h.RunBoundary).Methods("POST")
	r.HandleFunc("/sync", h.Sync).Methods("POST")
	r.HandleFunc("/archives", h.ListArchives).Methods("GET")
	r.HandleFunc("/achievements", h.ListAchievements).Methods("GET")
}

// CompleteRequest represents a completion request. Times defaults to 1.
type CompleteRequest struct {
	Times int `json:"times" validate:"omitempty,min=1,max=1000"`
}

// SetModeRequest represents a scoring mode change
type SetModeRequest struct {
	Mode string `json:"mode" validate:"required,task_mode"`
}

// ApplyBoostRequest represents a boost application
type ApplyBoostRequest struct {
	Boost string `json:"boost" validate:"required,boost_kind"`
}

// AchievementView is an achievement definition with the user's progress toward it
type AchievementView struct {
	models.AchievementDef
	Progress int         `json:"progress"`
	Earned   bool        `json:"earned"`
	EarnedAt *time.Time  `json:"earnedAt,omitempty"`
	Tier     models.Tier `json:"tier"`
}

// session resolves the user's session or writes the error response
func (h *ProgressHandler) session(w http.ResponseWriter, r *http.Request) (*tracker.Session, bool) {
	userID, err := request.UserID(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return nil, false
	}
	sess, err := h.sessions.Session(r.Context(), userID)
	if err != nil {
		h.log.Error("failed_to_load_session",
			zap.String("user_id", logger.SanitizeUserID(userID.String())),
			zap.Error(err),
		)
		if errors.Is(err, engine.ErrSyncFailure) {
			respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Progress is temporarily unavailable")
			return nil, false
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load progress")
		return nil, false
	}
	return sess, true
}

// respondOutcome writes the result of a session operation
func (h *ProgressHandler) respondOutcome(w http.ResponseWriter, out *tracker.Outcome, err error, fallback string) {
	if err != nil {
		// The change is kept locally when only the remote write failed
		if errors.Is(err, engine.ErrSyncFailure) && out != nil {
			respondJSON(w, http.StatusAccepted, out)
			return
		}
		if status, _ := transitionStatus(err); status == http.StatusInternalServerError {
			h.log.Error("transition_failed", zap.String("operation", fallback), zap.String("error", logger.SanitizeError(err)))
		}
		respondTransitionError(w, err, fallback)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// GetProgress returns the user's current progress snapshot
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

// CompleteTask records one or more completions of a task
func (h *ProgressHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if req.Times == 0 {
		req.Times = 1
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.Complete(r.Context(), mux.Vars(r)["taskID"], req.Times)
	h.respondOutcome(w, out, err, "Failed to complete task")
}

// Undo reverses one completion recorded in a completed entry
func (h *ProgressHandler) Undo(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.Undo(r.Context(), mux.Vars(r)["name"])
	h.respondOutcome(w, out, err, "Failed to undo completion")
}

// SetMode selects the scoring mode of a task
func (h *ProgressHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req SetModeRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.SetMode(r.Context(), mux.Vars(r)["taskID"], models.Mode(req.Mode))
	h.respondOutcome(w, out, err, "Failed to set mode")
}

// ApplyBoost attaches a boost to a task
func (h *ProgressHandler) ApplyBoost(w http.ResponseWriter, r *http.Request) {
	var req ApplyBoostRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.ApplyBoost(r.Context(), mux.Vars(r)["taskID"], models.BoostKind(req.Boost))
	h.respondOutcome(w, out, err, "Failed to apply boost")
}

// RemoveBoost detaches the active boost of a task
func (h *ProgressHandler) RemoveBoost(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.RemoveBoost(r.Context(), mux.Vars(r)["taskID"])
	h.respondOutcome(w, out, err, "Failed to remove boost")
}

// ResetCount zeroes a task's period counters. The client confirms with ?confirm=true.
func (h *ProgressHandler) ResetCount(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	confirmed := request.Confirmed(r)
	ctx := tracker.WithConfirmer(r.Context(), tracker.ConfirmFunc(func(context.Context, string) bool {
		return confirmed
	}))
	out, err := sess.ResetCount(ctx, mux.Vars(r)["taskID"])
	h.respondOutcome(w, out, err, "Failed to reset count")
}

// ClaimBonus awards the completion bonus of an exhausted task
func (h *ProgressHandler) ClaimBonus(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.ClaimBonus(r.Context(), mux.Vars(r)["taskID"])
	h.respondOutcome(w, out, err, "Failed to claim bonus")
}

// CompleteRanked records completions of a ranked task
func (h *ProgressHandler) CompleteRanked(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if req.Times == 0 {
		req.Times = 1
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.CompleteRanked(r.Context(), mux.Vars(r)["taskID"], req.Times)
	h.respondOutcome(w, out, err, "Failed to complete ranked task")
}

// UpgradeRanked moves a ranked task to its next level
func (h *ProgressHandler) UpgradeRanked(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.UpgradeRankedTask(r.Context(), mux.Vars(r)["taskID"])
	h.respondOutcome(w, out, err, "Failed to upgrade ranked task")
}

// RunBoundary applies a period boundary on demand (daily, weekly or monthly)
func (h *ProgressHandler) RunBoundary(w http.ResponseWriter, r *http.Request) {
	period := mux.Vars(r)["period"]
	var run func(*tracker.Session, context.Context) (*tracker.Outcome, error)
	switch period {
	case "daily":
		run = (*tracker.Session).DailyBoundary
	case "weekly":
		run = (*tracker.Session).WeeklyBoundary
	case "monthly":
		run = (*tracker.Session).MonthlyBoundary
	default:
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "period must be daily, weekly or monthly")
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := run(sess, r.Context())
	h.respondOutcome(w, out, err, "Failed to apply "+period+" boundary")
}

// Sync pushes the user's progress to the remote store
func (h *ProgressHandler) Sync(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.Sync(r.Context())
	h.respondOutcome(w, out, err, "Failed to sync progress")
}

// ListArchives returns the user's closed weeks, oldest first
func (h *ProgressHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	userID, err := request.UserID(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	archives, err := h.archives.Archives(r.Context(), userID)
	if err != nil {
		h.log.Error("failed_to_list_archives",
			zap.String("user_id", logger.SanitizeUserID(userID.String())),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve archives")
		return
	}
	if archives == nil {
		archives = []models.WeekArchive{}
	}
	respondJSON(w, http.StatusOK, archives)
}

// ListAchievements returns every catalog achievement with the user's progress
func (h *ProgressHandler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, achievementViews(h.sessions.Engine().Catalog(), sess.Snapshot()))
}

func achievementViews(c *models.Catalog, st *models.UserProgressState) []AchievementView {
	views := make([]AchievementView, 0, len(c.Achievements))
	for _, def := range c.Achievements {
		view := AchievementView{AchievementDef: def, Tier: def.Category.Tier()}
		if idx := st.TaskIndex(def.TaskID); idx >= 0 {
			view.Progress = st.Tasks[idx].Progress.LifetimeCompletionCount
		}
		if earned, ok := st.Achievements[def.ID]; ok {
			at := earned.EarnedAt
			view.Earned = true
			view.EarnedAt = &at
			view.Tier = earned.Tier
		}
		views = append(views, view)
	}
	return views
}
