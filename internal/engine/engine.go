// Package engine implements the task progress and rewards transitions.
//
// Every exported transition takes a *models.UserProgressState and returns a new
// state; the input is never modified. Rejections are *Error values whose Kind
// is one of ErrValidation, ErrLimitReached, ErrBoostConflict or ErrNotFound.
package engine

import (
	"time"

	"github.com/benvon/questlog/internal/models"
	"github.com/google/uuid"
)

// Engine evaluates transitions against a catalog
type Engine struct {
	catalog *models.Catalog
	now     func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine for the given catalog
func New(catalog *models.Catalog, opts ...Option) *Engine {
	if catalog == nil {
		catalog = &models.Catalog{}
	}
	e := &Engine{
		catalog: catalog,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the catalog the engine evaluates against
func (e *Engine) Catalog() *models.Catalog {
	return e.catalog
}

// WithCatalog returns an engine sharing the clock but using another catalog
func (e *Engine) WithCatalog(catalog *models.Catalog) *Engine {
	return &Engine{catalog: catalog, now: e.now}
}

// Now returns the engine's current time
func (e *Engine) Now() time.Time {
	return e.now()
}

// Hydrate builds a working state for userID from a stored document.
// doc may be nil for a user with no stored progress.
func (e *Engine) Hydrate(userID uuid.UUID, doc *models.ProgressDocument) *models.UserProgressState {
	if doc == nil {
		doc = &models.ProgressDocument{}
	}

	s := &models.UserProgressState{
		UserID:         userID,
		Tasks:          MergeCatalog(e.catalog.Tasks, NormalizeProgress(doc.Tasks)),
		CompletedTasks: make(map[string]models.CompletedEntry, len(doc.CompletedTasks)),
		Achievements:   make(map[string]models.EarnedAchievement, len(doc.Achievements)),
		RankedTasks:    mergeRankedTasks(e.catalog.RankedTasks, doc.RankedTasks),
		WeekCount:      doc.WeekCount,
		LastUpdated:    doc.LastUpdated,
	}
	for k, v := range doc.CompletedTasks {
		if v.CompletionCount > 0 {
			s.CompletedTasks[k] = v
		}
	}
	for k, v := range doc.Achievements {
		s.Achievements[k] = v
	}

	if doc.Points != nil {
		s.Points = *doc.Points
	} else {
		s.Points = models.PointsBalance{Total: e.catalog.DefaultPointsTotal()}
	}
	if doc.MonthlyPoints != nil {
		s.MonthlyPoints = *doc.MonthlyPoints
	} else {
		s.MonthlyPoints = models.PointsBalance{Total: e.catalog.DefaultMonthlyPointsTotal()}
	}
	if doc.XP != nil {
		s.XP = *doc.XP
	}
	if s.XP.Level < 1 {
		s.XP.Level = 1
	}
	if s.WeekCount < 1 {
		s.WeekCount = 1
	}
	return s
}

// Rehydrate re-merges an existing state with the engine's catalog, used after a catalog edit
func (e *Engine) Rehydrate(s *models.UserProgressState) (*models.UserProgressState, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	return e.Hydrate(s.UserID, doc), nil
}

func mergeRankedTasks(defs []models.RankedTaskDef, stored map[string]models.RankedTaskProgress) map[string]models.RankedTaskProgress {
	out := make(map[string]models.RankedTaskProgress, len(defs))
	for _, def := range defs {
		p, ok := stored[def.ID]
		if !ok {
			p = models.RankedTaskProgress{TaskID: def.ID, Level: 1, SelectedMode: models.ModeNormal}
		}
		p.TaskID = def.ID
		p.MaxLevel = def.MaxLevel()
		if p.Level < 1 {
			p.Level = 1
		}
		if p.Level > p.MaxLevel && p.MaxLevel > 0 {
			p.Level = p.MaxLevel
		}
		if p.SelectedMode == "" || p.SelectedMode == models.ModePenalty {
			p.SelectedMode = models.ModeNormal
		}
		p.HasTimesOption = def.HasTimesOption
		if spec, err := p.Boost.Spec(); err == nil && spec.GrantsTimesOption {
			p.HasTimesOption = true
		}
		level := def.Level(p.Level)
		p.Name = level.Name
		p.XPValue = level.XPValue
		out[def.ID] = p
	}
	return out
}
