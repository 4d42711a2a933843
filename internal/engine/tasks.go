package engine

import (
	"github.com/benvon/questlog/internal/models"
)

// CompletionResult describes an accepted completion
type CompletionResult struct {
	TaskID string  `json:"taskId"`
	Times  int     `json:"times"`
	Points float64 `json:"points"`
	// BonusAvailable is set when the completion brought the task to its limit and a bonus can be claimed
	BonusAvailable bool     `json:"bonusAvailable"`
	Achievements   []string `json:"achievements,omitempty"`
}

// UndoResult describes a reversed completion
type UndoResult struct {
	TaskID       string  `json:"taskId"`
	Points       float64 `json:"points"`
	EntryRemoved bool    `json:"entryRemoved"`
}

func (e *Engine) task(s *models.UserProgressState, op, taskID string) (int, error) {
	idx := s.TaskIndex(taskID)
	if idx < 0 {
		return -1, newError(ErrNotFound, op, taskID, "task is not in the working list")
	}
	return idx, nil
}

// Complete records times completions of a task. The whole batch is rejected when it
// would exceed numberLimit, or dailyLimit unless the active boost lifts the daily cap.
func (e *Engine) Complete(s *models.UserProgressState, taskID string, times int) (*models.UserProgressState, *CompletionResult, error) {
	const op = "complete"

	idx, err := e.task(s, op, taskID)
	if err != nil {
		return nil, nil, err
	}
	wt := s.Tasks[idx]
	tpl, p := wt.Template, wt.Progress

	if times < 1 {
		return nil, nil, newError(ErrValidation, op, taskID, "times must be at least 1, got %d", times)
	}
	if times > 1 && !p.HasTimesOption {
		return nil, nil, newError(ErrValidation, op, taskID, "task does not allow multiple completions per action")
	}
	if times > 1 && tpl.HasExceptionalOption && p.SelectedMode == models.ModePenalty {
		return nil, nil, newError(ErrValidation, op, taskID, "penalty mode accepts a single completion per action")
	}

	if p.CompletionCount >= tpl.NumberLimit {
		return nil, nil, newError(ErrLimitReached, op, taskID, "completion limit of %d reached", tpl.NumberLimit)
	}
	if p.CompletionCount+times > tpl.NumberLimit {
		return nil, nil, newError(ErrLimitReached, op, taskID, "%d completions would exceed limit of %d", times, tpl.NumberLimit)
	}
	spec, err := p.Boost.Spec()
	if err != nil {
		return nil, nil, newError(ErrValidation, op, taskID, "%v", err)
	}
	if tpl.HasDailyCap() && !spec.LiftsDailyCap && p.DailyCounter+times > tpl.DailyLimit {
		return nil, nil, newError(ErrLimitReached, op, taskID, "daily limit of %d reached", tpl.DailyLimit)
	}

	points := ComputeEffectivePoints(tpl, p.SelectedMode, p.Boost, times)

	next := s.Clone()
	np := &next.Tasks[idx].Progress
	np.CompletionCount += times
	np.LifetimeCompletionCount += times
	np.DailyCounter += times
	applied := addToLedgers(next, points)

	entry, ok := next.CompletedTasks[tpl.Name]
	if !ok {
		entry = models.CompletedEntry{
			TaskID:       tpl.ID,
			Name:         tpl.Name,
			Category:     tpl.Category,
			Boost:        p.Boost,
			SelectedMode: p.SelectedMode,
			NumberLimit:  tpl.NumberLimit,
			DailyLimit:   tpl.DailyLimit,
			IsPenalty:    tpl.HasExceptionalOption && p.SelectedMode == models.ModePenalty,
			CompletedAt:  e.now().UTC(),
		}
	}
	entry.Points = roundPoints(entry.Points + points)
	entry.Applied = append(entry.Applied, splitUnits(applied, times)...)
	entry.CompletionCount += times
	entry.DailyCounter += times
	next.CompletedTasks[tpl.Name] = entry

	unlocked := e.recordAchievements(next, taskID)

	result := &CompletionResult{
		TaskID:         taskID,
		Times:          times,
		Points:         points,
		BonusAvailable: bonusClaimable(next.Tasks[idx]) == nil,
		Achievements:   unlocked,
	}
	return next, result, nil
}

// Undo reverses the most recent completion recorded in the entry for the named task.
// Each ledger gets back exactly what that completion moved it by. A claimed bonus is
// left in the ledgers and stays claimed.
func (e *Engine) Undo(s *models.UserProgressState, entryName string) (*models.UserProgressState, *UndoResult, error) {
	const op = "undo"

	entry, ok := s.CompletedTasks[entryName]
	if !ok {
		return nil, nil, newError(ErrNotFound, op, entryName, "no completed entry")
	}
	idx, err := e.task(s, op, entry.TaskID)
	if err != nil {
		return nil, nil, err
	}

	next := s.Clone()
	result := &UndoResult{TaskID: entry.TaskID}

	if entry.CompletionCount > 0 {
		perUnit := roundPoints(entry.Points / float64(entry.CompletionCount))
		unit := models.LedgerDelta{Points: perUnit, Monthly: perUnit}
		if n := len(entry.Applied); n > 0 {
			unit = entry.Applied[n-1]
			entry.Applied = entry.Applied[:n-1]
		}
		reverseLedgers(next, unit)
		entry.Points = roundPoints(entry.Points - perUnit)
		entry.CompletionCount--
		result.Points = unit.Points
	}
	if entry.DailyCounter > 0 {
		entry.DailyCounter--
	}

	np := &next.Tasks[idx].Progress
	np.CompletionCount = decrement(np.CompletionCount)
	np.LifetimeCompletionCount = decrement(np.LifetimeCompletionCount)
	np.DailyCounter = decrement(np.DailyCounter)

	if entry.CompletionCount <= 0 {
		delete(next.CompletedTasks, entryName)
		result.EntryRemoved = true
	} else {
		next.CompletedTasks[entryName] = entry
	}
	return next, result, nil
}

func decrement(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// ResetCount zeroes a task's period counters and bonus flag without touching points or
// lifetime counts. The task's completed entry is dropped since its count is now zero.
func (e *Engine) ResetCount(s *models.UserProgressState, taskID string) (*models.UserProgressState, error) {
	idx, err := e.task(s, "reset", taskID)
	if err != nil {
		return nil, err
	}
	next := s.Clone()
	np := &next.Tasks[idx].Progress
	np.CompletionCount = 0
	np.DailyCounter = 0
	np.BonusClaimed = false
	delete(next.CompletedTasks, next.Tasks[idx].Template.Name)
	return next, nil
}

func bonusClaimable(wt models.WorkingTask) error {
	const op = "claim bonus"
	switch {
	case wt.Template.Category == models.CategoryBonus:
		return newError(ErrValidation, op, wt.Template.ID, "bonus tasks have no completion bonus")
	case wt.Progress.BonusClaimed:
		return newError(ErrValidation, op, wt.Template.ID, "bonus already claimed this period")
	case wt.Progress.CompletionCount < wt.Template.NumberLimit:
		return newError(ErrValidation, op, wt.Template.ID, "task has %d of %d completions", wt.Progress.CompletionCount, wt.Template.NumberLimit)
	case wt.Template.HasExceptionalOption && wt.Progress.SelectedMode == models.ModePenalty:
		return newError(ErrValidation, op, wt.Template.ID, "no bonus in penalty mode")
	}
	return nil
}

// ClaimBonus awards the completion bonus for an exhausted task, once per period
func (e *Engine) ClaimBonus(s *models.UserProgressState, taskID string) (*models.UserProgressState, float64, error) {
	idx, err := e.task(s, "claim bonus", taskID)
	if err != nil {
		return nil, 0, err
	}
	wt := s.Tasks[idx]
	if err := bonusClaimable(wt); err != nil {
		return nil, 0, err
	}

	bonus := CompletionBonus(wt.Progress.Boost)
	next := s.Clone()
	next.Tasks[idx].Progress.BonusClaimed = true
	addToLedgers(next, bonus)
	if entry, ok := next.CompletedTasks[wt.Template.Name]; ok {
		entry.BonusPoints = roundPoints(entry.BonusPoints + bonus)
		next.CompletedTasks[wt.Template.Name] = entry
	}
	return next, bonus, nil
}

// SetMode selects the scoring mode of a task. Exceptional and Penalty require hasExceptionalOption.
func (e *Engine) SetMode(s *models.UserProgressState, taskID string, mode models.Mode) (*models.UserProgressState, error) {
	const op = "set mode"
	idx, err := e.task(s, op, taskID)
	if err != nil {
		return nil, err
	}
	if !mode.IsValid() {
		return nil, newError(ErrValidation, op, taskID, "unknown mode %q", mode)
	}
	if mode != models.ModeNormal && !s.Tasks[idx].Template.HasExceptionalOption {
		return nil, newError(ErrValidation, op, taskID, "task has no exceptional option")
	}
	next := s.Clone()
	next.Tasks[idx].Progress.SelectedMode = mode
	return next, nil
}
