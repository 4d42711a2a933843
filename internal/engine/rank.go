package engine

import (
	"github.com/benvon/questlog/internal/models"
)

// RankedResult describes an accepted ranked completion
type RankedResult struct {
	TaskID           string  `json:"taskId"`
	XP               float64 `json:"xp"`
	LevelBefore      int     `json:"levelBefore"`
	LevelAfter       int     `json:"levelAfter"`
	UpgradeAvailable bool    `json:"upgradeAvailable"`
}

// Promoted reports whether the completion advanced the account rank
func (r *RankedResult) Promoted() bool {
	return r.LevelAfter > r.LevelBefore
}

// PromoteAccount applies account promotion to xp using an ascending threshold table.
// Each promotion subtracts the threshold for the current level and carries the
// remainder. At the final tier XP accumulates without further carry.
func PromoteAccount(xp models.AccountXP, ranks []models.RankTier) models.AccountXP {
	if xp.Level < 1 {
		xp.Level = 1
	}
	if xp.Current < 0 {
		xp.Current = 0
	}
	for xp.Level < len(ranks) {
		threshold := ranks[xp.Level-1].XPToNext
		if threshold <= 0 || xp.Current < threshold {
			break
		}
		xp.Current = roundPoints(xp.Current - threshold)
		xp.Level++
	}
	return xp
}

// RankFor returns the rank row for an account level, clamped to the table
func RankFor(level int, ranks []models.RankTier) (models.RankTier, bool) {
	if len(ranks) == 0 {
		return models.RankTier{}, false
	}
	if level < 1 {
		level = 1
	}
	if level > len(ranks) {
		level = len(ranks)
	}
	return ranks[level-1], true
}

// CompleteRankedTask awards XP for a ranked task at its current level and promotes the account
func (e *Engine) CompleteRankedTask(s *models.UserProgressState, taskID string, times int) (*models.UserProgressState, *RankedResult, error) {
	const op = "complete ranked"

	def, ok := e.catalog.RankedTask(taskID)
	if !ok {
		return nil, nil, newError(ErrNotFound, op, taskID, "ranked task is not in the catalog")
	}
	rp, ok := s.RankedTasks[taskID]
	if !ok {
		return nil, nil, newError(ErrNotFound, op, taskID, "ranked task has no progress")
	}
	if times < 1 {
		return nil, nil, newError(ErrValidation, op, taskID, "times must be at least 1, got %d", times)
	}
	if times > 1 && !rp.HasTimesOption {
		return nil, nil, newError(ErrValidation, op, taskID, "task does not allow multiple completions per action")
	}

	level := def.Level(rp.Level)
	tpl := models.TaskTemplate{
		ID:                   def.ID,
		Category:             def.Category,
		Name:                 level.Name,
		PointValue:           level.XPValue,
		HasExceptionalOption: def.HasExceptionalOption,
		HasTimesOption:       rp.HasTimesOption,
	}
	xp := ComputeEffectivePoints(tpl, rp.SelectedMode, rp.Boost, times)

	next := s.Clone()
	rp.CompletionCount += times
	next.RankedTasks[taskID] = rp

	before := next.XP.Level
	if before < 1 {
		before = 1
	}
	next.XP.Current = roundPoints(next.XP.Current + xp)
	next.XP = PromoteAccount(next.XP, e.catalog.SortedRanks())

	return next, &RankedResult{
		TaskID:           taskID,
		XP:               xp,
		LevelBefore:      before,
		LevelAfter:       next.XP.Level,
		UpgradeAvailable: upgradeable(def, rp) == nil,
	}, nil
}

func upgradeable(def models.RankedTaskDef, rp models.RankedTaskProgress) error {
	const op = "upgrade task"
	if rp.Level >= def.MaxLevel() {
		return newError(ErrLimitReached, op, def.ID, "already at max level %d", def.MaxLevel())
	}
	required := def.Level(rp.Level).RequiredCompletionsForNextLevelUpgrade
	if rp.CompletionCount < required {
		return newError(ErrValidation, op, def.ID, "%d of %d completions required for upgrade", rp.CompletionCount, required)
	}
	return nil
}

// UpgradeTask moves a ranked task to its next level definition and resets its count
func (e *Engine) UpgradeTask(s *models.UserProgressState, taskID string) (*models.UserProgressState, error) {
	def, ok := e.catalog.RankedTask(taskID)
	if !ok {
		return nil, newError(ErrNotFound, "upgrade task", taskID, "ranked task is not in the catalog")
	}
	rp, ok := s.RankedTasks[taskID]
	if !ok {
		return nil, newError(ErrNotFound, "upgrade task", taskID, "ranked task has no progress")
	}
	if err := upgradeable(def, rp); err != nil {
		return nil, err
	}

	next := s.Clone()
	rp.Level++
	level := def.Level(rp.Level)
	rp.Name = level.Name
	rp.XPValue = level.XPValue
	rp.MaxLevel = def.MaxLevel()
	rp.CompletionCount = 0
	next.RankedTasks[taskID] = rp
	return next, nil
}

// SetRankedMode selects the scoring mode of a ranked task. Ranked tasks award XP and
// carry no penalty value, so Penalty mode is rejected.
func (e *Engine) SetRankedMode(s *models.UserProgressState, taskID string, mode models.Mode) (*models.UserProgressState, error) {
	const op = "set mode"
	def, ok := e.catalog.RankedTask(taskID)
	if !ok {
		return nil, newError(ErrNotFound, op, taskID, "ranked task is not in the catalog")
	}
	rp, ok := s.RankedTasks[taskID]
	if !ok {
		return nil, newError(ErrNotFound, op, taskID, "ranked task has no progress")
	}
	if !mode.IsValid() {
		return nil, newError(ErrValidation, op, taskID, "unknown mode %q", mode)
	}
	if mode == models.ModePenalty {
		return nil, newError(ErrValidation, op, taskID, "ranked tasks have no penalty mode")
	}
	if mode != models.ModeNormal && !def.HasExceptionalOption {
		return nil, newError(ErrValidation, op, taskID, "task has no exceptional option")
	}
	next := s.Clone()
	rp.SelectedMode = mode
	next.RankedTasks[taskID] = rp
	return next, nil
}
