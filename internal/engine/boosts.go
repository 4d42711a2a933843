package engine

import (
	"github.com/benvon/questlog/internal/models"
)

// ApplyBoost sets the single boost on a task or ranked task. A second boost is a
// conflict; the existing one must be removed first.
func (e *Engine) ApplyBoost(s *models.UserProgressState, taskID string, kind models.BoostKind) (*models.UserProgressState, error) {
	const op = "apply boost"

	if !kind.Active() || !kind.IsValid() {
		return nil, newError(ErrValidation, op, taskID, "unknown boost %q", kind)
	}
	spec, _ := kind.Spec()

	if idx := s.TaskIndex(taskID); idx >= 0 {
		if s.Tasks[idx].Progress.Boost.Active() {
			return nil, newError(ErrBoostConflict, op, taskID, "boost %s already applied", s.Tasks[idx].Progress.Boost)
		}
		next := s.Clone()
		np := &next.Tasks[idx].Progress
		np.Boost = kind
		if spec.GrantsTimesOption {
			np.HasTimesOption = true
		}
		return next, nil
	}

	if rp, ok := s.RankedTasks[taskID]; ok {
		if rp.Boost.Active() {
			return nil, newError(ErrBoostConflict, op, taskID, "boost %s already applied", rp.Boost)
		}
		next := s.Clone()
		rp.Boost = kind
		if spec.GrantsTimesOption {
			rp.HasTimesOption = true
		}
		next.RankedTasks[taskID] = rp
		return next, nil
	}

	return nil, newError(ErrNotFound, op, taskID, "task is not in the working list")
}

// RemoveBoost clears the boost on a task or ranked task. Removing TheSavior restores
// the definition's own hasTimesOption.
func (e *Engine) RemoveBoost(s *models.UserProgressState, taskID string) (*models.UserProgressState, error) {
	const op = "remove boost"

	if idx := s.TaskIndex(taskID); idx >= 0 {
		wt := s.Tasks[idx]
		if !wt.Progress.Boost.Active() {
			return nil, newError(ErrBoostConflict, op, taskID, "no boost to remove")
		}
		next := s.Clone()
		np := &next.Tasks[idx].Progress
		revokeBoost(np, wt.Template)
		return next, nil
	}

	if rp, ok := s.RankedTasks[taskID]; ok {
		if !rp.Boost.Active() {
			return nil, newError(ErrBoostConflict, op, taskID, "no boost to remove")
		}
		next := s.Clone()
		next.RankedTasks[taskID] = e.revokeRankedBoost(rp)
		return next, nil
	}

	return nil, newError(ErrNotFound, op, taskID, "task is not in the working list")
}

// revokeRankedBoost clears a ranked task's boost and restores its own hasTimesOption
func (e *Engine) revokeRankedBoost(rp models.RankedTaskProgress) models.RankedTaskProgress {
	if spec, err := rp.Boost.Spec(); err == nil && spec.GrantsTimesOption {
		def, _ := e.catalog.RankedTask(rp.TaskID)
		rp.HasTimesOption = def.HasTimesOption
	}
	rp.Boost = models.BoostNone
	return rp
}

func revokeBoost(p *models.TaskProgress, tpl models.TaskTemplate) {
	if spec, err := p.Boost.Spec(); err == nil && spec.GrantsTimesOption {
		p.HasTimesOption = tpl.HasTimesOption
	}
	p.Boost = models.BoostNone
}
