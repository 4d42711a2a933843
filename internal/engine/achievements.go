package engine

import (
	"github.com/benvon/questlog/internal/models"
)

// EvaluateAchievements records every achievement for taskID whose target the task's
// lifetime count has reached. Recorded achievements are never removed or re-dated.
func (e *Engine) EvaluateAchievements(s *models.UserProgressState, taskID string) (*models.UserProgressState, []string) {
	next := s.Clone()
	unlocked := e.recordAchievements(next, taskID)
	return next, unlocked
}

func (e *Engine) recordAchievements(s *models.UserProgressState, taskID string) []string {
	idx := s.TaskIndex(taskID)
	if idx < 0 {
		return nil
	}
	lifetime := s.Tasks[idx].Progress.LifetimeCompletionCount

	var unlocked []string
	for _, def := range e.catalog.Achievements {
		if def.TaskID != taskID || lifetime < def.Target {
			continue
		}
		if _, earned := s.Achievements[def.ID]; earned {
			continue
		}
		if s.Achievements == nil {
			s.Achievements = make(map[string]models.EarnedAchievement)
		}
		s.Achievements[def.ID] = models.EarnedAchievement{
			EarnedAt: e.now().UTC(),
			Tier:     def.Category.Tier(),
		}
		unlocked = append(unlocked, def.ID)
	}
	return unlocked
}
