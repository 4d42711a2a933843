package engine

import (
	"testing"
	"time"

	"github.com/benvon/questlog/internal/models"
	"github.com/google/uuid"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testCatalog() *models.Catalog {
	return &models.Catalog{
		Tasks: []models.TaskTemplate{
			{ID: "1", Category: models.CategoryTask, Name: "Read", PointValue: 10, NumberLimit: 5, DailyLimit: 1, HasTimesOption: false},
			{ID: "2", Category: models.CategoryTask, Name: "Run", PointValue: 20, NumberLimit: 10, HasTimesOption: true},
			{ID: "3", Category: models.CategoryTask, Name: "Cook", PointValue: 100, NumberLimit: 10, HasExceptionalOption: true, HasTimesOption: true, Penalty: 10},
			{ID: "10", Category: models.CategoryBonus, Name: "Volunteer", PointValue: 50, NumberLimit: 1},
		},
		Achievements: []models.AchievementDef{
			{ID: "read-2", Name: "Reader", TaskID: "1", Target: 2, Category: models.AchievementAverage},
			{ID: "read-4", Name: "Bookworm", TaskID: "1", Target: 4, Category: models.AchievementMaster},
		},
		Ranks: []models.RankTier{
			{Level: 2, Name: "Silver", Tier: "silver", XPToNext: 200},
			{Level: 1, Name: "Bronze", Tier: "bronze", XPToNext: 100},
		},
		RankedTasks: []models.RankedTaskDef{
			{
				ID:                   "r1",
				Category:             models.CategoryTask,
				HasExceptionalOption: true,
				Levels: []models.LevelDef{
					{Name: "Walk", XPValue: 40, RequiredCompletionsForNextLevelUpgrade: 2},
					{Name: "Jog", XPValue: 80, RequiredCompletionsForNextLevelUpgrade: 3},
				},
			},
		},
	}
}

func newTestEngine() *Engine {
	return New(testCatalog(), WithClock(func() time.Time { return fixedNow }))
}

// newTestState returns a fresh state with both ledgers well above zero
func newTestState(t *testing.T, e *Engine) *models.UserProgressState {
	t.Helper()
	s := e.Hydrate(uuid.New(), nil)
	s.Points.Current = 1000
	s.MonthlyPoints.Current = 1000
	return s
}

func progress(t *testing.T, s *models.UserProgressState, taskID string) models.TaskProgress {
	t.Helper()
	idx := s.TaskIndex(taskID)
	if idx < 0 {
		t.Fatalf("task %s not in working list", taskID)
	}
	return s.Tasks[idx].Progress
}

func mustComplete(t *testing.T, e *Engine, s *models.UserProgressState, taskID string, times int) *models.UserProgressState {
	t.Helper()
	next, _, err := e.Complete(s, taskID, times)
	if err != nil {
		t.Fatalf("Complete(%s, %d) failed: %v", taskID, times, err)
	}
	return next
}
