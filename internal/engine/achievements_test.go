package engine

import (
	"testing"

	"github.com/benvon/questlog/internal/models"
)

func TestEvaluateAchievements_UnlocksOnTarget(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	s := newTestState(t, e)

	s, result, err := e.Complete(s, "1", 1)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(result.Achievements) != 0 {
		t.Errorf("Expected no achievements after one completion, got %v", result.Achievements)
	}

	s, _ = e.DailyBoundary(s)
	s, result, err = e.Complete(s, "1", 1)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(result.Achievements) != 1 || result.Achievements[0] != "read-2" {
		t.Fatalf("Expected read-2 unlocked, got %v", result.Achievements)
	}
	earned := s.Achievements["read-2"]
	if earned.Tier != models.TierBronze {
		t.Errorf("Expected bronze tier, got %s", earned.Tier)
	}
	if !earned.EarnedAt.Equal(fixedNow) {
		t.Errorf("Expected earnedAt %v, got %v", fixedNow, earned.EarnedAt)
	}
}

func TestEvaluateAchievements_Monotonic(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	s := newTestState(t, e)
	for i := 0; i < 4; i++ {
		s = mustComplete(t, e, s, "1", 1)
		s, _ = e.DailyBoundary(s)
	}
	if len(s.Achievements) != 2 {
		t.Fatalf("Expected two achievements, got %v", s.Achievements)
	}
	if s.Achievements["read-4"].Tier != models.TierGold {
		t.Errorf("Expected gold tier for Master, got %s", s.Achievements["read-4"].Tier)
	}
	earned := s.Achievements

	for i := 0; i < 4; i++ {
		var err error
		s, _, err = e.Undo(s, "Read")
		if err != nil {
			t.Fatalf("Undo() error = %v", err)
		}
	}
	if progress(t, s, "1").LifetimeCompletionCount != 0 {
		t.Fatalf("Expected lifetime count back at 0, got %d", progress(t, s, "1").LifetimeCompletionCount)
	}
	for id, want := range earned {
		got, ok := s.Achievements[id]
		if !ok {
			t.Errorf("Expected achievement %s to survive undo", id)
			continue
		}
		if got != want {
			t.Errorf("Expected achievement %s unchanged, got %+v", id, got)
		}
	}

	// re-crossing the target does not re-record
	s = mustComplete(t, e, s, "1", 1)
	s, _ = e.DailyBoundary(s)
	_, result, err := e.Complete(s, "1", 1)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(result.Achievements) != 0 {
		t.Errorf("Expected no new achievements, got %v", result.Achievements)
	}
}

func TestAchievementCategoryTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		category models.AchievementCategory
		want     models.Tier
	}{
		{models.AchievementAverage, models.TierBronze},
		{models.AchievementAdvanced, models.TierSilver},
		{models.AchievementMaster, models.TierGold},
	}
	for _, tt := range tests {
		if got := tt.category.Tier(); got != tt.want {
			t.Errorf("%s.Tier() = %s, want %s", tt.category, got, tt.want)
		}
	}
}
