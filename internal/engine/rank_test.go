package engine

import (
	"errors"
	"testing"

	"github.com/benvon/questlog/internal/models"
	"github.com/google/uuid"
)

func TestPromoteAccount(t *testing.T) {
	t.Parallel()

	ranks := []models.RankTier{
		{Level: 1, Name: "Bronze", XPToNext: 100},
		{Level: 2, Name: "Silver", XPToNext: 200},
	}

	tests := []struct {
		name string
		xp   models.AccountXP
		want models.AccountXP
	}{
		{name: "carries remainder", xp: models.AccountXP{Current: 130, Level: 1}, want: models.AccountXP{Current: 30, Level: 2}},
		{name: "below threshold", xp: models.AccountXP{Current: 99, Level: 1}, want: models.AccountXP{Current: 99, Level: 1}},
		{name: "exact threshold", xp: models.AccountXP{Current: 100, Level: 1}, want: models.AccountXP{Current: 0, Level: 2}},
		{name: "final tier keeps raw value", xp: models.AccountXP{Current: 450, Level: 2}, want: models.AccountXP{Current: 450, Level: 2}},
		{name: "stops at final tier", xp: models.AccountXP{Current: 350, Level: 1}, want: models.AccountXP{Current: 250, Level: 2}},
		{name: "zero level treated as one", xp: models.AccountXP{Current: 10}, want: models.AccountXP{Current: 10, Level: 1}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := PromoteAccount(tt.xp, ranks); got != tt.want {
				t.Errorf("PromoteAccount(%+v) = %+v, want %+v", tt.xp, got, tt.want)
			}
		})
	}
}

func TestPromoteAccount_MultipleLevels(t *testing.T) {
	t.Parallel()

	ranks := []models.RankTier{
		{Level: 1, XPToNext: 100},
		{Level: 2, XPToNext: 200},
		{Level: 3, XPToNext: 300},
		{Level: 4, XPToNext: 400},
	}
	got := PromoteAccount(models.AccountXP{Current: 650, Level: 1}, ranks)
	want := models.AccountXP{Current: 50, Level: 4}
	if got != want {
		t.Errorf("PromoteAccount() = %+v, want %+v", got, want)
	}
}

func TestCompleteRankedTask(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	s := newTestState(t, e)
	s.XP = models.AccountXP{Current: 90, Level: 1}

	s, result, err := e.CompleteRankedTask(s, "r1", 1)
	if err != nil {
		t.Fatalf("CompleteRankedTask() error = %v", err)
	}
	if result.XP != 40 {
		t.Errorf("Expected 40 XP, got %v", result.XP)
	}
	if !result.Promoted() || s.XP.Level != 2 || s.XP.Current != 30 {
		t.Errorf("Expected promotion to level 2 with 30 XP, got %+v", s.XP)
	}
	if s.RankedTasks["r1"].CompletionCount != 1 {
		t.Errorf("Expected ranked count 1, got %d", s.RankedTasks["r1"].CompletionCount)
	}
	if result.UpgradeAvailable {
		t.Error("Expected upgrade not yet available")
	}
	if s.Points.Current != 1000 {
		t.Errorf("Expected ranked XP not to touch points, got %v", s.Points.Current)
	}
}

func TestCompleteRankedTask_ModeAndBoost(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	s, err := e.SetRankedMode(newTestState(t, e), "r1", models.ModeExceptional)
	if err != nil {
		t.Fatalf("SetRankedMode() error = %v", err)
	}
	s, err = e.ApplyBoost(s, "r1", models.BoostDoubleEverything)
	if err != nil {
		t.Fatalf("ApplyBoost() error = %v", err)
	}
	_, result, err := e.CompleteRankedTask(s, "r1", 1)
	if err != nil {
		t.Fatalf("CompleteRankedTask() error = %v", err)
	}
	if result.XP != 40 {
		t.Errorf("Expected halved then doubled XP of 40, got %v", result.XP)
	}
}

func TestCompleteRankedTask_Rejections(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	s := newTestState(t, e)
	if _, _, err := e.CompleteRankedTask(s, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, _, err := e.CompleteRankedTask(s, "r1", 2); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error without times option, got %v", err)
	}
}

func TestUpgradeTask(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	s := newTestState(t, e)

	if _, err := e.UpgradeTask(s, "r1"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error before required completions, got %v", err)
	}

	for i := 0; i < 2; i++ {
		var err error
		s, _, err = e.CompleteRankedTask(s, "r1", 1)
		if err != nil {
			t.Fatalf("CompleteRankedTask() error = %v", err)
		}
	}

	s, err := e.UpgradeTask(s, "r1")
	if err != nil {
		t.Fatalf("UpgradeTask() error = %v", err)
	}
	rp := s.RankedTasks["r1"]
	if rp.Level != 2 || rp.Name != "Jog" || rp.XPValue != 80 {
		t.Errorf("Expected level 2 Jog worth 80, got %+v", rp)
	}
	if rp.CompletionCount != 0 {
		t.Errorf("Expected count reset, got %d", rp.CompletionCount)
	}
	if rp.MaxLevel != 2 || rp.TaskID != "r1" {
		t.Errorf("Expected max level and id preserved, got %+v", rp)
	}

	for i := 0; i < 3; i++ {
		s, _, err = e.CompleteRankedTask(s, "r1", 1)
		if err != nil {
			t.Fatalf("CompleteRankedTask() error = %v", err)
		}
	}
	if _, err := e.UpgradeTask(s, "r1"); !errors.Is(err, ErrLimitReached) {
		t.Errorf("Expected limit reached at max level, got %v", err)
	}
}

func TestRankFor(t *testing.T) {
	t.Parallel()

	ranks := testCatalog().SortedRanks()
	rank, ok := RankFor(5, ranks)
	if !ok || rank.Name != "Silver" {
		t.Errorf("Expected clamp to Silver, got %+v", rank)
	}
	if _, ok := RankFor(1, nil); ok {
		t.Error("Expected no rank for an empty table")
	}
}

func TestSetRankedMode_RejectsPenalty(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	if _, err := e.SetRankedMode(newTestState(t, e), "r1", models.ModePenalty); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for ranked penalty mode, got %v", err)
	}
}

func TestHydrate_RankedPenaltyModeFallsBackToNormal(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	doc := &models.ProgressDocument{
		RankedTasks: map[string]models.RankedTaskProgress{
			"r1": {TaskID: "r1", Level: 1, SelectedMode: models.ModePenalty},
		},
	}
	s := e.Hydrate(uuid.New(), doc)
	if got := s.RankedTasks["r1"].SelectedMode; got != models.ModeNormal {
		t.Errorf("Expected mode %s, got %s", models.ModeNormal, got)
	}
}

func TestTheSavior_RankedTimesOption(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	s, err := e.ApplyBoost(newTestState(t, e), "r1", models.BoostTheSavior)
	if err != nil {
		t.Fatalf("ApplyBoost() error = %v", err)
	}
	if !s.RankedTasks["r1"].HasTimesOption {
		t.Fatal("Expected TheSavior to grant the times option on a ranked task")
	}

	_, result, err := e.CompleteRankedTask(s, "r1", 2)
	if err != nil {
		t.Fatalf("CompleteRankedTask() error = %v", err)
	}
	if result.XP != 80 {
		t.Errorf("Expected 80 XP for two completions, got %v", result.XP)
	}

	tests := []struct {
		name   string
		revoke func(*models.UserProgressState) *models.UserProgressState
	}{
		{
			name: "remove boost",
			revoke: func(s *models.UserProgressState) *models.UserProgressState {
				next, err := e.RemoveBoost(s, "r1")
				if err != nil {
					t.Fatalf("RemoveBoost() error = %v", err)
				}
				return next
			},
		},
		{
			name: "weekly boundary",
			revoke: func(s *models.UserProgressState) *models.UserProgressState {
				next, _ := e.WeeklyBoundary(s)
				return next
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			next := tt.revoke(s)
			rp := next.RankedTasks["r1"]
			if rp.HasTimesOption || rp.Boost.Active() {
				t.Errorf("Expected boost and times option revoked, got %+v", rp)
			}
			if _, _, err := e.CompleteRankedTask(next, "r1", 2); !errors.Is(err, ErrValidation) {
				t.Errorf("Expected validation error after revoke, got %v", err)
			}
		})
	}
}
