package engine

import (
	"errors"
	"testing"

	"github.com/benvon/questlog/internal/models"
)

func TestApplyBoost_Conflict(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	for _, first := range models.AllBoostKinds() {
		for _, second := range models.AllBoostKinds() {
			s, err := e.ApplyBoost(newTestState(t, e), "2", first)
			if err != nil {
				t.Fatalf("ApplyBoost(%s) error = %v", first, err)
			}
			if _, err := e.ApplyBoost(s, "2", second); !errors.Is(err, ErrBoostConflict) {
				t.Errorf("Expected conflict applying %s over %s, got %v", second, first, err)
			}
		}
	}
}

func TestRemoveBoost_NoBoost(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	if _, err := e.RemoveBoost(newTestState(t, e), "2"); !errors.Is(err, ErrBoostConflict) {
		t.Errorf("Expected conflict removing a missing boost, got %v", err)
	}
	if _, err := e.RemoveBoost(newTestState(t, e), "r1"); !errors.Is(err, ErrBoostConflict) {
		t.Errorf("Expected conflict removing a missing ranked boost, got %v", err)
	}
}

func TestApplyBoost_Validation(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	s := newTestState(t, e)

	if _, err := e.ApplyBoost(s, "2", models.BoostNone); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for empty boost, got %v", err)
	}
	if _, err := e.ApplyBoost(s, "2", models.BoostKind("TripleEverything")); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for unknown boost, got %v", err)
	}
	if _, err := e.ApplyBoost(s, "missing", models.BoostDoubleEverything); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestTheSavior_TimesOption(t *testing.T) {
	t.Parallel()

	e := newTestEngine()

	tests := []struct {
		name   string
		taskID string
		want   bool
	}{
		{name: "template without times option", taskID: "1", want: false},
		{name: "template with times option", taskID: "2", want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := e.ApplyBoost(newTestState(t, e), tt.taskID, models.BoostTheSavior)
			if err != nil {
				t.Fatalf("ApplyBoost() error = %v", err)
			}
			if !progress(t, s, tt.taskID).HasTimesOption {
				t.Error("Expected TheSavior to grant the times option")
			}
			s, err = e.RemoveBoost(s, tt.taskID)
			if err != nil {
				t.Fatalf("RemoveBoost() error = %v", err)
			}
			p := progress(t, s, tt.taskID)
			if p.HasTimesOption != tt.want {
				t.Errorf("Expected times option restored to %v, got %v", tt.want, p.HasTimesOption)
			}
			if p.Boost != models.BoostNone {
				t.Errorf("Expected no boost, got %s", p.Boost)
			}
		})
	}
}

func TestRemoveBoost_OtherKindsKeepTimesOption(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	s, err := e.ApplyBoost(newTestState(t, e), "2", models.BoostDoubleEverything)
	if err != nil {
		t.Fatalf("ApplyBoost() error = %v", err)
	}
	s, err = e.RemoveBoost(s, "2")
	if err != nil {
		t.Fatalf("RemoveBoost() error = %v", err)
	}
	if !progress(t, s, "2").HasTimesOption {
		t.Error("Expected times option untouched by removing DoubleEverything")
	}
}

func TestApplyBoost_RankedTask(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	s, err := e.ApplyBoost(newTestState(t, e), "r1", models.BoostDoubleEverything)
	if err != nil {
		t.Fatalf("ApplyBoost() error = %v", err)
	}
	if s.RankedTasks["r1"].Boost != models.BoostDoubleEverything {
		t.Errorf("Expected ranked boost set, got %s", s.RankedTasks["r1"].Boost)
	}
	if _, err := e.ApplyBoost(s, "r1", models.BoostFiveXBonus); !errors.Is(err, ErrBoostConflict) {
		t.Errorf("Expected conflict, got %v", err)
	}
	s, err = e.RemoveBoost(s, "r1")
	if err != nil {
		t.Fatalf("RemoveBoost() error = %v", err)
	}
	if s.RankedTasks["r1"].Boost.Active() {
		t.Error("Expected ranked boost removed")
	}
}
