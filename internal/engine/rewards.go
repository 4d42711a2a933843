package engine

import (
	"math"

	"github.com/benvon/questlog/internal/models"
)

// ComputeEffectivePoints returns the point delta of one completion action.
//
// Exceptional mode halves the base; Penalty mode replaces it with -penalty and is
// neither boosted nor scaled by times. Both modes only apply to templates with
// hasExceptionalOption. The function is pure.
func ComputeEffectivePoints(task models.TaskTemplate, mode models.Mode, boost models.BoostKind, times int) float64 {
	base := task.PointValue

	if task.HasExceptionalOption {
		switch mode {
		case models.ModeExceptional:
			base = base / 2
		case models.ModePenalty:
			return roundPoints(-task.Penalty)
		}
	}

	if boost.Active() && mode != models.ModePenalty {
		if spec, err := boost.Spec(); err == nil {
			base = applyBoost(base, spec)
		}
	}

	if times < 1 {
		times = 1
	}
	return roundPoints(base * float64(times))
}

func applyBoost(base float64, spec models.BoostSpec) float64 {
	if spec.Multiplier != 0 {
		base *= spec.Multiplier
	}
	if spec.Percentage != 0 {
		base *= 1 + spec.Percentage
	}
	return base
}

// CompletionBonus is the fixed bonus claimable at numberLimit under the given boost
func CompletionBonus(boost models.BoostKind) float64 {
	spec, err := boost.Spec()
	if err != nil {
		return models.DefaultCompletionBonus
	}
	return spec.CompletionBonus
}

// roundPoints keeps ledgers at two decimals so that add-then-subtract is exact
func roundPoints(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

func addToLedger(b models.PointsBalance, delta float64) models.PointsBalance {
	b.Current = roundPoints(b.Current + delta)
	if b.Current < 0 {
		b.Current = 0
	}
	return b
}

// addToLedgers applies delta identically to both ledgers, flooring each at zero,
// and returns what each ledger actually moved
func addToLedgers(s *models.UserProgressState, delta float64) models.LedgerDelta {
	before, beforeMonthly := s.Points.Current, s.MonthlyPoints.Current
	s.Points = addToLedger(s.Points, delta)
	s.MonthlyPoints = addToLedger(s.MonthlyPoints, delta)
	return models.LedgerDelta{
		Points:  roundPoints(s.Points.Current - before),
		Monthly: roundPoints(s.MonthlyPoints.Current - beforeMonthly),
	}
}

// reverseLedgers takes back a delta returned by addToLedgers
func reverseLedgers(s *models.UserProgressState, d models.LedgerDelta) {
	s.Points = addToLedger(s.Points, -d.Points)
	s.MonthlyPoints = addToLedger(s.MonthlyPoints, -d.Monthly)
}

// splitUnits spreads a batch delta over its completions; the last unit takes the rounding remainder
func splitUnits(d models.LedgerDelta, times int) []models.LedgerDelta {
	if times < 1 {
		times = 1
	}
	units := make([]models.LedgerDelta, times)
	per := models.LedgerDelta{
		Points:  roundPoints(d.Points / float64(times)),
		Monthly: roundPoints(d.Monthly / float64(times)),
	}
	for i := 0; i < times-1; i++ {
		units[i] = per
	}
	rest := float64(times - 1)
	units[times-1] = models.LedgerDelta{
		Points:  roundPoints(d.Points - per.Points*rest),
		Monthly: roundPoints(d.Monthly - per.Monthly*rest),
	}
	return units
}
