package models

import "fmt"

// BoostKind identifies the single boost active on a task. The zero value means no boost.
type BoostKind string

const (
	BoostNone              BoostKind = ""
	BoostDoubleEverything  BoostKind = "DoubleEverything"
	BoostPlusThirtyPercent BoostKind = "PlusThirtyPercent"
	BoostTheSavior         BoostKind = "TheSavior"
	BoostDoubleOrDie       BoostKind = "DoubleOrDie"
	BoostFiveXBonus        BoostKind = "FiveXBonus"
	BoostPerfectBonus      BoostKind = "PerfectBonus"
)

// BoostCategory groups boosts that are mutually exclusive by construction
type BoostCategory string

const (
	BoostCategoryAll   BoostCategory = "all"
	BoostCategoryBonus BoostCategory = "bonus"
)

// DefaultCompletionBonus is the fixed bonus for reaching a task's numberLimit
const DefaultCompletionBonus = 10

// PerfectCompletionBonus replaces DefaultCompletionBonus while PerfectBonus is active
const PerfectCompletionBonus = 50

// DoubleOrDiePenalty is deducted at day boundary when a DoubleOrDie task was not completed that day
const DoubleOrDiePenalty = 10

// BoostSpec is the kind-specific behavior of a boost
type BoostSpec struct {
	Kind     BoostKind
	Category BoostCategory
	// Multiplier is applied as base *= Multiplier. 1 leaves the reward unchanged.
	Multiplier float64
	// Percentage is applied as base *= 1 + Percentage.
	Percentage float64
	// LiftsDailyCap disables the per-day completion cap.
	LiftsDailyCap bool
	// GrantsTimesOption enables multi-completion for the task while active.
	GrantsTimesOption bool
	// MissedDayPenalty is deducted at day boundary when the task had no completion that day.
	MissedDayPenalty float64
	// CompletionBonus is the bonus awarded when claiming at numberLimit.
	CompletionBonus float64
}

// Spec returns the behavior of the boost. The switch is exhaustive over the known kinds.
func (k BoostKind) Spec() (BoostSpec, error) {
	spec := BoostSpec{Kind: k, Multiplier: 1, CompletionBonus: DefaultCompletionBonus}
	switch k {
	case BoostNone:
	case BoostDoubleEverything:
		spec.Category = BoostCategoryAll
		spec.Multiplier = 2
	case BoostPlusThirtyPercent:
		spec.Category = BoostCategoryAll
		spec.Percentage = 0.30
	case BoostTheSavior:
		spec.Category = BoostCategoryAll
		spec.LiftsDailyCap = true
		spec.GrantsTimesOption = true
	case BoostDoubleOrDie:
		spec.Category = BoostCategoryAll
		spec.Multiplier = 2
		spec.MissedDayPenalty = DoubleOrDiePenalty
	case BoostFiveXBonus:
		spec.Category = BoostCategoryBonus
		spec.Multiplier = 5
	case BoostPerfectBonus:
		spec.Category = BoostCategoryBonus
		spec.CompletionBonus = PerfectCompletionBonus
	default:
		return BoostSpec{}, fmt.Errorf("unknown boost %q", string(k))
	}
	return spec, nil
}

// IsValid reports whether k is a known boost kind (including none)
func (k BoostKind) IsValid() bool {
	_, err := k.Spec()
	return err == nil
}

// Active reports whether a boost is set
func (k BoostKind) Active() bool {
	return k != BoostNone
}

// AllBoostKinds lists every applicable boost
func AllBoostKinds() []BoostKind {
	return []BoostKind{
		BoostDoubleEverything,
		BoostPlusThirtyPercent,
		BoostTheSavior,
		BoostDoubleOrDie,
		BoostFiveXBonus,
		BoostPerfectBonus,
	}
}
