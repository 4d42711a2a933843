package models

// CategoryTask is the category whose tasks count toward weekly performance and the default points target
const CategoryTask = "Task"

// CategoryBonus marks catalog entries that cannot have a completion bonus claimed
const CategoryBonus = "Bonus"

// FrequencyUnit describes the cadence a task's numberLimit applies to
type FrequencyUnit string

const (
	FrequencyDay   FrequencyUnit = "day"
	FrequencyWeek  FrequencyUnit = "week"
	FrequencyMonth FrequencyUnit = "month"
)

// Mode is the scoring mode selected for a task
type Mode string

const (
	ModeNormal      Mode = "Normal"
	ModeExceptional Mode = "Exceptional"
	ModePenalty     Mode = "Penalty"
)

// IsValid reports whether m is one of the known modes
func (m Mode) IsValid() bool {
	switch m {
	case ModeNormal, ModeExceptional, ModePenalty:
		return true
	default:
		return false
	}
}

// TaskTemplate is a globally defined task from the catalog. It is read-only to the engine.
type TaskTemplate struct {
	ID                   string        `json:"id" yaml:"id" validate:"required"`
	Category             string        `json:"category" yaml:"category" validate:"required"`
	Name                 string        `json:"name" yaml:"name" validate:"required"`
	PointValue           float64       `json:"pointValue" yaml:"pointValue" validate:"gte=0"`
	NumberLimit          int           `json:"numberLimit" yaml:"numberLimit" validate:"min=1"`
	DailyLimit           int           `json:"dailyLimit" yaml:"dailyLimit" validate:"gte=0"`
	HasExceptionalOption bool          `json:"hasExceptionalOption" yaml:"hasExceptionalOption"`
	HasTimesOption       bool          `json:"hasTimesOption" yaml:"hasTimesOption"`
	Penalty              float64       `json:"penalty" yaml:"penalty" validate:"gte=0"`
	FrequencyUnit        FrequencyUnit `json:"frequencyUnit" yaml:"frequencyUnit" validate:"omitempty,frequency_unit"`
}

// HasDailyCap reports whether the template limits completions per day.
// A zero dailyLimit means the task has no per-day cap.
func (t TaskTemplate) HasDailyCap() bool {
	return t.DailyLimit > 0
}

// TaskProgress is a user's per-period progress on one task
type TaskProgress struct {
	TaskID                  string    `json:"taskId"`
	CompletionCount         int       `json:"completionCount"`
	LifetimeCompletionCount int       `json:"lifetimeCompletionCount"`
	DailyCounter            int       `json:"dailyCounter"`
	Boost                   BoostKind `json:"boost"`
	SelectedMode            Mode      `json:"selectedMode"`
	BonusClaimed            bool      `json:"bonusClaimed"`
	HasTimesOption          bool      `json:"hasTimesOption"`
}

// TaskState is the per-period state of a task derived from its counters
type TaskState string

const (
	TaskStateAvailable    TaskState = "available"
	TaskStateExhausted    TaskState = "exhausted"
	TaskStateBonusClaimed TaskState = "bonus_claimed"
)

// WorkingTask pairs a catalog template with the user's progress on it
type WorkingTask struct {
	Template TaskTemplate `json:"template"`
	Progress TaskProgress `json:"progress"`
}

// State returns the task's position in the Available → Exhausted → BonusClaimed lifecycle
func (w WorkingTask) State() TaskState {
	switch {
	case w.Progress.BonusClaimed:
		return TaskStateBonusClaimed
	case w.Progress.CompletionCount >= w.Template.NumberLimit:
		return TaskStateExhausted
	default:
		return TaskStateAvailable
	}
}
