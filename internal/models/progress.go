package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CompletedEntry is the per-period ledger line for a task, keyed by task name
type CompletedEntry struct {
	TaskID          string    `json:"taskId"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	Points          float64   `json:"points"`
	CompletionCount int       `json:"completionCount"`
	DailyCounter    int       `json:"dailyCounter"`
	Boost           BoostKind `json:"boost"`
	SelectedMode    Mode      `json:"selectedMode"`
	NumberLimit     int       `json:"numberLimit"`
	DailyLimit      int       `json:"dailyLimit"`
	BonusPoints     float64   `json:"bonusPoints,omitempty"`
	IsPenalty       bool      `json:"isPenalty,omitempty"`
	CompletedAt     time.Time `json:"completedAt"`

	// Applied holds, per completion unit, what each ledger actually moved. Undo pops the last one.
	Applied []LedgerDelta `json:"applied,omitempty"`
}

// LedgerDelta is the change one completion made to each ledger after the zero floor
type LedgerDelta struct {
	Points  float64 `json:"points"`
	Monthly float64 `json:"monthly"`
}

// PointsBalance is one ledger. Current moves with every reward; Total is the period target.
type PointsBalance struct {
	Current float64 `json:"current"`
	Total   float64 `json:"total"`
}

// EarnedAchievement is the permanent record of an unlocked achievement
type EarnedAchievement struct {
	EarnedAt time.Time `json:"earnedAt"`
	Tier     Tier      `json:"tier"`
}

// AccountXP is the ranked-mode account progression
type AccountXP struct {
	Current float64 `json:"current"`
	Level   int     `json:"level"`
}

// RankedTaskProgress is a user's level and count on a ranked task
type RankedTaskProgress struct {
	TaskID          string    `json:"taskId"`
	Level           int       `json:"level"`
	MaxLevel        int       `json:"maxLevel"`
	Name            string    `json:"name"`
	XPValue         float64   `json:"xpValue"`
	CompletionCount int       `json:"completionCount"`
	Boost           BoostKind `json:"boost"`
	SelectedMode    Mode      `json:"selectedMode"`
	HasTimesOption  bool      `json:"hasTimesOption"`
}

// WeekArchive is the immutable snapshot written at each week boundary
type WeekArchive struct {
	Timestamp          time.Time                 `json:"timestamp"`
	WeekNumber         int                       `json:"weekNumber"`
	CompletedTasks     map[string]CompletedEntry `json:"completedTasks"`
	Points             PointsBalance             `json:"points"`
	MonthlyPoints      PointsBalance             `json:"monthlyPoints"`
	TaskPerformance    map[string]float64        `json:"taskPerformance"`
	OverallPerformance float64                   `json:"overallPerformance"`
}

// UserProgressState is the single owned value every transition operates on.
// Transitions never mutate a state in place; they return a modified Clone.
type UserProgressState struct {
	UserID         uuid.UUID                     `json:"userId"`
	Tasks          []WorkingTask                 `json:"tasks"`
	CompletedTasks map[string]CompletedEntry     `json:"completedTasks"`
	Points         PointsBalance                 `json:"points"`
	MonthlyPoints  PointsBalance                 `json:"monthlyPoints"`
	Achievements   map[string]EarnedAchievement  `json:"achievements"`
	XP             AccountXP                     `json:"xp"`
	RankedTasks    map[string]RankedTaskProgress `json:"rankedTasks"`
	WeekCount      int                           `json:"weekCount"`
	LastUpdated    int64                         `json:"lastUpdated"`
}

// Clone returns a deep copy of the state
func (s *UserProgressState) Clone() *UserProgressState {
	if s == nil {
		return nil
	}
	out := *s
	out.Tasks = make([]WorkingTask, len(s.Tasks))
	copy(out.Tasks, s.Tasks)
	out.CompletedTasks = make(map[string]CompletedEntry, len(s.CompletedTasks))
	for k, v := range s.CompletedTasks {
		v.Applied = append([]LedgerDelta(nil), v.Applied...)
		out.CompletedTasks[k] = v
	}
	out.Achievements = make(map[string]EarnedAchievement, len(s.Achievements))
	for k, v := range s.Achievements {
		out.Achievements[k] = v
	}
	out.RankedTasks = make(map[string]RankedTaskProgress, len(s.RankedTasks))
	for k, v := range s.RankedTasks {
		out.RankedTasks[k] = v
	}
	return &out
}

// TaskIndex returns the index of the working task with the given id, or -1
func (s *UserProgressState) TaskIndex(taskID string) int {
	for i := range s.Tasks {
		if s.Tasks[i].Progress.TaskID == taskID {
			return i
		}
	}
	return -1
}

// ProgressDocument is the persisted shape of a user's subtree (users/{uid}).
// Tasks is kept raw because stored progress may be an object keyed by id or an array.
type ProgressDocument struct {
	Tasks          json.RawMessage               `json:"tasks,omitempty"`
	CompletedTasks map[string]CompletedEntry     `json:"completedTasks,omitempty"`
	Points         *PointsBalance                `json:"points,omitempty"`
	MonthlyPoints  *PointsBalance                `json:"monthlyPoints,omitempty"`
	Achievements   map[string]EarnedAchievement  `json:"achievements,omitempty"`
	XP             *AccountXP                    `json:"xp,omitempty"`
	RankedTasks    map[string]RankedTaskProgress `json:"rankedTasks,omitempty"`
	WeekCount      int                           `json:"weekCount,omitempty"`
	LastUpdated    int64                         `json:"lastUpdated,omitempty"`
}

// Document converts the state into its persisted shape
func (s *UserProgressState) Document() (*ProgressDocument, error) {
	tasks := make(map[string]TaskProgress, len(s.Tasks))
	for _, t := range s.Tasks {
		tasks[t.Progress.TaskID] = t.Progress
	}
	raw, err := json.Marshal(tasks)
	if err != nil {
		return nil, err
	}
	points := s.Points
	monthly := s.MonthlyPoints
	xp := s.XP
	return &ProgressDocument{
		Tasks:          raw,
		CompletedTasks: s.CompletedTasks,
		Points:         &points,
		MonthlyPoints:  &monthly,
		Achievements:   s.Achievements,
		XP:             &xp,
		RankedTasks:    s.RankedTasks,
		WeekCount:      s.WeekCount,
		LastUpdated:    s.LastUpdated,
	}, nil
}
