package engine

import (
	"math"

	"github.com/benvon/questlog/internal/models"
)

// DailyReport describes what a day boundary charged
type DailyReport struct {
	PenalizedTasks []string           `json:"penalizedTasks,omitempty"`
	TaskPenalties  map[string]float64 `json:"taskPenalties,omitempty"`
	Penalty        float64            `json:"penalty"`
}

// DailyBoundary charges the missed-day penalty for every task whose boost carries one
// and that had no completion today, then zeroes every daily counter.
func (e *Engine) DailyBoundary(s *models.UserProgressState) (*models.UserProgressState, *DailyReport) {
	next := s.Clone()
	report := &DailyReport{TaskPenalties: map[string]float64{}}

	for i := range next.Tasks {
		p := &next.Tasks[i].Progress
		spec, err := p.Boost.Spec()
		if err == nil && spec.MissedDayPenalty > 0 && p.DailyCounter == 0 {
			addToLedgers(next, -spec.MissedDayPenalty)
			report.PenalizedTasks = append(report.PenalizedTasks, p.TaskID)
			report.TaskPenalties[p.TaskID] = spec.MissedDayPenalty
			report.Penalty = roundPoints(report.Penalty + spec.MissedDayPenalty)
		}
		p.DailyCounter = 0
	}
	for name, entry := range next.CompletedTasks {
		entry.DailyCounter = 0
		next.CompletedTasks[name] = entry
	}
	return next, report
}

// Performance computes per-task completion percentages (unclamped) and the overall
// percentage across "Task" category templates, rounded to a whole number.
func Performance(tasks []models.WorkingTask) (map[string]float64, float64) {
	perTask := make(map[string]float64, len(tasks))
	var total, possible int
	for _, wt := range tasks {
		if wt.Template.NumberLimit > 0 {
			perTask[wt.Template.ID] = roundPoints(float64(wt.Progress.CompletionCount) / float64(wt.Template.NumberLimit) * 100)
		}
		if wt.Template.Category == models.CategoryTask {
			total += wt.Progress.CompletionCount
			possible += wt.Template.NumberLimit
		}
	}
	if possible == 0 {
		return perTask, 0
	}
	return perTask, math.Round(float64(total) / float64(possible) * 100)
}

// WeeklyBoundary archives the week and resets period state: counters, boosts and
// bonus flags on every task, the short-cycle ledger and the completed entries.
// The week counter advances by one; the archive carries the week that just ended.
func (e *Engine) WeeklyBoundary(s *models.UserProgressState) (*models.UserProgressState, *models.WeekArchive) {
	perTask, overall := Performance(s.Tasks)

	completed := make(map[string]models.CompletedEntry, len(s.CompletedTasks))
	for k, v := range s.CompletedTasks {
		completed[k] = v
	}
	week := s.WeekCount
	if week < 1 {
		week = 1
	}
	archive := &models.WeekArchive{
		Timestamp:          e.now().UTC(),
		WeekNumber:         week,
		CompletedTasks:     completed,
		Points:             s.Points,
		MonthlyPoints:      s.MonthlyPoints,
		TaskPerformance:    perTask,
		OverallPerformance: overall,
	}

	next := s.Clone()
	for i := range next.Tasks {
		p := &next.Tasks[i].Progress
		p.CompletionCount = 0
		p.DailyCounter = 0
		p.BonusClaimed = false
		revokeBoost(p, next.Tasks[i].Template)
	}
	for id, rp := range next.RankedTasks {
		next.RankedTasks[id] = e.revokeRankedBoost(rp)
	}
	next.Points = models.PointsBalance{Current: 0, Total: e.catalog.DefaultPointsTotal()}
	next.CompletedTasks = make(map[string]models.CompletedEntry)
	next.WeekCount = week + 1
	return next, archive
}

// MonthlyBoundary resets the long-cycle ledger. Task state is untouched.
func (e *Engine) MonthlyBoundary(s *models.UserProgressState) *models.UserProgressState {
	next := s.Clone()
	next.MonthlyPoints = models.PointsBalance{Current: 0, Total: e.catalog.DefaultMonthlyPointsTotal()}
	return next
}
