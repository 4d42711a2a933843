package engine

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/benvon/questlog/internal/models"
)

// StoredTaskProgress is a stored progress record. Pointer fields are nil when the
// field was absent so that merging can tell "missing" from "zero".
type StoredTaskProgress struct {
	TaskID                  flexibleID        `json:"taskId"`
	CompletionCount         *int              `json:"completionCount"`
	LifetimeCompletionCount *int              `json:"lifetimeCompletionCount"`
	DailyCounter            *int              `json:"dailyCounter"`
	Boost                   *models.BoostKind `json:"boost"`
	SelectedMode            *models.Mode      `json:"selectedMode"`
	BonusClaimed            *bool             `json:"bonusClaimed"`
	HasTimesOption          *bool             `json:"hasTimesOption"`
}

// flexibleID accepts task ids stored either as JSON strings or numbers
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// NormalizeProgress decodes a stored tasks subtree keyed by task id. It accepts an
// object keyed by id, an array (with null holes), null, or garbage; records that
// cannot be decoded are skipped.
func NormalizeProgress(raw json.RawMessage) map[string]StoredTaskProgress {
	out := make(map[string]StoredTaskProgress)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return out
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return out
		}
		for i, item := range items {
			addStored(out, strconv.Itoa(i), item)
		}
	case '{':
		var items map[string]json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return out
		}
		for key, item := range items {
			addStored(out, key, item)
		}
	}
	return out
}

func addStored(out map[string]StoredTaskProgress, fallbackID string, item json.RawMessage) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 || item[0] != '{' {
		return
	}
	var rec StoredTaskProgress
	if err := json.Unmarshal(item, &rec); err != nil {
		return
	}
	id := string(rec.TaskID)
	if id == "" {
		id = fallbackID
	}
	out[id] = rec
}

// MergeCatalog combines the catalog with stored progress into the working task list.
// Every template is represented; missing fields default to zero counters, no boost,
// Normal mode and no claimed bonus. Stored progress for unknown tasks is dropped.
// The result is ordered by task id.
func MergeCatalog(templates []models.TaskTemplate, stored map[string]StoredTaskProgress) []models.WorkingTask {
	tasks := make([]models.WorkingTask, 0, len(templates))
	seen := make(map[string]bool, len(templates))
	for _, tpl := range templates {
		if seen[tpl.ID] {
			continue
		}
		seen[tpl.ID] = true

		p := models.TaskProgress{
			TaskID:         tpl.ID,
			Boost:          models.BoostNone,
			SelectedMode:   models.ModeNormal,
			HasTimesOption: tpl.HasTimesOption,
		}
		if rec, ok := stored[tpl.ID]; ok {
			applyStored(&p, rec)
		}
		clampProgress(&p, tpl)
		tasks = append(tasks, models.WorkingTask{Template: tpl, Progress: p})
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return lessTaskID(tasks[i].Progress.TaskID, tasks[j].Progress.TaskID)
	})
	return tasks
}

func applyStored(p *models.TaskProgress, rec StoredTaskProgress) {
	if rec.CompletionCount != nil {
		p.CompletionCount = *rec.CompletionCount
	}
	if rec.LifetimeCompletionCount != nil {
		p.LifetimeCompletionCount = *rec.LifetimeCompletionCount
	}
	if rec.DailyCounter != nil {
		p.DailyCounter = *rec.DailyCounter
	}
	if rec.Boost != nil && rec.Boost.IsValid() {
		p.Boost = *rec.Boost
	}
	if rec.SelectedMode != nil && rec.SelectedMode.IsValid() {
		p.SelectedMode = *rec.SelectedMode
	}
	if rec.BonusClaimed != nil {
		p.BonusClaimed = *rec.BonusClaimed
	}
	if rec.HasTimesOption != nil {
		p.HasTimesOption = *rec.HasTimesOption
	}
}

// clampProgress restores the counter invariants on records written by older clients
func clampProgress(p *models.TaskProgress, tpl models.TaskTemplate) {
	if p.CompletionCount < 0 {
		p.CompletionCount = 0
	}
	if p.CompletionCount > tpl.NumberLimit {
		p.CompletionCount = tpl.NumberLimit
	}
	if p.DailyCounter < 0 {
		p.DailyCounter = 0
	}
	if p.LifetimeCompletionCount < p.CompletionCount {
		p.LifetimeCompletionCount = p.CompletionCount
	}
}

// lessTaskID orders numeric ids numerically and before non-numeric ids
func lessTaskID(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a < b
	}
}
