package models

import "sort"

// AchievementCategory is the difficulty band of an achievement
type AchievementCategory string

const (
	AchievementAverage  AchievementCategory = "Average"
	AchievementAdvanced AchievementCategory = "Advanced"
	AchievementMaster   AchievementCategory = "Master"
)

// Tier is the medal awarded for an achievement
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// Tier maps the category to its fixed medal. Unknown categories map to bronze.
func (c AchievementCategory) Tier() Tier {
	switch c {
	case AchievementAdvanced:
		return TierSilver
	case AchievementMaster:
		return TierGold
	default:
		return TierBronze
	}
}

// AchievementDef is a static achievement target
type AchievementDef struct {
	ID       string              `json:"id" yaml:"id" validate:"required"`
	Name     string              `json:"name" yaml:"name"`
	TaskID   string              `json:"taskId" yaml:"taskId" validate:"required"`
	Target   int                 `json:"target" yaml:"target" validate:"min=1"`
	Category AchievementCategory `json:"category" yaml:"category"`
}

// RankTier is one row of the ascending account rank table
type RankTier struct {
	Level int    `json:"level" yaml:"level"`
	Name  string `json:"name" yaml:"name"`
	Tier  string `json:"tier" yaml:"tier"`
	// XPToNext is the XP needed at this level to be promoted to the next one
	XPToNext float64 `json:"xpToNext" yaml:"xpToNext" validate:"gte=0"`
}

// LevelDef is the definition of one level of a ranked task
type LevelDef struct {
	Name                                   string  `json:"name" yaml:"name"`
	XPValue                                float64 `json:"xpValue" yaml:"xpValue" validate:"gte=0"`
	RequiredCompletionsForNextLevelUpgrade int     `json:"requiredCompletionsForNextLevelUpgrade" yaml:"requiredCompletionsForNextLevelUpgrade"`
}

// RankedTaskDef is a task that levels up in ranked mode
type RankedTaskDef struct {
	ID                   string     `json:"id" yaml:"id" validate:"required"`
	Category             string     `json:"category" yaml:"category"`
	HasExceptionalOption bool       `json:"hasExceptionalOption" yaml:"hasExceptionalOption"`
	HasTimesOption       bool       `json:"hasTimesOption" yaml:"hasTimesOption"`
	Levels               []LevelDef `json:"levels" yaml:"levels" validate:"min=1,dive"`
}

// MaxLevel is the highest level the task can reach
func (r RankedTaskDef) MaxLevel() int {
	return len(r.Levels)
}

// Level returns the definition for a 1-based level, clamped to the defined range
func (r RankedTaskDef) Level(level int) LevelDef {
	if len(r.Levels) == 0 {
		return LevelDef{}
	}
	if level < 1 {
		level = 1
	}
	if level > len(r.Levels) {
		level = len(r.Levels)
	}
	return r.Levels[level-1]
}

// Catalog is everything static the engine evaluates against
type Catalog struct {
	Tasks        []TaskTemplate   `json:"tasks" yaml:"tasks" validate:"dive"`
	Achievements []AchievementDef `json:"achievements" yaml:"achievements" validate:"dive"`
	Ranks        []RankTier       `json:"ranks" yaml:"ranks" validate:"dive"`
	RankedTasks  []RankedTaskDef  `json:"rankedTasks" yaml:"rankedTasks" validate:"dive"`
	// PointsTarget overrides the computed default ledger total when set
	PointsTarget        *float64 `json:"pointsTarget,omitempty" yaml:"pointsTarget,omitempty"`
	MonthlyPointsTarget *float64 `json:"monthlyPointsTarget,omitempty" yaml:"monthlyPointsTarget,omitempty"`
}

// Task returns the template with the given id
func (c *Catalog) Task(id string) (TaskTemplate, bool) {
	for _, t := range c.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return TaskTemplate{}, false
}

// RankedTask returns the ranked task definition with the given id
func (c *Catalog) RankedTask(id string) (RankedTaskDef, bool) {
	for _, r := range c.RankedTasks {
		if r.ID == id {
			return r, true
		}
	}
	return RankedTaskDef{}, false
}

// SortedRanks returns the rank table ordered by level
func (c *Catalog) SortedRanks() []RankTier {
	ranks := make([]RankTier, len(c.Ranks))
	copy(ranks, c.Ranks)
	sort.SliceStable(ranks, func(i, j int) bool { return ranks[i].Level < ranks[j].Level })
	return ranks
}

// DefaultPointsTotal is the short-cycle ledger total written at each weekly reset:
// the points attainable by completing every "Task" category template to its limit.
func (c *Catalog) DefaultPointsTotal() float64 {
	if c.PointsTarget != nil {
		return *c.PointsTarget
	}
	var total float64
	for _, t := range c.Tasks {
		if t.Category == CategoryTask {
			total += t.PointValue * float64(t.NumberLimit)
		}
	}
	return total
}

// DefaultMonthlyPointsTotal is the long-cycle ledger total written at each monthly reset
func (c *Catalog) DefaultMonthlyPointsTotal() float64 {
	if c.MonthlyPointsTarget != nil {
		return *c.MonthlyPointsTarget
	}
	return c.DefaultPointsTotal() * 4
}
