package health

import "time"

// ActivityType 支持记录的运动类型。
type ActivityType string

const (
	ActivityWalk  ActivityType = "Walk"
	ActivityRun   ActivityType = "Run"
	ActivityCycle ActivityType = "Cycle"
)

// Valid reports whether t is one of the tracked activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityWalk, ActivityRun, ActivityCycle:
		return true
	default:
		return false
	}
}

// Activity is one logged workout.
type Activity struct {
	ID       string       `json:"id"`
	UserID   string       `json:"userId"`
	Type     ActivityType `json:"type"`
	Duration int          `json:"duration"` // 分钟
	Distance float64      `json:"distance"` // 公里
	Date     time.Time    `json:"date"`
}

// ActivitySummary 汇总统计。
type ActivitySummary struct {
	Count         int     `json:"count"`
	TotalMinutes  int     `json:"totalMinutes"`
	TotalDistance float64 `json:"totalDistance"`
}
