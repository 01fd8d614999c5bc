package health

import "time"

// Reminder pairs a symptom with advice and is surfaced once per period.
type Reminder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Symptom   string    `json:"symptom"`
	Advice    string    `json:"advice"`
	LastShown int64     `json:"lastShown"` // unix 毫秒，0 表示从未展示
	CreatedAt time.Time `json:"createdAt"`
}

// IsDue 判断距离上次展示是否已超过 period。
func (r Reminder) IsDue(now time.Time, period time.Duration) bool {
	return now.UnixMilli()-r.LastShown > period.Milliseconds()
}

// CheckInResponse 用户对每日提醒的反馈。
type CheckInResponse string

const (
	CheckInBetter CheckInResponse = "better"
	CheckInSame   CheckInResponse = "same"
	CheckInWorse  CheckInResponse = "worse"
)

// NotificationAction 通知上可点击的按钮。
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is pushed to a user's connected clients.
type Notification struct {
	Tag        string               `json:"tag"`
	UserID     string               `json:"userId"`
	ReminderID string               `json:"reminderId,omitempty"`
	Title      string               `json:"title"`
	Body       string               `json:"body"`
	Actions    []NotificationAction `json:"actions,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
}
