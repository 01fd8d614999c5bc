package repository

import (
	"context"
	"errors"

	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/internal/model/health"
)

// ErrNotFound 记录不存在。
var ErrNotFound = errors.New("not found")

// ChatRepository stores sessions and their transcripts.
type ChatRepository interface {
	CreateSession(ctx context.Context, session chat.Session) error
	GetSession(ctx context.Context, id string) (chat.Session, error)
	LatestSession(ctx context.Context, userID string) (chat.Session, error)
	AppendMessage(ctx context.Context, msg chat.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
	DeleteMessages(ctx context.Context, sessionID string) (int64, error)
}

// ReminderRepository stores one reminder per (user, symptom).
type ReminderRepository interface {
	// Upsert 按 (userId, symptom) 插入或更新，返回最终保存的记录。
	Upsert(ctx context.Context, r health.Reminder) (health.Reminder, error)
	Get(ctx context.Context, id string) (health.Reminder, error)
	ListByUser(ctx context.Context, userID string) ([]health.Reminder, error)
	// ListShownBefore 返回 lastShown 早于 cutoff（unix 毫秒）的提醒。
	ListShownBefore(ctx context.Context, cutoff int64) ([]health.Reminder, error)
	// ClaimShown 仅当 lastShown 仍早于 cutoff 时把它更新为 at，返回是否更新成功。
	ClaimShown(ctx context.Context, id string, cutoff, at int64) (bool, error)
	Delete(ctx context.Context, id string) error
}

// ActivityRepository stores logged workouts.
type ActivityRepository interface {
	Create(ctx context.Context, a health.Activity) error
	ListRecent(ctx context.Context, userID string, limit int) ([]health.Activity, error)
	Summary(ctx context.Context, userID string) (health.ActivitySummary, error)
}
