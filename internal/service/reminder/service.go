package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/healthwise/companion/internal/model/health"
	"github.com/healthwise/companion/internal/repository"
	"github.com/healthwise/companion/internal/service/notify"
)

var (
	ErrNotFound        = errors.New("reminder not found")
	ErrInvalidInput    = errors.New("invalid reminder")
	ErrInvalidResponse = errors.New("response must be better, same or worse")
)

// DefaultPeriod 两次提醒之间的最短间隔。
const DefaultPeriod = 24 * time.Hour

const (
	notificationTag = "healthwise-reminder"
	followUpTag     = "healthwise-follow-up"
	followUpTitle   = "HealthWise Follow-up"
)

var followUps = map[health.CheckInResponse]string{
	health.CheckInWorse:  "I'm sorry to hear you're feeling worse. It might be a good idea to consult a healthcare professional.",
	health.CheckInBetter: "Great to hear you're feeling better! Keep up the good work.",
	health.CheckInSame:   "Thanks for checking in. Consistency is key to feeling better.",
}

// CheckInResult 用户反馈后的回复。
type CheckInResult struct {
	Response health.CheckInResponse `json:"response"`
	FollowUp string                 `json:"followUp"`
	Reminder *health.Reminder       `json:"reminder,omitempty"`
}

// Service manages daily symptom reminders.
type Service struct {
	repo   repository.ReminderRepository
	period time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewService(repo repository.ReminderRepository, period time.Duration, logger *zap.Logger) *Service {
	if period <= 0 {
		period = DefaultPeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		period: period,
		now:    time.Now,
		logger: logger.Named("reminder"),
	}
}

// Set 创建或替换用户针对某个症状的提醒。新提醒从现在开始计时。
func (s *Service) Set(ctx context.Context, userID, symptom, advice string) (health.Reminder, error) {
	symptom = strings.TrimSpace(symptom)
	advice = strings.TrimRight(strings.TrimSpace(advice), ".")
	if userID == "" || symptom == "" || advice == "" {
		return health.Reminder{}, fmt.Errorf("%w: user, symptom and advice are required", ErrInvalidInput)
	}

	now := s.now()
	saved, err := s.repo.Upsert(ctx, health.Reminder{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Symptom:   symptom,
		Advice:    advice,
		LastShown: now.UnixMilli(),
		CreatedAt: now.UTC(),
	})
	if err != nil {
		return health.Reminder{}, fmt.Errorf("set reminder: %w", err)
	}
	s.logger.Info("reminder set", zap.String("user_id", userID), zap.String("reminder_id", saved.ID), zap.String("symptom", symptom))
	return saved, nil
}

// List returns the user's reminders, oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]health.Reminder, error) {
	reminders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

// Get 返回属于该用户的提醒。
func (s *Service) Get(ctx context.Context, userID, id string) (health.Reminder, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return health.Reminder{}, ErrNotFound
		}
		return health.Reminder{}, fmt.Errorf("get reminder: %w", err)
	}
	if r.UserID != userID {
		return health.Reminder{}, ErrNotFound
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}

// Due 返回距上次展示超过周期的提醒，并把 lastShown 更新为 now。
// 同一个提醒在一个周期内只会被返回一次。
func (s *Service) Due(ctx context.Context, now time.Time) ([]health.Reminder, error) {
	cutoff := now.UnixMilli() - s.period.Milliseconds()
	candidates, err := s.repo.ListShownBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}

	due := make([]health.Reminder, 0, len(candidates))
	for _, r := range candidates {
		claimed, err := s.repo.ClaimShown(ctx, r.ID, cutoff, now.UnixMilli())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return due, fmt.Errorf("claim reminder %s: %w", r.ID, err)
		}
		if !claimed {
			continue
		}
		r.LastShown = now.UnixMilli()
		due = append(due, r)
	}
	return due, nil
}

// DueForUser 只返回某个用户的到期提醒。
func (s *Service) DueForUser(ctx context.Context, userID string, now time.Time) ([]health.Reminder, error) {
	reminders, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	cutoff := now.UnixMilli() - s.period.Milliseconds()
	due := make([]health.Reminder, 0)
	for _, r := range reminders {
		if !r.IsDue(now, s.period) {
			continue
		}
		claimed, err := s.repo.ClaimShown(ctx, r.ID, cutoff, now.UnixMilli())
		if err != nil {
			return due, fmt.Errorf("claim reminder %s: %w", r.ID, err)
		}
		if claimed {
			r.LastShown = now.UnixMilli()
			due = append(due, r)
		}
	}
	return due, nil
}

// CheckIn 记录用户反馈并给出跟进语。reminderID 可为空。
func (s *Service) CheckIn(ctx context.Context, userID, reminderID string, response health.CheckInResponse) (CheckInResult, error) {
	response = health.CheckInResponse(strings.ToLower(strings.TrimSpace(string(response))))
	followUp, ok := followUps[response]
	if !ok {
		return CheckInResult{}, ErrInvalidResponse
	}

	result := CheckInResult{Response: response, FollowUp: followUp}
	if reminderID != "" {
		r, err := s.Get(ctx, userID, reminderID)
		if err != nil {
			return CheckInResult{}, err
		}
		result.Reminder = &r
	}

	s.logger.Info("reminder check-in", zap.String("user_id", userID), zap.String("reminder_id", reminderID), zap.String("response", string(response)))
	return result, nil
}

// Notification 生成每日提醒通知。
func (s *Service) Notification(r health.Reminder) health.Notification {
	return health.Notification{
		Tag:        notificationTag,
		UserID:     r.UserID,
		ReminderID: r.ID,
		Title:      "Daily Health Check-in: " + cases.Title(language.English).String(r.Symptom),
		Body:       fmt.Sprintf("Time for your daily check-in. Remember: %s. How are you feeling today?", r.Advice),
		Actions: []health.NotificationAction{
			{Action: string(health.CheckInBetter), Title: "Feeling Better"},
			{Action: string(health.CheckInSame), Title: "Feeling the Same"},
			{Action: string(health.CheckInWorse), Title: "Feeling Worse"},
		},
		CreatedAt: s.now().UTC(),
	}
}

// InboundHandler 处理 websocket 上的 check-in 消息。
func (s *Service) InboundHandler() notify.InboundHandler {
	return func(ctx context.Context, userID string, msg notify.Inbound) (*health.Notification, error) {
		if msg.Type != "checkin" {
			return nil, nil
		}
		result, err := s.CheckIn(ctx, userID, msg.ReminderID, health.CheckInResponse(msg.Response))
		if err != nil {
			return nil, err
		}
		return &health.Notification{
			Tag:        followUpTag,
			UserID:     userID,
			ReminderID: msg.ReminderID,
			Title:      followUpTitle,
			Body:       result.FollowUp,
			CreatedAt:  s.now().UTC(),
		}, nil
	}
}
