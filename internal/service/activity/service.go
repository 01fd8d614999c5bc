package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/healthwise/companion/internal/model/health"
	"github.com/healthwise/companion/internal/repository"
	"github.com/healthwise/companion/internal/validation"
)

// DefaultRecentLimit 默认展示的最近记录条数。
const DefaultRecentLimit = 3

// LogInput 记录一次运动的参数。Date 为空时使用当前时间。
type LogInput struct {
	Type     health.ActivityType `json:"type"`
	Duration int                 `json:"duration"`
	Distance float64             `json:"distance"`
	Date     time.Time           `json:"date"`
}

// Service tracks logged workouts.
type Service struct {
	repo repository.ActivityRepository
	now  func() time.Time
}

func NewService(repo repository.ActivityRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Validate 返回字段级错误。
func (in LogInput) Validate() error {
	errs := validation.Errors{}
	errs.Check(in.Type.Valid(), "type", "Type must be one of Walk, Run or Cycle.")
	errs.Check(in.Duration > 0, "duration", "Duration must be greater than zero.")
	errs.Check(in.Distance >= 0, "distance", "Distance cannot be negative.")
	return errs.Err()
}

// Log 保存一次运动记录。
func (s *Service) Log(ctx context.Context, userID string, in LogInput) (health.Activity, error) {
	if err := in.Validate(); err != nil {
		return health.Activity{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}

	a := health.Activity{
		ID:       ulid.Make().String(),
		UserID:   userID,
		Type:     in.Type,
		Duration: in.Duration,
		Distance: in.Distance,
		Date:     date.UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return health.Activity{}, fmt.Errorf("log activity: %w", err)
	}
	return a, nil
}

// Recent 返回最新的 limit 条记录，limit<=0 时使用默认值。
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]health.Activity, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	items, err := s.repo.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activities: %w", err)
	}
	return items, nil
}

func (s *Service) Summary(ctx context.Context, userID string) (health.ActivitySummary, error) {
	summary, err := s.repo.Summary(ctx, userID)
	if err != nil {
		return health.ActivitySummary{}, fmt.Errorf("activity summary: %w", err)
	}
	return summary, nil
}
