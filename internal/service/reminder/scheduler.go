package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/metrics"
	"github.com/healthwise/companion/internal/model/health"
)

// Publisher 接收到期提醒生成的通知。
type Publisher interface {
	Publish(n health.Notification) int
}

// Scheduler checks for due reminders at start and then on every interval.
type Scheduler struct {
	svc       *Service
	publisher Publisher
	interval  time.Duration
	logger    *zap.Logger
}

func NewScheduler(svc *Service, publisher Publisher, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{svc: svc, publisher: publisher, interval: interval, logger: logger.Named("reminder_scheduler")}
}

// Run 阻塞运行直到 ctx 结束。
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reminder scheduler started", zap.Duration("interval", s.interval))
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// RunOnce publishes every due reminder and returns how many were published.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	due, err := s.svc.Due(ctx, s.svc.now())
	for _, r := range due {
		delivered := s.publisher.Publish(s.svc.Notification(r))
		metrics.ReminderPublished()
		s.logger.Info("reminder_due",
			zap.String("user_id", r.UserID),
			zap.String("reminder_id", r.ID),
			zap.String("symptom", r.Symptom),
			zap.Int("delivered", delivered),
		)
	}
	return len(due), err
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("reminder check failed", zap.Error(err))
	}
}
