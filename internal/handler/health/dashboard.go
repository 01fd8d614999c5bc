package health

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/healthwise/companion/internal/handler/httperr"
	"github.com/healthwise/companion/internal/middleware"
	healthmodel "github.com/healthwise/companion/internal/model/health"
	"github.com/healthwise/companion/internal/model/tip"
	"github.com/healthwise/companion/internal/service/activity"
	"github.com/healthwise/companion/pkg/utils"
)

// Dashboard 首页聚合数据
type Dashboard struct {
	Weather    *healthmodel.WeatherReading `json:"weather,omitempty"`
	Reminders  []healthmodel.Reminder      `json:"reminders"`
	Activities []healthmodel.Activity      `json:"activities"`
	Summary    healthmodel.ActivitySummary `json:"summary"`
	Tip        *tip.Tip                    `json:"tip,omitempty"`
}

// handleDashboard 并发获取各部分；天气失败不影响整体。
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	location := strings.TrimSpace(r.URL.Query().Get("location"))

	var dash Dashboard
	g, ctx := errgroup.WithContext(r.Context())

	if h.weather != nil && location != "" {
		g.Go(func() error {
			reading, err := h.weather.Get(ctx, location)
			if err != nil {
				h.logger.Warn("dashboard weather failed", zap.String("location", location), zap.Error(err))
				return nil
			}
			dash.Weather = &reading
			return nil
		})
	}
	if h.reminders != nil {
		g.Go(func() error {
			list, err := h.reminders.List(ctx, userID)
			dash.Reminders = list
			return err
		})
	}
	if h.activities != nil {
		g.Go(func() error {
			recent, err := h.activities.Recent(ctx, userID, activity.DefaultRecentLimit)
			dash.Activities = recent
			return err
		})
		g.Go(func() error {
			summary, err := h.activities.Summary(ctx, userID)
			dash.Summary = summary
			return err
		})
	}
	if h.tips != nil {
		g.Go(func() error {
			t, err := h.tips.Today(ctx, h.now())
			if err != nil {
				return nil
			}
			dash.Tip = &t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	if dash.Reminders == nil {
		dash.Reminders = []healthmodel.Reminder{}
	}
	if dash.Activities == nil {
		dash.Activities = []healthmodel.Activity{}
	}
	utils.RespondJSON(w, r, http.StatusOK, dash)
}
