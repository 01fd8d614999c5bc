package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/config"
	"github.com/healthwise/companion/internal/handler/activity"
	"github.com/healthwise/companion/internal/handler/chat"
	"github.com/healthwise/companion/internal/handler/companion"
	healthHandler "github.com/healthwise/companion/internal/handler/health"
	"github.com/healthwise/companion/internal/handler/reminder"
	"github.com/healthwise/companion/internal/handler/speech"
	"github.com/healthwise/companion/internal/metrics"
	middlewarePkg "github.com/healthwise/companion/internal/middleware"
	activityService "github.com/healthwise/companion/internal/service/activity"
	chatService "github.com/healthwise/companion/internal/service/chat"
	"github.com/healthwise/companion/internal/service/notify"
	reminderService "github.com/healthwise/companion/internal/service/reminder"
	speechService "github.com/healthwise/companion/internal/service/speech"
	"github.com/healthwise/companion/pkg/utils"
)

// Deps 路由依赖的服务。可选项为 nil 时对应接口返回 503 或不注册。
type Deps struct {
	Logger      *zap.Logger
	CORSOrigins []string
	Verifier    *middlewarePkg.Verifier
	Redis       redis.UniversalClient
	RateLimit   config.RateLimitConfig

	Companion  companion.TurnService
	Chats      *chatService.Service
	Reminders  *reminderService.Service
	Activities *activityService.Service
	Hub        *notify.Hub
	Speech     speechService.Synthesizer
	Health     healthHandler.Deps
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.CORSOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	healthDeps := deps.Health
	healthDeps.Reminders = deps.Reminders
	healthDeps.Activities = deps.Activities

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.Identity(deps.Verifier))
		api.Use(middlewarePkg.RateLimit(deps.Redis, deps.RateLimit, "ratelimit:api", logger))

		companion.New(deps.Companion, logger).RegisterRoutes(api)
		chat.New(deps.Chats, logger).RegisterRoutes(api)
		reminder.New(deps.Reminders, deps.Hub, logger).RegisterRoutes(api)
		activity.New(deps.Activities, logger).RegisterRoutes(api)
		speech.New(deps.Speech, logger).RegisterRoutes(api)
		healthHandler.New(healthDeps, logger).RegisterRoutes(api)
	})

	return r
}
