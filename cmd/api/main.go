package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/config"
	"github.com/healthwise/companion/internal/handler"
	companionHandler "github.com/healthwise/companion/internal/handler/companion"
	healthHandler "github.com/healthwise/companion/internal/handler/health"
	"github.com/healthwise/companion/internal/logger"
	"github.com/healthwise/companion/internal/middleware"
	"github.com/healthwise/companion/internal/model/tip"
	"github.com/healthwise/companion/internal/repository"
	"github.com/healthwise/companion/internal/service/activity"
	"github.com/healthwise/companion/internal/service/ai"
	"github.com/healthwise/companion/internal/service/chat"
	"github.com/healthwise/companion/internal/service/companion"
	"github.com/healthwise/companion/internal/service/notify"
	"github.com/healthwise/companion/internal/service/reminder"
	"github.com/healthwise/companion/internal/service/speech"
	"github.com/healthwise/companion/internal/service/triage"
	"github.com/healthwise/companion/internal/service/weather"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	stores, err := repository.Open(ctx, cfg.Storage)
	if err != nil {
		zl.Fatal("failed to open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer stores.Close()
	zl.Info("storage ready", zap.String("driver", stores.Driver))

	var rdb redis.UniversalClient
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Warn("redis unreachable, rate limit and weather cache degrade", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
	}

	chatSvc := chat.NewService(stores.Chat)
	reminderSvc := reminder.NewService(stores.Reminders, cfg.Reminder.Period, zl)
	activitySvc := activity.NewService(stores.Activities)

	synth, err := speech.NewSynthesizer(ctx, cfg.Speech, zl)
	if err != nil {
		zl.Warn("speech disabled", zap.String("provider", cfg.Speech.Provider), zap.Error(err))
		synth = nil
	} else if synth == nil {
		zl.Info("语音服务未配置，跳过语音合成")
	}

	var weatherCache weather.Cache
	if rdb != nil {
		weatherCache = weather.NewRedisCache(rdb)
	}

	// 模型相关依赖，未配置时保持 nil 接口
	var (
		turns    companionHandler.TurnService
		symptoms healthHandler.SymptomChecker
		cities   healthHandler.CityResolver
		advisor  weather.Advisor
	)

	chatModel := newChatModel(ctx, cfg.AI, zl)
	classifier, err := triage.NewService(ctx, chatModel, triage.Config{
		Enabled:      cfg.AI.TriageEnabled,
		HistoryLimit: cfg.AI.HistoryLimit,
	}, zl)
	if err != nil {
		zl.Fatal("failed to build triage", zap.Error(err))
	}

	if chatModel != nil {
		symptomFlow, err := ai.NewSymptomFlow(ctx, chatModel, zl)
		if err != nil {
			zl.Fatal("failed to build symptom flow", zap.Error(err))
		}
		symptoms = symptomFlow

		locationFlow, err := ai.NewLocationFlow(ctx, chatModel)
		if err != nil {
			zl.Fatal("failed to build location flow", zap.Error(err))
		}
		cities = locationFlow

		adviceFlow, err := ai.NewWeatherAdviceFlow(ctx, chatModel, zl)
		if err != nil {
			zl.Fatal("failed to build weather advice flow", zap.Error(err))
		}
		advisor = adviceFlow

		var tts ai.Synthesizer
		if synth != nil {
			tts = synth
		}
		companionFlow, err := ai.NewCompanionFlow(ctx, chatModel, classifier, symptomFlow, tts, ai.CompanionConfig{
			HistoryLimit: cfg.AI.HistoryLimit,
			Voice:        cfg.Speech.Voice,
			Language:     cfg.Speech.Language,
		}, zl)
		if err != nil {
			zl.Fatal("failed to build companion flow", zap.Error(err))
		}
		turns = companion.NewService(chatSvc, reminderSvc, companionFlow, zl)
		zl.Info("AI flows initialized", zap.String("provider", cfg.AI.Provider), zap.String("model", cfg.AI.Model))
	}

	hub := notify.NewHub(zl)
	hub.SetInboundHandler(reminderSvc.InboundHandler())
	go reminder.NewScheduler(reminderSvc, hub, cfg.Reminder.CheckInterval, zl).Run(ctx)

	router := handler.NewRouter(handler.Deps{
		Logger:      zl,
		CORSOrigins: cfg.Server.CORSOrigins,
		Verifier:    middleware.NewVerifier(cfg.Auth),
		Redis:       rdb,
		RateLimit:   cfg.RateLimit,
		Companion:   turns,
		Chats:       chatSvc,
		Reminders:   reminderSvc,
		Activities:  activitySvc,
		Hub:         hub,
		Speech:      synth,
		Health: healthHandler.Deps{
			Symptoms: symptoms,
			Cities:   cities,
			Weather:  weather.NewService(weather.NewMockProvider(uint64(time.Now().UnixNano())), advisor, weatherCache, cfg.Weather.CacheTTL, zl),
			Tips:     tip.NewMemoryStore(),
		},
	})

	startServer(ctx, cfg.Server, router, zl)
}

// newChatModel 创建对话模型；未配置或失败时返回 nil，服务以无模型模式运行。
func newChatModel(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) model.ToolCallingChatModel {
	if !cfg.Enabled() {
		logger.Warn("模型凭证未配置，跳过 AI 功能初始化", zap.String("provider", cfg.Provider))
		return nil
	}
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		logger.Warn("failed to initialize chat model, continuing without AI", zap.Error(err))
		return nil
	}
	return chatModel
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("HealthWise companion listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
