package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/config"
	"github.com/healthwise/companion/internal/logger"
	"github.com/healthwise/companion/internal/repository"
	"github.com/healthwise/companion/internal/service/ai"
	"github.com/healthwise/companion/internal/service/chat"
	"github.com/healthwise/companion/internal/service/companion"
	"github.com/healthwise/companion/internal/service/reminder"
	"github.com/healthwise/companion/internal/service/speech"
	"github.com/healthwise/companion/internal/service/triage"
)

var errNoModel = errors.New("AI model is not configured, set AI_PROVIDER and its credentials")

// app 按需构建命令使用的服务。
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	stores *repository.Stores
	model  model.ToolCallingChatModel
}

func (a *app) init(ctx context.Context) error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("配置加载失败: %w", err)
	}
	zl, err := logger.New(config.LogConfig{Level: "warn", Format: "text"})
	if err != nil {
		return err
	}
	stores, err := repository.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.stores = cfg, zl, stores
	return nil
}

func (a *app) close() {
	if a.stores != nil {
		_ = a.stores.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) chatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	if err := a.init(ctx); err != nil {
		return nil, err
	}
	if a.model != nil {
		return a.model, nil
	}
	if !a.cfg.AI.Enabled() {
		return nil, errNoModel
	}
	m, err := a.cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	a.model = m
	return m, nil
}

func (a *app) synthesizer(ctx context.Context) (speech.Synthesizer, error) {
	if err := a.init(ctx); err != nil {
		return nil, err
	}
	synth, err := speech.NewSynthesizer(ctx, a.cfg.Speech, a.logger)
	if err != nil {
		return nil, err
	}
	if synth == nil {
		return nil, speech.ErrDisabled
	}
	return synth, nil
}

// companion 构建完整的对话服务。withSpeech 为 false 时跳过语音合成。
func (a *app) companion(ctx context.Context, withSpeech bool) (*companion.Service, error) {
	m, err := a.chatModel(ctx)
	if err != nil {
		return nil, err
	}

	classifier, err := triage.NewService(ctx, m, triage.Config{
		Enabled:      a.cfg.AI.TriageEnabled,
		HistoryLimit: a.cfg.AI.HistoryLimit,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	symptoms, err := ai.NewSymptomFlow(ctx, m, a.logger)
	if err != nil {
		return nil, err
	}

	var tts ai.Synthesizer
	if withSpeech {
		if synth, err := a.synthesizer(ctx); err == nil {
			tts = synth
		} else {
			a.logger.Warn("speech unavailable", zap.Error(err))
		}
	}

	flow, err := ai.NewCompanionFlow(ctx, m, classifier, symptoms, tts, ai.CompanionConfig{
		HistoryLimit: a.cfg.AI.HistoryLimit,
		Voice:        a.cfg.Speech.Voice,
		Language:     a.cfg.Speech.Language,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	chats := chat.NewService(a.stores.Chat)
	return companion.NewService(chats, a.reminders(), flow, a.logger), nil
}

func (a *app) reminders() *reminder.Service {
	return reminder.NewService(a.stores.Reminders, a.cfg.Reminder.Period, a.logger)
}
