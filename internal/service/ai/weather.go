package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/metrics"
	"github.com/healthwise/companion/internal/model/health"
)


// WeatherAdviceFlow writes one sentence of health advice for a reading.
type WeatherAdviceFlow struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *zap.Logger
}

func NewWeatherAdviceFlow(ctx context.Context, chatModel model.BaseChatModel, logger *zap.Logger) (*WeatherAdviceFlow, error) {
	runnable, err := compileChain(ctx, chatModel, "weather")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherAdviceFlow{chain: runnable, logger: logger.Named("weather_flow")}, nil
}

// Advice 返回一句天气健康建议。失败时由调用方决定兜底文本。
func (f *WeatherAdviceFlow) Advice(ctx context.Context, reading health.WeatherReading) (string, error) {
	start := time.Now()
	advice, err := f.advice(ctx, reading)
	metrics.ObserveFlow("weather_advice", start, err)
	if err != nil {
		f.logger.Warn("weather advice failed", zap.String("location", reading.Location), zap.Error(err))
		return "", err
	}
	return advice, nil
}

func (f *WeatherAdviceFlow) advice(ctx context.Context, reading health.WeatherReading) (string, error) {
	msg, err := f.chain.Invoke(ctx, map[string]any{
		"system": weatherSystemPrompt,
		"query":  fmt.Sprintf(weatherUserPrompt, reading.Condition, reading.Temperature, reading.WindSpeed, reading.Humidity),
	})
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", ErrModelFailure
	}
	advice := strings.Trim(strings.TrimSpace(msg.Content), "\"")
	if advice == "" {
		return "", fmt.Errorf("%w: empty advice", ErrModelFailure)
	}
	return advice, nil
}
