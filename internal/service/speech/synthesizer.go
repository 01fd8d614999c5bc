package speech

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/config"
	"github.com/healthwise/companion/internal/metrics"
	"github.com/healthwise/companion/internal/model/speech"
)

var (
	// ErrEmptyText 待合成文本为空。
	ErrEmptyText = errors.New("speech: text is empty")
	// ErrDisabled 未配置语音合成。
	ErrDisabled = errors.New("speech: synthesis is not configured")
)

// Synthesizer 把文本合成为音频。
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// NewSynthesizer 按配置选择语音合成实现；未启用时返回 nil。
func NewSynthesizer(ctx context.Context, cfg config.SpeechConfig, logger *zap.Logger) (Synthesizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled() {
		logger.Info("speech synthesis disabled", zap.String("provider", cfg.Provider))
		return nil, nil
	}

	var (
		synth Synthesizer
		err   error
	)
	switch cfg.Provider {
	case config.SpeechVolcengine:
		synth = NewVolcengineSynthesizer(cfg, logger)
	case config.SpeechGemini:
		synth, err = NewGeminiSynthesizer(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return instrumented{next: synth}, nil
}

// instrumented 统计合成失败次数。
type instrumented struct {
	next Synthesizer
}

func (i instrumented) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	resp, err := i.next.Synthesize(ctx, req)
	if err != nil {
		metrics.SpeechFailed()
	}
	return resp, err
}
