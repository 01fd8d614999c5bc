package speech

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/healthwise/companion/internal/config"
	"github.com/healthwise/companion/internal/model/speech"
)

const (
	defaultGeminiVoice = "Algenib"
	defaultPCMRate     = 24000
)

type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiSynthesizer 使用 Gemini TTS 模型生成 PCM，再封装为 WAV。
type GeminiSynthesizer struct {
	models geminiModels
	cfg    config.SpeechConfig
	logger *zap.Logger
}

func NewGeminiSynthesizer(ctx context.Context, cfg config.SpeechConfig, logger *zap.Logger) (*GeminiSynthesizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini tts client: %w", err)
	}
	return newGeminiSynthesizer(client.Models, cfg, logger), nil
}

func newGeminiSynthesizer(models geminiModels, cfg config.SpeechConfig, logger *zap.Logger) *GeminiSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-2.5-flash-preview-tts"
	}
	return &GeminiSynthesizer{models: models, cfg: cfg, logger: logger.Named("tts.gemini")}
}

func (g *GeminiSynthesizer) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = g.cfg.Voice
	}
	if voice == "" {
		voice = defaultGeminiVoice
	}

	genCfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.cfg.GeminiModel, genai.Text(req.Text), genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini tts: %w", err)
	}

	pcm, mime := inlineAudio(resp)
	if len(pcm) == 0 {
		return nil, fmt.Errorf("gemini tts returned no audio")
	}
	rate := sampleRate(mime)
	wav := encodeWAV(pcm, rate, 1)

	g.logger.Debug("synthesized", zap.Int("pcm_bytes", len(pcm)), zap.Int("rate", rate))

	return &speech.TTSResponse{
		SessionID: req.SessionID,
		AudioData: wav,
		Duration:  pcmDurationMillis(len(pcm), rate, 1),
		Format:    "wav",
		RequestID: uuid.NewString(),
		CreatedAt: time.Now(),
	}, nil
}

func inlineAudio(resp *genai.GenerateContentResponse) ([]byte, string) {
	if resp == nil {
		return nil, ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, part.InlineData.MIMEType
			}
		}
	}
	return nil, ""
}

// sampleRate 从 "audio/L16;codec=pcm;rate=24000" 中解析采样率。
func sampleRate(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(key, "rate") {
			if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return defaultPCMRate
}
