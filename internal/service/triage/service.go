package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/analysis/symptom"
	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/pkg/utils"
)

// Config 控制分诊服务的行为。
type Config struct {
	Enabled      bool
	HistoryLimit int
}

// Result 表示分诊结果。Source 为 model 或 heuristic。
type Result struct {
	Decision   symptom.Decision
	Confidence float32
	Source     string
}

// IsSymptom reports whether the message should go to the symptom branch.
func (r Result) IsSymptom() bool {
	return r.Decision.Kind == symptom.KindSymptomAnalysis
}

const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
)

// minModelConfidence 模型给出的置信度低于该值时采用启发式结果。
const minModelConfidence = 0.4

// Service 使用大模型判断消息类型，失败时回退到关键词启发式。
type Service struct {
	enabled      bool
	classifier   compose.Runnable[map[string]any, *schema.Message]
	fallback     func(text string) symptom.Decision
	historyLimit int
	logger       *zap.Logger
}

// NewService 创建分诊服务。chatModel 为空或未启用时只使用启发式。
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 4
	}

	svc := &Service{
		enabled:      cfg.Enabled && chatModel != nil,
		fallback:     symptom.Detect,
		historyLimit: historyLimit,
		logger:       logger.Named("triage"),
	}
	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage(triageUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile triage chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回是否启用了模型分诊。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Classify decides between the symptom branch and the conversational branch.
// Clear-history requests never reach the model.
func (s *Service) Classify(ctx context.Context, history []chat.Turn, message string) Result {
	heuristic := s.fallbackResult(message)
	if heuristic.Decision.ClearHistory || !s.Enabled() {
		return heuristic
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{
		"system":  triageSystemPrompt,
		"history": formatHistory(history, s.historyLimit),
		"message": strings.TrimSpace(message),
	})
	if err != nil {
		s.logger.Warn("classifier invoke failed, use fallback", zap.Error(err))
		return heuristic
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return heuristic
	}

	payload, err := utils.ExtractJSON(msg.Content, validatePayload)
	if err != nil {
		s.logger.Warn("classifier output parse failed, use fallback", zap.Error(err))
		return heuristic
	}
	if payload.Confidence > 0 && payload.Confidence < minModelConfidence {
		return heuristic
	}

	decision := symptom.Decision{Kind: symptom.Kind(strings.ToLower(strings.TrimSpace(payload.Type)))}
	if decision.Kind == symptom.KindSymptomAnalysis {
		decision.Symptom = strings.ToLower(strings.TrimSpace(payload.Symptom))
		if decision.Symptom == "" {
			decision.Symptom = heuristic.Decision.Symptom
		}
		decision.SuggestedAdvice, _ = symptom.AdviceFor(decision.Symptom)
		decision.Score = heuristic.Decision.Score
	}

	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}
	return Result{Decision: decision, Confidence: confidence, Source: SourceModel}
}

func (s *Service) fallbackResult(message string) Result {
	fallback := s.fallback
	if fallback == nil {
		fallback = symptom.Detect
	}
	decision := fallback(message)
	confidence := float32(0.3)
	if decision.Score > 0 || decision.ClearHistory {
		confidence = 0.55
	}
	return Result{Decision: decision, Confidence: confidence, Source: SourceHeuristic}
}

type classifierPayload struct {
	Type       string  `json:"type"`
	Symptom    string  `json:"symptom"`
	Confidence float32 `json:"confidence"`
}

func validatePayload(p classifierPayload) error {
	switch symptom.Kind(strings.ToLower(strings.TrimSpace(p.Type))) {
	case symptom.KindConversational, symptom.KindSymptomAnalysis:
		return nil
	default:
		return errors.New("type must be conversational or symptom_analysis")
	}
}

func formatHistory(turns []chat.Turn, limit int) string {
	if len(turns) == 0 {
		return "(no previous messages)"
	}
	start := len(turns) - limit
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, len(turns)-start)
	for _, turn := range turns[start:] {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		role := "User"
		if turn.Sender == chat.SenderAssistant {
			role = "Assistant"
		}
		lines = append(lines, role+": "+text)
	}
	if len(lines) == 0 {
		return "(no previous messages)"
	}
	return strings.Join(lines, "\n")
}

const triageSystemPrompt = `You route messages for a health companion app.
Decide whether the user's latest message describes a symptom they are experiencing and wants analysed ("symptom_analysis"), or is general conversation, a question, a thank-you, or a request such as setting a reminder or clearing the chat ("conversational").
Respond with only a JSON object: {"type": "symptom_analysis" | "conversational", "symptom": "<short symptom name or empty>", "confidence": <number between 0 and 1>}. No other text.`

const triageUserPrompt = "Recent conversation:\n{history}\n\nLatest message:\n{message}"
