package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/metrics"
	"github.com/healthwise/companion/internal/model/health"
	"github.com/healthwise/companion/pkg/utils"
)

const (
	// MinSymptomDescription 症状描述的最少字符数。
	MinSymptomDescription = 3
	// SymptomTooShortMessage 描述过短时给用户的提示。
	SymptomTooShortMessage = "Please describe your symptom in more detail."

	maxAdviceWords = 30
	maxCauses      = 5
)

// SymptomFlow turns a free-text symptom description into a structured analysis.
type SymptomFlow struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *zap.Logger
}

// NewSymptomFlow 创建症状分析流程。
func NewSymptomFlow(ctx context.Context, chatModel model.BaseChatModel, logger *zap.Logger) (*SymptomFlow, error) {
	runnable, err := compileChain(ctx, chatModel, "symptom")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SymptomFlow{chain: runnable, logger: logger.Named("symptom_flow")}, nil
}

// Check 分析症状描述并返回一般性建议。
func (f *SymptomFlow) Check(ctx context.Context, description string) (analysis *health.SymptomAnalysis, err error) {
	start := time.Now()
	defer func() { metrics.ObserveFlow("symptom_check", start, err) }()

	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) < MinSymptomDescription {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, SymptomTooShortMessage)
	}

	msg, err := f.chain.Invoke(ctx, map[string]any{
		"system": symptomSystemPrompt,
		"query":  description,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: symptom check: %v", ErrModelFailure, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: symptom check returned no message", ErrModelFailure)
	}

	result, err := utils.ExtractJSON(msg.Content, func(a health.SymptomAnalysis) error { return a.Validate() })
	if err != nil {
		return nil, fmt.Errorf("%w: symptom check: %v", ErrModelFailure, err)
	}

	result.Symptom = strings.TrimSpace(result.Symptom)
	result.Advice = truncateWords(strings.TrimSpace(result.Advice), maxAdviceWords)
	result.PossibleCauses = cleanCauses(result.PossibleCauses)

	f.logger.Debug("symptom analysed", zap.String("symptom", result.Symptom), zap.Int("causes", len(result.PossibleCauses)))
	return &result, nil
}

// Summary 生成症状分析的一句话文本回复。
func Summary(a *health.SymptomAnalysis) string {
	if a == nil {
		return ""
	}
	text := fmt.Sprintf("Here's some general information about your %s.", strings.ToLower(a.Symptom))
	if a.Advice != "" {
		text += " " + a.Advice
	}
	return text + " If it persists or gets worse, please consult a healthcare professional."
}

func cleanCauses(causes []string) []string {
	seen := make(map[string]struct{}, len(causes))
	cleaned := make([]string, 0, len(causes))
	for _, cause := range causes {
		cause = strings.TrimSpace(cause)
		key := strings.ToLower(cause)
		if cause == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, cause)
		if len(cleaned) == maxCauses {
			break
		}
	}
	return cleaned
}

func truncateWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}
	return strings.TrimRight(strings.Join(words[:limit], " "), ",;:") + "..."
}
