package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/analysis/symptom"
	"github.com/healthwise/companion/internal/metrics"
	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/internal/model/health"
	"github.com/healthwise/companion/internal/model/speech"
	"github.com/healthwise/companion/internal/service/triage"
	"github.com/healthwise/companion/pkg/utils"
)

// DefaultResponse 模型没有给出文本时使用。
const DefaultResponse = "I'm not sure how to respond to that."

// Classifier 判断消息应该走哪个分支。
type Classifier interface {
	Classify(ctx context.Context, history []chat.Turn, message string) triage.Result
}

// Synthesizer 文字转语音。
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// CompanionInput 一次对话轮次的输入。
type CompanionInput struct {
	Message   string      `json:"message"`
	History   []chat.Turn `json:"history,omitempty"`
	SessionID string      `json:"-"`
}

// CompanionOutput 一次对话轮次的输出。
type CompanionOutput struct {
	Type         string                  `json:"type"`
	Analysis     *health.SymptomAnalysis `json:"analysis,omitempty"`
	TextResponse string                  `json:"textResponse"`
	AudioData    string                  `json:"audioData,omitempty"`
	ToolRequests []ToolRequest           `json:"toolRequests,omitempty"`
}

// CompanionConfig 对话流程的可选项。
type CompanionConfig struct {
	HistoryLimit int
	Voice        string
	Language     string
}

// CompanionFlow runs one conversational turn: triage, generation, speech.
type CompanionFlow struct {
	chain       compose.Runnable[map[string]any, *schema.Message]
	classifier  Classifier
	symptoms    *SymptomFlow
	synthesizer Synthesizer
	cfg         CompanionConfig
	logger      *zap.Logger
}

// NewCompanionFlow 创建对话流程。classifier、symptoms 与 synthesizer 均可为空。
func NewCompanionFlow(ctx context.Context, chatModel model.ToolCallingChatModel, classifier Classifier, symptoms *SymptomFlow, synthesizer Synthesizer, cfg CompanionConfig, logger *zap.Logger) (*CompanionFlow, error) {
	if chatModel == nil {
		return nil, errors.New("companion: chat model is required")
	}
	toolModel, err := chatModel.WithTools(companionTools())
	if err != nil {
		return nil, fmt.Errorf("failed to bind companion tools: %w", err)
	}

	runnable, err := compileChain(ctx, toolModel, "companion")
	if err != nil {
		return nil, err
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CompanionFlow{
		chain:       runnable,
		classifier:  classifier,
		symptoms:    symptoms,
		synthesizer: synthesizer,
		cfg:         cfg,
		logger:      logger.Named("companion_flow"),
	}, nil
}

// Run 执行一次完整的对话轮次。
func (f *CompanionFlow) Run(ctx context.Context, in CompanionInput) (*CompanionOutput, error) {
	return f.run(ctx, in, nil)
}

// RunStream 与 Run 相同，但对话分支的文本增量会通过 onDelta 实时回调。
// 当模型以 JSON 回复时不推送增量，只返回最终结果。
func (f *CompanionFlow) RunStream(ctx context.Context, in CompanionInput, onDelta func(string)) (*CompanionOutput, error) {
	return f.run(ctx, in, onDelta)
}

func (f *CompanionFlow) run(ctx context.Context, in CompanionInput, onDelta func(string)) (out *CompanionOutput, err error) {
	start := time.Now()
	defer func() { metrics.ObserveFlow("companion", start, err) }()

	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	decision := f.classify(ctx, in.History, message)
	if decision.IsSymptom() && f.symptoms != nil {
		out, err = f.symptomBranch(ctx, message, decision.Decision)
		if err != nil {
			f.logger.Warn("symptom branch failed, falling back to conversation",
				zap.String("session_id", in.SessionID), zap.Error(err))
		}
	}
	if out == nil {
		out, err = f.conversationalBranch(ctx, in.History, message, onDelta)
		if err != nil {
			return nil, err
		}
	}

	f.attachAudio(ctx, in.SessionID, out)

	f.logger.Info("companion turn completed",
		zap.String("session_id", in.SessionID),
		zap.String("type", out.Type),
		zap.String("triage_source", decision.Source),
		zap.Int("tool_requests", len(out.ToolRequests)),
		zap.Bool("audio", out.AudioData != ""),
	)
	return out, nil
}

func (f *CompanionFlow) classify(ctx context.Context, history []chat.Turn, message string) triage.Result {
	if f.classifier != nil {
		return f.classifier.Classify(ctx, history, message)
	}
	return triage.Result{Decision: symptom.Detect(message), Source: triage.SourceHeuristic}
}

// symptomBranch 返回症状分析，并附带一个每日提醒的 setReminderTool 请求。
func (f *CompanionFlow) symptomBranch(ctx context.Context, message string, decision symptom.Decision) (*CompanionOutput, error) {
	analysis, err := f.symptoms.Check(ctx, message)
	if err != nil {
		return nil, err
	}
	out := &CompanionOutput{
		Type:         chat.TypeSymptomAnalysis,
		Analysis:     analysis,
		TextResponse: Summary(analysis),
	}
	if req, ok := reminderRequest(analysis, decision); ok {
		metrics.ToolRequested(req.Name)
		out.ToolRequests = []ToolRequest{req}
	}
	return out, nil
}

// reminderRequest 优先使用分诊给出的简短建议，症状不一致时用分析结果里的建议。
func reminderRequest(analysis *health.SymptomAnalysis, decision symptom.Decision) (ToolRequest, bool) {
	args := ReminderArgs{
		Symptom: strings.ToLower(strings.TrimSpace(analysis.Symptom)),
		Advice:  strings.TrimSpace(analysis.Advice),
	}
	if args.Symptom == "" {
		args.Symptom = decision.Symptom
	}
	if decision.SuggestedAdvice != "" && strings.EqualFold(decision.Symptom, args.Symptom) {
		args.Advice = decision.SuggestedAdvice
	}
	if args.Symptom == "" || args.Advice == "" {
		return ToolRequest{}, false
	}
	input, err := json.Marshal(args)
	if err != nil {
		return ToolRequest{}, false
	}
	return ToolRequest{Name: ToolSetReminder, Input: input}, true
}

func (f *CompanionFlow) conversationalBranch(ctx context.Context, history []chat.Turn, message string, onDelta func(string)) (*CompanionOutput, error) {
	input := map[string]any{
		"system":  companionSystemPrompt,
		"history": buildHistoryMessages(history, f.cfg.HistoryLimit),
		"query":   message,
	}

	var (
		reply *schema.Message
		err   error
	)
	if onDelta != nil {
		reply, err = f.stream(ctx, input, onDelta)
	} else {
		reply, err = f.chain.Invoke(ctx, input)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: companion: %v", ErrModelFailure, err)
	}

	requests, dropped := toolRequestsFrom(reply)
	if len(dropped) > 0 {
		f.logger.Warn("model requested unknown tools", zap.Strings("tools", dropped))
	}
	for _, req := range requests {
		metrics.ToolRequested(req.Name)
	}

	return &CompanionOutput{
		Type:         chat.TypeConversational,
		TextResponse: textFrom(reply),
		ToolRequests: requests,
	}, nil
}

func (f *CompanionFlow) stream(ctx context.Context, input map[string]any, onDelta func(string)) (*schema.Message, error) {
	reader, err := f.chain.Stream(ctx, input)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var (
		chunks   []*schema.Message
		leading  strings.Builder
		decided  bool
		passThru bool
	)
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content == "" {
			continue
		}

		if !decided {
			leading.WriteString(chunk.Content)
			head := strings.TrimSpace(leading.String())
			if head == "" {
				continue
			}
			decided = true
			passThru = !strings.HasPrefix(head, "{") && !strings.HasPrefix(head, "`")
			if passThru {
				onDelta(leading.String())
			}
			continue
		}
		if passThru {
			onDelta(chunk.Content)
		}
	}

	if len(chunks) == 0 {
		return nil, errors.New("empty stream")
	}
	return schema.ConcatMessages(chunks)
}

func (f *CompanionFlow) attachAudio(ctx context.Context, sessionID string, out *CompanionOutput) {
	if f.synthesizer == nil || strings.TrimSpace(out.TextResponse) == "" {
		return
	}
	resp, err := f.synthesizer.Synthesize(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      out.TextResponse,
		Voice:     f.cfg.Voice,
		Language:  f.cfg.Language,
	})
	if err != nil {
		f.logger.Warn("speech synthesis failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if resp != nil {
		out.AudioData = resp.DataURI()
	}
}

type textPayload struct {
	TextResponse string `json:"textResponse"`
}

// textFrom 接受纯文本或 {"textResponse": "..."}，都没有时返回默认回复。
func textFrom(msg *schema.Message) string {
	if msg == nil {
		return DefaultResponse
	}
	content := strings.TrimSpace(msg.Content)
	if (strings.HasPrefix(content, "{") || strings.HasPrefix(content, "```")) && utils.LooksLikeJSON(content) {
		payload, err := utils.ExtractJSON[textPayload](content, nil)
		if err == nil {
			content = strings.TrimSpace(payload.TextResponse)
		}
	}
	if content == "" {
		return DefaultResponse
	}
	return content
}
