package companion

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/internal/service/ai"
	chatsvc "github.com/healthwise/companion/internal/service/chat"
	"github.com/healthwise/companion/internal/service/reminder"
)

// Flow 一次对话轮次的模型流程。
type Flow interface {
	Run(ctx context.Context, in ai.CompanionInput) (*ai.CompanionOutput, error)
	RunStream(ctx context.Context, in ai.CompanionInput, onDelta func(string)) (*ai.CompanionOutput, error)
}

// ReminderOfferPrompt 随提醒建议一起展示给用户的确认语。
const ReminderOfferPrompt = "Would you like me to set a daily reminder for this?"

// ReminderOffer 模型建议的每日提醒。轮次本身不保存它，
// 用户确认后客户端把 symptom 和 advice 提交到 POST /api/reminders。
type ReminderOffer struct {
	Symptom string `json:"symptom"`
	Advice  string `json:"advice"`
	Prompt  string `json:"prompt"`
}

// Result 是返回给客户端的对话结果。
type Result struct {
	ai.CompanionOutput
	SessionID      string         `json:"sessionId"`
	MessageID      string         `json:"messageId,omitempty"`
	HistoryCleared bool           `json:"historyCleared"`
	ReminderOffer  *ReminderOffer `json:"reminderOffer,omitempty"`
}

// Service runs a turn and applies the tool requests to server state.
// Reminder requests only become offers; clearing history is applied at once.
type Service struct {
	chats     *chatsvc.Service
	reminders *reminder.Service
	flow      Flow
	logger    *zap.Logger
}

func NewService(chats *chatsvc.Service, reminders *reminder.Service, flow Flow, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{chats: chats, reminders: reminders, flow: flow, logger: logger.Named("companion")}
}

// ResolveSession 返回本轮对话使用的会话，流式接口在推送前先确定会话 ID。
func (s *Service) ResolveSession(ctx context.Context, userID, sessionID string) (chat.Session, error) {
	return s.chats.ResolveSession(ctx, userID, sessionID)
}

// Turn 处理一条用户消息。sessionID 为空时复用或新建会话。
func (s *Service) Turn(ctx context.Context, userID, sessionID, message string) (*Result, error) {
	return s.turn(ctx, userID, sessionID, message, nil)
}

// TurnStream 与 Turn 相同，文本增量通过 onDelta 回调。
func (s *Service) TurnStream(ctx context.Context, userID, sessionID, message string, onDelta func(string)) (*Result, error) {
	if onDelta == nil {
		onDelta = func(string) {}
	}
	return s.turn(ctx, userID, sessionID, message, onDelta)
}

func (s *Service) turn(ctx context.Context, userID, sessionID, message string, onDelta func(string)) (*Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ai.ErrInvalidInput)
	}

	session, err := s.chats.ResolveSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	transcript, err := s.chats.LoadTranscript(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	// 先保存用户消息，模型失败时也保留在历史中。
	if _, err := s.chats.SaveMessage(ctx, chat.Message{
		SessionID: session.ID,
		Sender:    chat.SenderUser,
		Type:      chat.TypeConversational,
		Text:      message,
	}); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	input := ai.CompanionInput{Message: message, History: chat.Turns(transcript), SessionID: session.ID}
	var out *ai.CompanionOutput
	if onDelta != nil {
		out, err = s.flow.RunStream(ctx, input, onDelta)
	} else {
		out, err = s.flow.Run(ctx, input)
	}
	if err != nil {
		s.logger.Error("companion flow failed", zap.String("session_id", session.ID), zap.Error(err))
		return nil, err
	}

	result := &Result{CompanionOutput: *out, SessionID: session.ID}
	s.applyTools(ctx, userID, result)

	saved, err := s.chats.SaveMessage(ctx, chat.Message{
		SessionID: session.ID,
		Sender:    chat.SenderAssistant,
		Type:      out.Type,
		Text:      out.TextResponse,
		Analysis:  out.Analysis,
	})
	if err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}
	result.MessageID = saved.ID
	return result, nil
}

// applyTools 处理模型请求的工具。单个工具失败只记录日志，不影响回复。
func (s *Service) applyTools(ctx context.Context, userID string, result *Result) {
	for _, req := range result.ToolRequests {
		switch req.Name {
		case ai.ToolSetReminder:
			args, err := req.ReminderArgs()
			if err != nil {
				s.logger.Warn("ignoring malformed reminder request", zap.String("session_id", result.SessionID), zap.Error(err))
				continue
			}
			if s.hasReminder(ctx, userID, args.Symptom) {
				continue
			}
			result.ReminderOffer = &ReminderOffer{
				Symptom: args.Symptom,
				Advice:  strings.TrimRight(args.Advice, "."),
				Prompt:  ReminderOfferPrompt,
			}
		case ai.ToolClearChatHistory:
			deleted, err := s.chats.ClearHistory(ctx, result.SessionID)
			if err != nil {
				s.logger.Error("clear history failed", zap.String("session_id", result.SessionID), zap.Error(err))
				continue
			}
			result.HistoryCleared = true
			s.logger.Info("chat history cleared", zap.String("session_id", result.SessionID), zap.Int64("deleted", deleted))
		}
	}
}

// hasReminder 用户已有同一症状的提醒时不再重复建议。
func (s *Service) hasReminder(ctx context.Context, userID, symptom string) bool {
	if s.reminders == nil {
		return false
	}
	existing, err := s.reminders.List(ctx, userID)
	if err != nil {
		s.logger.Warn("list reminders failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	for _, r := range existing {
		if strings.EqualFold(r.Symptom, symptom) {
			return true
		}
	}
	return false
}
