package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/handler/httperr"
	"github.com/healthwise/companion/internal/middleware"
	chatService "github.com/healthwise/companion/internal/service/chat"
	"github.com/healthwise/companion/pkg/utils"
)

// Handler 聊天历史的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, logger: logger}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(cr chi.Router) {
		cr.Post("/sessions", h.handleCreateSession)
		cr.Get("/sessions/current", h.handleCurrentSession)
		cr.Get("/sessions/{sessionID}/messages", h.handleListMessages)
		cr.Delete("/sessions/{sessionID}/messages", h.handleClearMessages)
	})
}

// handleCreateSession 新建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusCreated, session)
}

// handleCurrentSession 返回最近的会话，没有时创建
func (h *Handler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.ResolveSession(r.Context(), middleware.UserID(r.Context()), "")
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, session)
}

// handleListMessages 返回会话的完整历史
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), session.ID)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, map[string]any{
		"sessionId": session.ID,
		"messages":  messages,
	})
}

// handleClearMessages 清空会话历史
func (h *Handler) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}

	deleted, err := h.chatSvc.ClearHistory(r.Context(), session.ID)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, map[string]any{
		"sessionId": session.ID,
		"deleted":   deleted,
	})
}
