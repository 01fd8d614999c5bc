package companion

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/handler/httperr"
	"github.com/healthwise/companion/internal/middleware"
	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/internal/service/ai"
	companionservice "github.com/healthwise/companion/internal/service/companion"
	"github.com/healthwise/companion/pkg/utils"
)

// TurnService 抽象对话服务，便于测试替换。
type TurnService interface {
	ResolveSession(ctx context.Context, userID, sessionID string) (chat.Session, error)
	Turn(ctx context.Context, userID, sessionID, message string) (*companionservice.Result, error)
	TurnStream(ctx context.Context, userID, sessionID, message string, onDelta func(string)) (*companionservice.Result, error)
}

// Handler 对话轮次的 HTTP 处理器
type Handler struct {
	svc    TurnService
	logger *zap.Logger
}

// New 创建对话处理器；svc 为 nil 时接口返回 503。
func New(svc TurnService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("companion_handler")}
}

// RegisterRoutes 注册对话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/companion", func(cr chi.Router) {
		cr.Post("/turn", h.handleTurn)
		// EventSource 只能发 GET，POST 供普通 fetch 流式读取
		cr.Get("/stream", h.handleStream)
		cr.Post("/stream", h.handleStream)
	})
}

type turnRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		utils.RespondError(w, r, http.StatusServiceUnavailable, ai.UnavailableMessage)
		return
	}

	var req turnRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		utils.RespondValidation(w, r, map[string]string{"message": "Message is required."})
		return
	}

	result, err := h.svc.Turn(r.Context(), middleware.UserID(r.Context()), req.SessionID, req.Message)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, result)
}
