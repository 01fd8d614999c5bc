package companion

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/handler/httperr"
	"github.com/healthwise/companion/internal/middleware"
	"github.com/healthwise/companion/internal/service/ai"
	"github.com/healthwise/companion/pkg/utils"
)

// StreamEvent 是 SSE data 字段的内容
type StreamEvent struct {
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleStream 以 SSE 推送一次对话：start、delta*、tool*、audio?、message、end；失败时 error。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if h.svc == nil {
		utils.RespondError(w, r, http.StatusServiceUnavailable, ai.UnavailableMessage)
		return
	}

	req := turnRequest{
		SessionID: r.URL.Query().Get("sessionId"),
		Message:   r.URL.Query().Get("message"),
	}
	if r.Method == http.MethodPost {
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if strings.TrimSpace(req.Message) == "" {
		utils.RespondValidation(w, r, map[string]string{"message": "Message is required."})
		return
	}

	// 先确定会话，未知会话在推流前以普通错误返回
	ctx := r.Context()
	userID := middleware.UserID(ctx)
	session, err := h.svc.ResolveSession(ctx, userID, req.SessionID)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	send := func(event string, payload any) {
		if err := utils.SendSSEEvent(w, flusher, event, payload); err != nil {
			h.logger.Debug("sse write failed", zap.String("event", event), zap.Error(err))
		}
	}

	send("start", StreamEvent{SessionID: session.ID})

	result, err := h.svc.TurnStream(ctx, userID, session.ID, req.Message, func(delta string) {
		send("delta", StreamEvent{SessionID: session.ID, Content: delta})
	})
	if err != nil {
		status, message := httperr.Status(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("stream turn failed", zap.Error(err))
		}
		send("error", StreamEvent{SessionID: session.ID, Error: message})
		return
	}

	for _, tool := range result.ToolRequests {
		send("tool", tool)
	}
	if result.AudioData != "" {
		send("audio", StreamEvent{SessionID: result.SessionID, Content: result.AudioData})
	}

	// message 事件不重复携带音频
	final := *result
	final.AudioData = ""
	send("message", final)
	send("end", StreamEvent{SessionID: result.SessionID, Finished: true})
}
