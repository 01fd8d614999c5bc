package speech

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/handler/httperr"
	speechmodel "github.com/healthwise/companion/internal/model/speech"
	speechservice "github.com/healthwise/companion/internal/service/speech"
	"github.com/healthwise/companion/pkg/utils"
)

// maxTextRunes 单次合成允许的最大字符数
const maxTextRunes = 2000

// Handler 语音合成的HTTP处理器
type Handler struct {
	synth  speechservice.Synthesizer
	logger *zap.Logger
}

// New 创建语音处理器；synth 为 nil 时接口返回 503。
func New(synth speechservice.Synthesizer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{synth: synth, logger: logger.Named("speech_handler")}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/speech/synthesize", h.handleSynthesize)
}

type synthesizeResponse struct {
	SessionID string `json:"sessionId,omitempty"`
	AudioData string `json:"audioData"`
	Format    string `json:"format"`
	Duration  int64  `json:"duration"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if h.synth == nil {
		httperr.Respond(w, r, h.logger, speechservice.ErrDisabled)
		return
	}

	var req speechmodel.TTSRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		utils.RespondValidation(w, r, map[string]string{"text": "Text is required."})
		return
	}
	if len([]rune(req.Text)) > maxTextRunes {
		utils.RespondValidation(w, r, map[string]string{"text": "Text is too long."})
		return
	}

	resp, err := h.synth.Synthesize(r.Context(), &req)
	if err != nil {
		h.logger.Warn("synthesis failed", zap.String("session_id", req.SessionID), zap.Error(err))
		httperr.Respond(w, r, h.logger, err)
		return
	}

	utils.RespondJSON(w, r, http.StatusOK, synthesizeResponse{
		SessionID: req.SessionID,
		AudioData: resp.DataURI(),
		Format:    resp.Format,
		Duration:  resp.Duration,
		RequestID: resp.RequestID,
	})
}
