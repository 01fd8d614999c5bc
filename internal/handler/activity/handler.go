package activity

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/handler/httperr"
	"github.com/healthwise/companion/internal/middleware"
	"github.com/healthwise/companion/internal/model/health"
	activityservice "github.com/healthwise/companion/internal/service/activity"
	"github.com/healthwise/companion/pkg/utils"
)

// Handler 运动记录的HTTP处理器
type Handler struct {
	svc    *activityservice.Service
	logger *zap.Logger
}

func New(svc *activityservice.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("activity_handler")}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/activities", func(ar chi.Router) {
		ar.Get("/", h.handleRecent)
		ar.Post("/", h.handleLog)
		ar.Get("/summary", h.handleSummary)
	})
}

func (h *Handler) handleLog(w http.ResponseWriter, r *http.Request) {
	var in activityservice.LogInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.svc.Log(r.Context(), middleware.UserID(r.Context()), in)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusCreated, saved)
}

// handleRecent 返回最近的记录，?limit= 可选。
func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.RespondValidation(w, r, map[string]string{"limit": "Limit must be a positive number."})
			return
		}
		limit = n
	}

	items, err := h.svc.Recent(r.Context(), middleware.UserID(r.Context()), limit)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []health.Activity{}
	}
	utils.RespondJSON(w, r, http.StatusOK, items)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, summary)
}
