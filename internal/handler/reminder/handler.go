package reminder

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/handler/httperr"
	"github.com/healthwise/companion/internal/middleware"
	"github.com/healthwise/companion/internal/model/health"
	"github.com/healthwise/companion/internal/service/notify"
	reminderservice "github.com/healthwise/companion/internal/service/reminder"
	"github.com/healthwise/companion/internal/validation"
	"github.com/healthwise/companion/pkg/utils"
)

// Handler 提醒与通知推送
type Handler struct {
	svc      *reminderservice.Service
	hub      *notify.Hub
	upgrader websocket.Upgrader
	now      func() time.Time
	logger   *zap.Logger
}

// New 创建提醒处理器；hub 为 nil 时不注册 websocket 路由。
func New(svc *reminderservice.Service, hub *notify.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 跨域由 CORS 与 token 校验负责
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now:    time.Now,
		logger: logger.Named("reminder_handler"),
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reminders", func(rr chi.Router) {
		rr.Get("/", h.handleList)
		rr.Post("/", h.handleSet)
		rr.Get("/due", h.handleDue)
		rr.Delete("/{reminderID}", h.handleDelete)
		rr.Post("/{reminderID}/check-in", h.handleCheckIn)
	})
	if h.hub != nil {
		r.Get("/notifications/ws", h.handleNotifications)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []health.Reminder{}
	}
	utils.RespondJSON(w, r, http.StatusOK, list)
}

func (h *Handler) handleSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symptom string `json:"symptom"`
		Advice  string `json:"advice"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	errs := validation.Errors{}
	errs.Check(req.Symptom != "", "symptom", "Symptom is required.")
	errs.Check(req.Advice != "", "advice", "Advice is required.")
	if err := errs.Err(); err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}

	saved, err := h.svc.Set(r.Context(), middleware.UserID(r.Context()), req.Symptom, req.Advice)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusCreated, saved)
}

// handleDue 返回到期提醒及对应通知，并标记为已展示。
// handleDue 供轮询客户端使用：先取出离线期间调度器暂存的通知，再追加新到期的提醒。
func (h *Handler) handleDue(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	due, err := h.svc.DueForUser(r.Context(), userID, h.now())
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}

	var pending []health.Notification
	if h.hub != nil {
		pending = h.hub.Pending(userID)
	}
	notifications := make([]health.Notification, 0, len(pending)+len(due))
	notifications = append(notifications, pending...)
	for _, rem := range due {
		notifications = append(notifications, h.svc.Notification(rem))
	}
	if due == nil {
		due = []health.Reminder{}
	}
	utils.RespondJSON(w, r, http.StatusOK, map[string]any{
		"reminders":     due,
		"notifications": notifications,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "reminderID")); err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Response health.CheckInResponse `json:"response"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.CheckIn(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "reminderID"), req.Response)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, result)
}

// handleNotifications 升级为 websocket 并交给 hub。
func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	h.hub.Serve(r.Context(), userID, conn)
}
