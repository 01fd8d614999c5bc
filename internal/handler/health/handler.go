package health

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/handler/httperr"
	healthmodel "github.com/healthwise/companion/internal/model/health"
	"github.com/healthwise/companion/internal/model/tip"
	"github.com/healthwise/companion/internal/service/activity"
	"github.com/healthwise/companion/internal/service/ai"
	"github.com/healthwise/companion/internal/service/reminder"
	"github.com/healthwise/companion/pkg/utils"
)

// SymptomChecker 症状分析流程
type SymptomChecker interface {
	Check(ctx context.Context, description string) (*healthmodel.SymptomAnalysis, error)
}

// CityResolver 坐标转城市
type CityResolver interface {
	City(ctx context.Context, lat, lon float64) (string, error)
}

// WeatherReporter 天气与建议
type WeatherReporter interface {
	Get(ctx context.Context, location string) (healthmodel.WeatherReading, error)
}

// Handler 健康工具类接口：症状检查、天气、定位、每日提示
type Handler struct {
	symptoms   SymptomChecker
	cities     CityResolver
	weather    WeatherReporter
	tips       tip.Store
	reminders  *reminder.Service
	activities *activity.Service
	now        func() time.Time
	logger     *zap.Logger
}

// Deps 处理器依赖；模型相关依赖可以为 nil。
type Deps struct {
	Symptoms   SymptomChecker
	Cities     CityResolver
	Weather    WeatherReporter
	Tips       tip.Store
	Reminders  *reminder.Service
	Activities *activity.Service
}

func New(deps Deps, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		symptoms:   deps.Symptoms,
		cities:     deps.Cities,
		weather:    deps.Weather,
		tips:       deps.Tips,
		reminders:  deps.Reminders,
		activities: deps.Activities,
		now:        time.Now,
		logger:     logger.Named("health_handler"),
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/symptoms/check", h.handleSymptomCheck)
	r.Get("/weather", h.handleWeather)
	r.Post("/location", h.handleLocation)
	r.Get("/tips/today", h.handleTipOfDay)
	r.Get("/tips", h.handleListTips)
	r.Get("/tips/{tipID}", h.handleGetTip)
	r.Get("/dashboard", h.handleDashboard)
}

func (h *Handler) handleSymptomCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SymptomDescription string `json:"symptomDescription"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.SymptomDescription)) < ai.MinSymptomDescription {
		utils.RespondValidation(w, r, map[string]string{"symptomDescription": ai.SymptomTooShortMessage})
		return
	}
	if h.symptoms == nil {
		utils.RespondError(w, r, http.StatusServiceUnavailable, ai.UnavailableMessage)
		return
	}

	analysis, err := h.symptoms.Check(r.Context(), req.SymptomDescription)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, analysis)
}

// handleWeather 支持 ?location= 或 ?lat=&lon=，后者先解析城市。
func (h *Handler) handleWeather(w http.ResponseWriter, r *http.Request) {
	if h.weather == nil {
		utils.RespondError(w, r, http.StatusServiceUnavailable, "weather unavailable")
		return
	}

	location := strings.TrimSpace(r.URL.Query().Get("location"))
	if location == "" && r.URL.Query().Has("lat") {
		lat, lon, fields := parseCoordinates(r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
		if fields != nil {
			utils.RespondValidation(w, r, fields)
			return
		}
		if h.cities == nil {
			utils.RespondError(w, r, http.StatusServiceUnavailable, ai.UnavailableMessage)
			return
		}
		city, err := h.cities.City(r.Context(), lat, lon)
		if err != nil {
			httperr.Respond(w, r, h.logger, err)
			return
		}
		location = city
	}
	if location == "" {
		utils.RespondValidation(w, r, map[string]string{"location": "Location is required."})
		return
	}

	reading, err := h.weather.Get(r.Context(), location)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, reading)
}

func (h *Handler) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	fields := map[string]string{}
	if req.Latitude == nil {
		fields["latitude"] = "Latitude is required."
	}
	if req.Longitude == nil {
		fields["longitude"] = "Longitude is required."
	}
	if len(fields) > 0 {
		utils.RespondValidation(w, r, fields)
		return
	}
	if invalid := ai.ValidateCoordinates(*req.Latitude, *req.Longitude); invalid != nil {
		utils.RespondValidation(w, r, invalid)
		return
	}
	if h.cities == nil {
		utils.RespondError(w, r, http.StatusServiceUnavailable, ai.UnavailableMessage)
		return
	}

	city, err := h.cities.City(r.Context(), *req.Latitude, *req.Longitude)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, map[string]string{"city": city})
}

func (h *Handler) handleTipOfDay(w http.ResponseWriter, r *http.Request) {
	date := h.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			utils.RespondValidation(w, r, map[string]string{"date": "Date must be formatted as YYYY-MM-DD."})
			return
		}
		date = parsed
	}

	t, err := h.tips.Today(r.Context(), date)
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, t)
}

func (h *Handler) handleListTips(w http.ResponseWriter, r *http.Request) {
	tips, err := h.tips.List(r.Context())
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, tips)
}

func (h *Handler) handleGetTip(w http.ResponseWriter, r *http.Request) {
	t, err := h.tips.FindByID(r.Context(), chi.URLParam(r, "tipID"))
	if err != nil {
		httperr.Respond(w, r, h.logger, err)
		return
	}
	utils.RespondJSON(w, r, http.StatusOK, t)
}

func parseCoordinates(rawLat, rawLon string) (float64, float64, map[string]string) {
	fields := map[string]string{}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		fields["latitude"] = "Latitude must be a number."
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		fields["longitude"] = "Longitude must be a number."
	}
	if len(fields) > 0 {
		return 0, 0, fields
	}
	if invalid := ai.ValidateCoordinates(lat, lon); invalid != nil {
		return 0, 0, invalid
	}
	return lat, lon, nil
}
