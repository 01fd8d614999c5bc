package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthHandler "github.com/healthwise/companion/internal/handler/health"
	"github.com/healthwise/companion/internal/model/tip"
	"github.com/healthwise/companion/internal/repository"
	activityService "github.com/healthwise/companion/internal/service/activity"
	chatService "github.com/healthwise/companion/internal/service/chat"
	"github.com/healthwise/companion/internal/service/notify"
	reminderService "github.com/healthwise/companion/internal/service/reminder"
	"github.com/healthwise/companion/internal/service/weather"
)

func newTestRouter() http.Handler {
	store := repository.NewMemoryStore()
	return NewRouter(Deps{
		Chats:      chatService.NewService(store),
		Reminders:  reminderService.NewService(store, 0, nil),
		Activities: activityService.NewService(store),
		Hub:        notify.NewHub(nil),
		Health: healthHandler.Deps{
			Weather: weather.NewService(weather.NewMockProvider(7), nil, nil, 0, nil),
			Tips:    tip.NewMemoryStore(),
		},
	})
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-User-ID", "router-user")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndMetrics(t *testing.T) {
	r := newTestRouter()

	rec := serve(r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	serve(r, http.MethodGet, "/api/tips", "")
	rec = serve(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthwise_http_requests_total")
}

func TestRoutesWithoutModel(t *testing.T) {
	r := newTestRouter()

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/companion/turn", `{"message":"hello"}`, http.StatusServiceUnavailable},
		{http.MethodPost, "/api/symptoms/check", `{"symptomDescription":"sore throat"}`, http.StatusServiceUnavailable},
		{http.MethodPost, "/api/speech/synthesize", `{"text":"hi"}`, http.StatusServiceUnavailable},
		{http.MethodGet, "/api/weather?location=Oslo", "", http.StatusOK},
		{http.MethodGet, "/api/tips/today", "", http.StatusOK},
		{http.MethodGet, "/api/dashboard", "", http.StatusOK},
		{http.MethodPost, "/api/chat/sessions", "", http.StatusCreated},
		{http.MethodPost, "/api/activities", `{"type":"Walk","duration":20,"distance":1.5}`, http.StatusCreated},
		{http.MethodPost, "/api/reminders", `{"symptom":"headache","advice":"drink water"}`, http.StatusCreated},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := serve(r, tc.method, tc.path, tc.body)
		assert.Equal(t, tc.want, rec.Code, "%s %s: %s", tc.method, tc.path, rec.Body.String())
	}
}

func TestRequestIDHeaderIsAccepted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
