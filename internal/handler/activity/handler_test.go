package activity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthwise/companion/internal/middleware"
	"github.com/healthwise/companion/internal/model/health"
	"github.com/healthwise/companion/internal/repository"
	activityservice "github.com/healthwise/companion/internal/service/activity"
)

func newRouter() *chi.Mux {
	h := New(activityservice.NewService(repository.NewMemoryStore()), nil)
	r := chi.NewRouter()
	r.Use(middleware.Identity(nil))
	h.RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-User-ID", "runner")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLogAndListActivities(t *testing.T) {
	r := newRouter()

	bodies := []string{
		`{"type":"Walk","duration":30,"distance":2.5,"date":"2026-10-01T08:00:00Z"}`,
		`{"type":"Run","duration":25,"distance":5,"date":"2026-10-02T08:00:00Z"}`,
		`{"type":"Cycle","duration":60,"distance":20,"date":"2026-10-03T08:00:00Z"}`,
		`{"type":"Walk","duration":15,"distance":1,"date":"2026-10-04T08:00:00Z"}`,
	}
	for _, body := range bodies {
		rec := do(r, http.MethodPost, "/activities", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := do(r, http.MethodGet, "/activities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var recent []health.Activity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recent))
	require.Len(t, recent, activityservice.DefaultRecentLimit)
	assert.Equal(t, 15, recent[0].Duration)

	rec = do(r, http.MethodGet, "/activities?limit=10", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recent))
	assert.Len(t, recent, 4)

	rec = do(r, http.MethodGet, "/activities/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary health.ActivitySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 4, summary.Count)
	assert.Equal(t, 130, summary.TotalMinutes)
	assert.InDelta(t, 28.5, summary.TotalDistance, 0.001)
}

func TestLogActivityValidation(t *testing.T) {
	r := newRouter()

	rec := do(r, http.MethodPost, "/activities", `{"type":"Swim","duration":0,"distance":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Type must be one of Walk, Run or Cycle.", body.Fields["type"])
	assert.Contains(t, body.Fields, "duration")
	assert.Contains(t, body.Fields, "distance")
}

func TestRecentRejectsBadLimit(t *testing.T) {
	rec := do(newRouter(), http.MethodGet, "/activities?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivitiesEmptyList(t *testing.T) {
	rec := do(newRouter(), http.MethodGet, "/activities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
