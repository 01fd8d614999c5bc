package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthwise_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthwise_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	flowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthwise_flow_runs_total",
			Help: "Total number of AI flow runs by outcome",
		},
		[]string{"flow", "status"},
	)

	flowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthwise_flow_duration_seconds",
			Help:    "Duration of AI flow runs",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"flow"},
	)

	toolRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthwise_tool_requests_total",
			Help: "Tool invocations requested by the model",
		},
		[]string{"tool"},
	)

	speechFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthwise_speech_failures_total",
			Help: "Best-effort speech synthesis failures",
		},
	)

	remindersPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthwise_reminders_published_total",
			Help: "Reminder notifications published by the scheduler",
		},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthwise_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// ObserveHTTP 记录一次 HTTP 请求。
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveFlow 记录一次 AI flow 调用。
func ObserveFlow(flow string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	flowRuns.WithLabelValues(flow, status).Inc()
	flowDuration.WithLabelValues(flow).Observe(time.Since(start).Seconds())
}

func ToolRequested(name string) { toolRequests.WithLabelValues(name).Inc() }

func SpeechFailed() { speechFailures.Inc() }

func ReminderPublished() { remindersPublished.Inc() }

func RateLimited() { rateLimited.Inc() }

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
