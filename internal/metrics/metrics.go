package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"route", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronos_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	taskSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_task_submissions_total",
			Help: "Task submissions by type and outcome.",
		},
		[]string{"task_type", "outcome"},
	)

	taskTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_task_transitions_total",
			Help: "Task status transitions.",
		},
		[]string{"from", "to"},
	)

	minutesDebitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chronos_minutes_debited_total",
			Help: "Observation minutes debited from balances.",
		},
	)

	resultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_task_results_total",
			Help: "Captured images pushed by operators.",
		},
		[]string{"task_type"},
	)

	tleFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_tle_fetches_total",
			Help: "Element set lookups by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(taskSubmissionsTotal)
	prometheus.MustRegister(taskTransitionsTotal)
	prometheus.MustRegister(minutesDebitedTotal)
	prometheus.MustRegister(resultsTotal)
	prometheus.MustRegister(tleFetchesTotal)
}

// Submission outcomes.
const (
	OutcomeAccepted     = "accepted"
	OutcomeDraft        = "draft"
	OutcomeInvalid      = "invalid"
	OutcomeCollision    = "collision"
	OutcomeInsufficient = "insufficient"
	OutcomeNoAccess     = "no_access"
	OutcomeError        = "error"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSubmission counts one task submission.
func RecordSubmission(taskType, outcome string) {
	taskSubmissionsTotal.WithLabelValues(taskType, outcome).Inc()
}

// RecordTransition counts one status change.
func RecordTransition(from, to string) {
	taskTransitionsTotal.WithLabelValues(from, to).Inc()
}

// AddDebited adds debited minutes.
func AddDebited(minutes int) {
	minutesDebitedTotal.Add(float64(minutes))
}

func RecordResult(taskType string) {
	resultsTotal.WithLabelValues(taskType).Inc()
}

// RecordTLEFetch counts an element set lookup; source is "cache" or "remote".
func RecordTLEFetch(source, outcome string) {
	tleFetchesTotal.WithLabelValues(source, outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request. Requests
// are labelled by their chi route pattern so ids in paths do not create new
// series.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := routeLabel(r)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "other"
}
