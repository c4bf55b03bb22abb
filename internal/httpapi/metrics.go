package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"sidekick/internal/engine"
	"sidekick/internal/trigger"
)

// Route-level labels stay on chi patterns so editors sending arbitrary paths
// cannot blow up cardinality.
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sidekick",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			// Inline completions must answer within a keystroke.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 3, 10, 60},
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sidekick",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests by method.",
		},
		[]string{"method"},
	)

	completionResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "http",
			Name:      "completion_responses_total",
			Help:      "Answers to /v1/complete by trigger kind and completion source.",
		},
		[]string{"trigger", "source"},
	)

	textResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "http",
			Name:      "text_responses_total",
			Help:      "Answers to explain, refactor and tests by route and outcome.",
		},
		[]string{"path", "outcome"},
	)

	eventStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sidekick",
			Subsystem: "http",
			Name:      "event_streams",
			Help:      "Open /v1/events subscribers.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, completionResponses, textResponses, eventStreams)
}

func observeCompletion(kind trigger.Kind, res engine.Result) {
	completionResponses.WithLabelValues(kind.String(), string(res.Source)).Inc()
}

// observeText records a long-form answer. The unavailable message is a 200
// but is counted apart so dashboards see the degraded answers.
func observeText(r *http.Request, text string, status int) {
	outcome := "ok"
	switch {
	case status >= 400:
		outcome = "error"
	case strings.HasPrefix(text, engine.UnavailableMessage):
		outcome = "unavailable"
	}
	textResponses.WithLabelValues(routePatternOrPath(r), outcome).Inc()
}

// statusRecorder keeps the status code for the request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps the NDJSON event stream working behind the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

// MetricsMiddleware records request counts, latency and in-flight requests.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inflight := httpInflight.WithLabelValues(r.Method)
		inflight.Inc()
		defer inflight.Dec()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)
		// chi fills in the pattern while routing.
		labels := []string{routePatternOrPath(r), r.Method, strconv.Itoa(sr.status)}
		httpRequestsTotal.WithLabelValues(labels...).Inc()
		httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath prefers the chi route pattern over the raw path.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
