package server

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics bundles the Prometheus collectors for one server instance. Each
// Server owns its registry so tests can run several servers in a process.
type metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge

	wsConnections prometheus.Gauge
	wsRooms       prometheus.Gauge
	wsDelivered   prometheus.Counter
}

func newMetrics(q *RequestQueueManager) *metrics {
	reg := prometheus.NewRegistry()

	m := &metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "support_chat_http_requests_total",
				Help: "Total count of HTTP requests received.",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "support_chat_http_request_duration_seconds",
				Help:    "Histogram of request durations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "support_chat_http_inflight_requests",
			Help: "Number of requests currently being handled.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "support_chat_server_ws_connections",
			Help: "Current number of active websocket connections.",
		}),
		wsRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "support_chat_server_ws_rooms",
			Help: "Current number of conversation rooms with members.",
		}),
		wsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "support_chat_server_ws_messages_delivered_total",
			Help: "Total websocket messages delivered to clients.",
		}),
	}

	reg.MustRegister(m.requests, m.duration, m.inFlight, m.wsConnections, m.wsRooms, m.wsDelivered)

	if q != nil {
		queueDepth := prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "support_chat_request_queue_depth",
				Help: "Jobs waiting in the request queue channel.",
			},
			func() float64 {
				return float64(len(q.JobQueue))
			},
		)
		reg.MustRegister(queueDepth)
	}

	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument wraps the handler with request counters and histograms.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		normalizedPath := sanitizePath(r.URL.Path)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start).Seconds()

		statusLabel := strconv.Itoa(rec.status)
		labels := []string{r.Method, normalizedPath, statusLabel}

		m.requests.WithLabelValues(labels...).Inc()
		m.duration.WithLabelValues(labels...).Observe(elapsed)
	})
}

// sanitizePath reduces cardinality by collapsing long or parameterised
// paths.
func sanitizePath(p string) string {
	clean := path.Clean(p)
	if clean == "" || clean == "." {
		return "/"
	}

	segments := strings.Split(clean, "/")
	out := segments
	if len(segments) > 4 {
		out = append(segments[:4], "...")
	}

	res := strings.Join(out, "/")
	if !strings.HasPrefix(res, "/") {
		res = "/" + res
	}

	return res
}
