package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_realtime_connections",
			Help: "Live realtime connections held by this process.",
		},
	)
	reconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_realtime_reconnect_attempts_total",
			Help: "Automatic reconnect attempts, successful or not.",
		},
	)
	eventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_realtime_events_received_total",
			Help: "Events delivered by the server, by event name.",
		},
		[]string{"event"},
	)
	eventsEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_realtime_events_emitted_total",
			Help: "Events emitted to the server.",
		},
	)
	decodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_realtime_decode_errors_total",
			Help: "Frames dropped because the envelope failed to decode.",
		},
	)
)

func init() {
	prometheus.MustRegister(connectedGauge, reconnectAttempts, eventsReceived, eventsEmitted, decodeErrors)
}
