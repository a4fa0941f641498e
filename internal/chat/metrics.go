package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesAppended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_messages_appended_total",
			Help: "Messages appended to the conversation after reconciliation.",
		},
	)
	dupSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_duplicates_suppressed_total",
			Help: "Redelivered message events discarded by deduplication.",
		},
	)
)

func init() {
	prometheus.MustRegister(messagesAppended, dupSuppressed)
}
