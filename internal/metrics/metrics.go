// Package metrics exposes the Prometheus collectors for the chat
// gateway and the /metrics handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OnlineUsers tracks the size of the presence registry.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "campushub",
		Subsystem: "chat",
		Name:      "online_users",
		Help:      "Number of users currently registered as online.",
	})

	// Events counts processed socket events by type.
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campushub",
		Subsystem: "chat",
		Name:      "events_total",
		Help:      "Socket events processed, labelled by event name.",
	}, []string{"event"})

	// MessagesSent counts successfully persisted messages.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "campushub",
		Subsystem: "chat",
		Name:      "messages_sent_total",
		Help:      "Messages persisted and broadcast.",
	})

	// SendFailures counts sends rejected before broadcast.
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "campushub",
		Subsystem: "chat",
		Name:      "send_failures_total",
		Help:      "Message sends that failed persistence or validation.",
	})
)

// Handler returns the HTTP handler served at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
