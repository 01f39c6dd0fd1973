// Package metrics registers the Prometheus collectors for litlink.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the socket and fan-out layers.
type Metrics struct {
	ConnectionsActive *prometheus.GaugeVec
	MessagesInbound   *prometheus.CounterVec
	PushesDelivered   prometheus.Counter
	PushesDropped     prometheus.Counter
	NotificationsSent *prometheus.CounterVec
	ChatMessagesSaved prometheus.Counter
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return newWithRegisterer(prometheus.DefaultRegisterer)
}

// NewForTesting creates collectors on a private registry so tests do not
// collide on the global one.
func NewForTesting() *Metrics {
	return newWithRegisterer(prometheus.NewRegistry())
}

func newWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litlink_ws_connections_active",
			Help: "Live websocket connections by role.",
		}, []string{"role"}),
		MessagesInbound: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "litlink_ws_messages_inbound_total",
			Help: "Inbound websocket messages by type tag.",
		}, []string{"type"}),
		PushesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "litlink_ws_pushes_delivered_total",
			Help: "Events handed to a live client send buffer.",
		}),
		PushesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "litlink_ws_pushes_dropped_total",
			Help: "Events dropped because the target buffer was full or the target was offline.",
		}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "litlink_notifications_sent_total",
			Help: "Durable notification rows written by type.",
		}, []string{"type"}),
		ChatMessagesSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "litlink_chat_messages_saved_total",
			Help: "Chat messages persisted.",
		}),
	}
}
