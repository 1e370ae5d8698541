package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})

	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages accepted by the delivery pipeline",
	}, []string{"kind", "delivered"})

	SignalsRelayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "call_signals_relayed_total",
		Help: "Call signaling events forwarded to a peer",
	}, []string{"signal"})

	MediaCleanupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_cleanup_failures_total",
		Help: "Attachment deletions that failed and were skipped",
	})

	VersionConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "message_version_conflicts_total",
		Help: "Versioned writes that lost a race and were retried",
	}, []string{"field"})
)

func Init() {
	prometheus.MustRegister(Connections, MessagesSent, SignalsRelayed, MediaCleanupFailures, VersionConflicts)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
