// Package monitoring exposes Prometheus metrics for the bridge.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call directions and outcomes used as label values.
const (
	DirectionInbound  = "inbound"  // script -> native
	DirectionOutbound = "outbound" // native -> script

	StatusOK       = "ok"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// Metrics holds the bridge collectors.
type Metrics struct {
	CallsInFlight   prometheus.Gauge
	CallsTotal      *prometheus.CounterVec
	EvalsTotal      prometheus.Counter
	MessagesDropped prometheus.Counter
	BindingsActive  prometheus.Gauge
}

// New registers bridge collectors with reg. Pass a fresh registry per window
// when running several windows in one process.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CallsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webview_bridge_calls_in_flight",
			Help: "Number of bridge calls currently pending",
		}),
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webview_bridge_calls_total",
				Help: "Total bridge calls by direction and outcome",
			},
			[]string{"direction", "status"},
		),
		EvalsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "webview_bridge_evals_total",
			Help: "Total script evaluations issued by the bridge",
		}),
		MessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "webview_bridge_messages_dropped_total",
			Help: "Messages dropped for bad nonce or malformed content",
		}),
		BindingsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webview_bridge_bindings_active",
			Help: "Number of currently bound native functions",
		}),
	}
}
