package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ToolCalls      *prometheus.CounterVec
	Callbacks      *prometheus.CounterVec
	PushDeliveries *prometheus.CounterVec
	StoreOps       *prometheus.CounterVec
	StoreConnected prometheus.Gauge
	SubmitLatency  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Inbound tool-call webhooks by outcome.",
		}, []string{"outcome"}),
		Callbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Inbound completion callbacks by outcome.",
		}, []string{"outcome"}),
		PushDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Completion push deliveries by outcome.",
		}, []string{"outcome"}),
		StoreOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Key-value store operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		StoreConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_connected",
			Help:      "Whether the key-value store is reachable (1) or degraded (0).",
		}),
		SubmitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_submit_seconds",
			Help:      "Latency of async execution submissions in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) ObserveStoreOp(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.StoreOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveSubmitLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.SubmitLatency.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
