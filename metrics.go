package partigroup

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/partigroup/internal/metrics"
)

// NewPrometheusMetrics returns a MetricsCollector that exports partigroup
// metrics to Prometheus.
//
// Parameters:
//   - reg: Registerer for the collectors (prometheus.DefaultRegisterer when nil)
//   - namespace: Metric namespace ("partigroup" when empty)
//
// Example:
//
//	consumer, err := partigroup.NewConsumer(&cfg, nc,
//	    partigroup.WithMetrics(partigroup.NewPrometheusMetrics(nil, "")))
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}
