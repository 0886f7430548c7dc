package metrics

import (
	"fmt"
	"net/http"

	"github.com/nspcc-dev/dsocket/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsPath is the path metrics are exposed on.
const MetricsPath = "/metrics"

// NewPrometheusService creates a service exposing the given collectors along
// with the Go runtime and process ones. Every service has its own registry,
// nothing is taken from the global one.
func NewPrometheusService(cfg config.BasicService, log *zap.Logger, cs ...prometheus.Collector) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	cs = append([]prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}, cs...)
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(log),
		ErrorHandling: promhttp.ContinueOnError,
	})
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.InstrumentMetricHandler(reg, h))
	return NewService("Prometheus", newServers(cfg.Addresses, mux, log), cfg, log), nil
}
