package network

import (
	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics used in monitoring service.
var (
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Number of established connections",
			Name:      "active_connections",
			Namespace: "dsocket",
		},
	)

	connectFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of failed connection attempts",
			Name:      "connect_failures_total",
			Namespace: "dsocket",
		},
	)

	reconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of scheduled reconnections",
			Name:      "reconnect_attempts_total",
			Namespace: "dsocket",
		},
	)

	framesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of frames received",
			Name:      "frames_read_total",
			Namespace: "dsocket",
		},
	)

	bytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of frame bytes received including headers",
			Name:      "bytes_read_total",
			Namespace: "dsocket",
		},
	)

	framesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of frames sent",
			Name:      "frames_written_total",
			Namespace: "dsocket",
		},
	)

	bytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of frame bytes sent including headers",
			Name:      "bytes_written_total",
			Namespace: "dsocket",
		},
	)

	pulsesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of pulses sent",
			Name:      "pulses_sent_total",
			Namespace: "dsocket",
		},
	)

	pulseLosses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of connections dropped because of lost pulse",
			Name:      "pulse_losses_total",
			Namespace: "dsocket",
		},
	)

	serverClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Help:      "Number of clients connected to the server",
			Name:      "server_clients",
			Namespace: "dsocket",
		},
		[]string{"port"},
	)
)

// Collectors returns all connection metrics including the event delivery
// ones, they are to be registered by the application.
func Collectors() []prometheus.Collector {
	return append([]prometheus.Collector{
		activeConnections,
		connectFailures,
		reconnectAttempts,
		framesRead,
		bytesRead,
		framesWritten,
		bytesWritten,
		pulsesSent,
		pulseLosses,
		serverClients,
	}, action.Collectors()...)
}

func addFrameRead(bodyLen int) {
	framesRead.Inc()
	bytesRead.Add(float64(bodyLen + frame.HeaderSize))
}

func addFrameWritten(bodyLen int) {
	framesWritten.Inc()
	bytesWritten.Add(float64(bodyLen + frame.HeaderSize))
}

func updateServerClientsMetric(port string, n int) {
	serverClients.WithLabelValues(port).Set(float64(n))
}
