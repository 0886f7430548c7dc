package action

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	listenerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of panics recovered from listener callbacks",
			Name:      "listener_panics_total",
			Namespace: "dsocket",
		},
		[]string{"action"},
	)

	deliveryQueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Number of events waiting in the independent delivery queue",
			Name:      "delivery_queue_length",
			Namespace: "dsocket",
		},
	)
)

// Collectors returns the metrics of event delivery.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		listenerPanics,
		deliveryQueueLength,
	}
}

func addListenerPanic(a Action) {
	listenerPanics.WithLabelValues(a.String()).Inc()
}

func updateDeliveryQueueLen(l int) {
	deliveryQueueLength.Set(float64(l))
}
