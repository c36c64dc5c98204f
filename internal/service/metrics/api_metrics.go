package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signalview",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of snapshot API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalview",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by snapshot API endpoint and kind",
		},
		[]string{"endpoint", "kind"},
	)

	StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signalview",
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, StreamClients)
	})
}
