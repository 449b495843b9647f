// Package natsmetrics wires connection Statistics into Prometheus
// collectors. It is entirely optional: a Conn created without a Registry
// does no Prometheus work at all.
package natsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the collectors exported for a single client.
type Registry struct {
	InMsgs     prometheus.Counter
	OutMsgs    prometheus.Counter
	InBytes    prometheus.Counter
	OutBytes   prometheus.Counter
	Reconnects prometheus.Counter
	Status     prometheus.Gauge
}

// NewRegistry creates and registers a fresh set of collectors, labeled
// with name (typically the client's configured Name or a server URL).
func NewRegistry(name string) *Registry {
	labels := prometheus.Labels{"client": name}
	return &Registry{
		InMsgs: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "nats_client_in_msgs_total",
			Help:        "Total number of messages received.",
			ConstLabels: labels,
		}),
		OutMsgs: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "nats_client_out_msgs_total",
			Help:        "Total number of messages published.",
			ConstLabels: labels,
		}),
		InBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "nats_client_in_bytes_total",
			Help:        "Total number of payload bytes received.",
			ConstLabels: labels,
		}),
		OutBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "nats_client_out_bytes_total",
			Help:        "Total number of payload bytes published.",
			ConstLabels: labels,
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "nats_client_reconnects_total",
			Help:        "Total number of successful reconnects.",
			ConstLabels: labels,
		}),
		Status: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "nats_client_status",
			Help:        "Current connection status (numeric Status value).",
			ConstLabels: labels,
		}),
	}
}
