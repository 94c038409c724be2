package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cfs"

// Collector holds the service counters. A nil *Collector discards observations.
type Collector struct {
	operations  *prometheus.CounterVec
	settlements *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Contract operations by outcome.",
		}, []string{"operation", "result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Outbound transfers settled by outcome.",
		}, []string{"kind", "result"}),
	}
	for _, col := range []prometheus.Collector{c.operations, c.settlements} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveOperation counts one contract call. result is "ok", "rejected" or "error".
func (c *Collector) ObserveOperation(operation, result string) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(operation, result).Inc()
}

// ObserveSettlement counts one settlement attempt. result is "success",
// "retry" or "failed".
func (c *Collector) ObserveSettlement(kind, result string) {
	if c == nil {
		return
	}
	c.settlements.WithLabelValues(kind, result).Inc()
}
