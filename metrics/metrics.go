// Package metrics exposes Prometheus collectors for the transport's
// per-connection RTT, loss, and byte-budget signals.
// Wiring a connection's flow governor to a Collector is optional; a nil
// *Collector is a safe no-op. A zero-value Collector is not: its gauges
// and counters are nil.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds the gauges and counters one connection reports into.
// A nil *Collector is valid and every method is then a no-op, so callers
// that do not care about metrics can simply pass nil.
type Collector struct {
	rttMs       prometheus.Gauge
	budgetBytes prometheus.Gauge
	lossTotal   prometheus.Counter
	bytesSent   prometheus.Counter
	bytesRecv   prometheus.Counter
}

// NewCollector registers a connection's metrics under reg, labeling all
// series with connID (cmd/raknetdp-echo passes the peer's UDP address).
func NewCollector(reg prometheus.Registerer, connID string) *Collector {
	c := &Collector{
		rttMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "raknetdp",
			Name:        "smoothed_rtt_ms",
			Help:        "Smoothed round-trip time in milliseconds.",
			ConstLabels: prometheus.Labels{"conn": connID},
		}),
		budgetBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "raknetdp",
			Name:        "flow_budget_bytes",
			Help:        "Current per-epoch send budget in bytes.",
			ConstLabels: prometheus.Labels{"conn": connID},
		}),
		lossTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "raknetdp",
			Name:        "loss_events_total",
			Help:        "Loss-representative retransmit events observed.",
			ConstLabels: prometheus.Labels{"conn": connID},
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "raknetdp",
			Name:        "bytes_sent_total",
			Help:        "Payload bytes handed to the datagram sink.",
			ConstLabels: prometheus.Labels{"conn": connID},
		}),
		bytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "raknetdp",
			Name:        "bytes_received_total",
			Help:        "Payload bytes accepted from the datagram source.",
			ConstLabels: prometheus.Labels{"conn": connID},
		}),
	}
	if reg != nil {
		reg.MustRegister(c.rttMs, c.budgetBytes, c.lossTotal, c.bytesSent, c.bytesRecv)
	}
	return c
}

func (c *Collector) SetRTT(ms int64) {
	if c == nil {
		return
	}
	c.rttMs.Set(float64(ms))
}

func (c *Collector) SetBudget(bytes int64) {
	if c == nil {
		return
	}
	c.budgetBytes.Set(float64(bytes))
}

func (c *Collector) AddLoss(events int) {
	if c == nil || events <= 0 {
		return
	}
	c.lossTotal.Add(float64(events))
}

func (c *Collector) AddBytesSent(n int) {
	if c == nil {
		return
	}
	c.bytesSent.Add(float64(n))
}

func (c *Collector) AddBytesRecv(n int) {
	if c == nil {
		return
	}
	c.bytesRecv.Add(float64(n))
}
