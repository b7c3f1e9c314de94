// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and gauges a Server updates as connections
// come and go and broadcasts fan out. Nil-safe: every call site checks
// for a nil *Metrics before touching it, so metrics are entirely optional.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	BroadcastsTotal   prometheus.Counter
	BytesWrittenTotal prometheus.Counter
	FramesRejected    prometheus.Counter
}

// NewMetrics registers a fresh set of chatline server metrics against reg
// and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatline_connections_active",
			Help: "Number of currently connected chat clients.",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatline_broadcasts_total",
			Help: "Total number of broadcast messages fanned out to clients.",
		}),
		BytesWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatline_bytes_written_total",
			Help: "Total bytes written to client sockets.",
		}),
		FramesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatline_frames_rejected_total",
			Help: "Total frames that failed to decode or arrived from the wrong direction.",
		}),
	}
	reg.MustRegister(m.ConnectionsActive, m.BroadcastsTotal, m.BytesWrittenTotal, m.FramesRejected)
	return m
}
