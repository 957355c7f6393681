package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the client's prometheus collectors. A nil *metrics is valid
// and records nothing.
type metrics struct {
	framesReceived *prometheus.CounterVec
	decodeErrors   *prometheus.CounterVec
	commandsSent   *prometheus.CounterVec
	connected      prometheus.Gauge
	connectsTotal  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spamwatch",
			Subsystem: "client",
			Name:      "frames_received_total",
			Help:      "Frames received from the spammer, by decoded message type",
		}, []string{"msg_type"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spamwatch",
			Subsystem: "client",
			Name:      "decode_errors_total",
			Help:      "Frames dropped because they could not be decoded",
		}, []string{"reason"}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spamwatch",
			Subsystem: "client",
			Name:      "commands_sent_total",
			Help:      "Start/stop commands written to the spammer",
		}, []string{"command"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "spamwatch",
			Subsystem: "client",
			Name:      "connected",
			Help:      "1 while the telemetry channel is connected",
		}),
		connectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spamwatch",
			Subsystem: "client",
			Name:      "connects_total",
			Help:      "Successful connections to the spammer",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.framesReceived, m.decodeErrors, m.commandsSent, m.connected, m.connectsTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) frame(msgType string) {
	if m != nil {
		m.framesReceived.WithLabelValues(msgType).Inc()
	}
}

func (m *metrics) decodeError(reason string) {
	if m != nil {
		m.decodeErrors.WithLabelValues(reason).Inc()
	}
}

func (m *metrics) command(name string) {
	if m != nil {
		m.commandsSent.WithLabelValues(name).Inc()
	}
}

func (m *metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		m.connectsTotal.Inc()
		return
	}
	m.connected.Set(0)
}
