package mysensors

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors of one gateway. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	received    *prometheus.CounterVec
	sent        *prometheus.CounterVec
	invalid     prometheus.Counter
	sendErrors  prometheus.Counter
	idAssigned  prometheus.Counter
	nodes       prometheus.Gauge
	sensors     prometheus.Gauge
	connected   prometheus.Gauge
	rebootsSent prometheus.Counter
}

// NewMetrics creates the collectors on a private registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorgw",
			Name:      "messages_received_total",
			Help:      "Messages received from the sensor network, by message type.",
		}, []string{"type"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorgw",
			Name:      "messages_sent_total",
			Help:      "Messages written to the sensor network, by message type.",
		}, []string{"type"}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorgw",
			Name:      "messages_invalid_total",
			Help:      "Lines that could not be decoded.",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorgw",
			Name:      "send_errors_total",
			Help:      "Messages the transport failed to write.",
		}),
		idAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorgw",
			Name:      "node_ids_assigned_total",
			Help:      "ID responses sent to nodes without an id.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensorgw",
			Name:      "nodes",
			Help:      "Nodes in the registry.",
		}),
		sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensorgw",
			Name:      "sensors",
			Help:      "Sensors in the registry.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensorgw",
			Name:      "connected",
			Help:      "1 when a transport is connected.",
		}),
		rebootsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorgw",
			Name:      "reboots_sent_total",
			Help:      "Reboot requests sent to nodes.",
		}),
	}

	m.registry.MustRegister(
		m.received, m.sent, m.invalid, m.sendErrors, m.idAssigned,
		m.nodes, m.sensors, m.connected, m.rebootsSent,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Gatherer returns the registry to expose over HTTP.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// typeLabel bounds the "type" label: corrupted frames can carry any number.
func typeLabel(t MessageType) string {
	if t < MessagePresentation || t > MessageStream {
		return "UNKNOWN"
	}
	return t.String()
}

func (m *Metrics) messageReceived(t MessageType) {
	if m != nil {
		m.received.WithLabelValues(typeLabel(t)).Inc()
	}
}

func (m *Metrics) messageSent(t MessageType) {
	if m != nil {
		m.sent.WithLabelValues(typeLabel(t)).Inc()
	}
}

func (m *Metrics) invalidMessage() {
	if m != nil {
		m.invalid.Inc()
	}
}

func (m *Metrics) sendError() {
	if m != nil {
		m.sendErrors.Inc()
	}
}

func (m *Metrics) nodeIDAssigned() {
	if m != nil {
		m.idAssigned.Inc()
	}
}

func (m *Metrics) rebootSent() {
	if m != nil {
		m.rebootsSent.Inc()
	}
}

func (m *Metrics) setRegistrySize(nodes, sensors int) {
	if m != nil {
		m.nodes.Set(float64(nodes))
		m.sensors.Set(float64(sensors))
	}
}

func (m *Metrics) setConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
