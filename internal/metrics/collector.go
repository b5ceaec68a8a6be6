// Package jkblemetrics exposes Prometheus metrics for a running jkbled
// daemon, grounded in the teacher's bfdmetrics package: one Collector
// struct holding pre-built metric vectors, registered once against a
// prometheus.Registerer and then updated by the Device Session as
// connections, frames, and commands succeed or fail.
package jkblemetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "jkble"
	subsystem = "session"
)

// Label names shared across metrics.
const (
	labelDeviceID = "device_id"
	labelKind     = "kind"
	labelCommand  = "command"
	labelReason   = "reason"
)

// Collector holds every metric a jkbled daemon publishes.
//
//   - ActiveSessions tracks sessions currently in StatusConnected.
//   - FramesDecoded/FramesDropped track the frame assembler's outcomes.
//   - CommandsSent/CommandTimeouts track the command transmitter.
//   - Disconnects is labeled by DisconnectReason for flap alerting.
type Collector struct {
	ActiveSessions prometheus.Gauge

	FramesDecoded *prometheus.CounterVec
	FramesDropped *prometheus.CounterVec

	CommandsSent     *prometheus.CounterVec
	CommandTimeouts  *prometheus.CounterVec
	CommandOverflows *prometheus.CounterVec

	Disconnects *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it against reg. If reg
// is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ActiveSessions,
		c.FramesDecoded,
		c.FramesDropped,
		c.CommandsSent,
		c.CommandTimeouts,
		c.CommandOverflows,
		c.Disconnects,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active",
			Help:      "Number of device sessions currently connected.",
		}),

		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_decoded_total",
			Help:      "Total response frames successfully reassembled and decoded, by kind.",
		}, []string{labelDeviceID, labelKind}),

		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Total fragments or frames discarded (orphan fragment, checksum failure, decode failure), by reason.",
		}, []string{labelDeviceID, labelReason}),

		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_sent_total",
			Help:      "Total commands successfully written to the characteristic, by command name.",
		}, []string{labelDeviceID, labelCommand}),

		CommandTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "command_timeouts_total",
			Help:      "Total commands whose per-command timeout elapsed before the write completed.",
		}, []string{labelDeviceID, labelCommand}),

		CommandOverflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "command_overflows_total",
			Help:      "Total command builds rejected for exceeding the protocol's command length.",
		}, []string{labelDeviceID, labelCommand}),

		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "disconnects_total",
			Help:      "Total disconnects, labeled by reason (user, external, inactivity, error).",
		}, []string{labelDeviceID, labelReason}),
	}
}

// SessionConnected increments the active session gauge.
func (c *Collector) SessionConnected() {
	c.ActiveSessions.Inc()
}

// SessionDisconnected decrements the active session gauge and records
// the disconnect reason.
func (c *Collector) SessionDisconnected(deviceID, reason string) {
	c.ActiveSessions.Dec()
	c.Disconnects.WithLabelValues(deviceID, reason).Inc()
}

// FrameDecoded records a successfully decoded response of the given kind.
func (c *Collector) FrameDecoded(deviceID, kind string) {
	c.FramesDecoded.WithLabelValues(deviceID, kind).Inc()
}

// FrameDropped records a fragment or frame discarded for reason.
func (c *Collector) FrameDropped(deviceID, reason string) {
	c.FramesDropped.WithLabelValues(deviceID, reason).Inc()
}

// CommandSent records a successful command write.
func (c *Collector) CommandSent(deviceID, command string) {
	c.CommandsSent.WithLabelValues(deviceID, command).Inc()
}

// CommandTimedOut records a command whose timeout elapsed.
func (c *Collector) CommandTimedOut(deviceID, command string) {
	c.CommandTimeouts.WithLabelValues(deviceID, command).Inc()
}

// CommandOverflowed records a command build rejected for overflow.
func (c *Collector) CommandOverflowed(deviceID, command string) {
	c.CommandOverflows.WithLabelValues(deviceID, command).Inc()
}
