package jkblemetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jkblemetrics "github.com/lowvolt/jkble/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := jkblemetrics.NewCollector(reg)

	if c.ActiveSessions == nil {
		t.Error("ActiveSessions is nil")
	}
	if c.FramesDecoded == nil {
		t.Error("FramesDecoded is nil")
	}
	if c.FramesDropped == nil {
		t.Error("FramesDropped is nil")
	}
	if c.CommandsSent == nil {
		t.Error("CommandsSent is nil")
	}
	if c.CommandTimeouts == nil {
		t.Error("CommandTimeouts is nil")
	}
	if c.CommandOverflows == nil {
		t.Error("CommandOverflows is nil")
	}
	if c.Disconnects == nil {
		t.Error("Disconnects is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSessionLifecycleGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := jkblemetrics.NewCollector(reg)

	c.SessionConnected()
	c.SessionConnected()
	if got := gaugeValue(t, c.ActiveSessions); got != 2 {
		t.Errorf("ActiveSessions = %v, want 2", got)
	}

	c.SessionDisconnected("dev-1", "user")
	if got := gaugeValue(t, c.ActiveSessions); got != 1 {
		t.Errorf("ActiveSessions = %v, want 1", got)
	}

	if got := counterValue(t, c.Disconnects, "dev-1", "user"); got != 1 {
		t.Errorf("Disconnects(dev-1, user) = %v, want 1", got)
	}
}

func TestFrameCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := jkblemetrics.NewCollector(reg)

	c.FrameDecoded("dev-1", "settings")
	c.FrameDecoded("dev-1", "settings")
	c.FrameDropped("dev-1", "checksum_failed")

	if got := counterValue(t, c.FramesDecoded, "dev-1", "settings"); got != 2 {
		t.Errorf("FramesDecoded(dev-1, settings) = %v, want 2", got)
	}
	if got := counterValue(t, c.FramesDropped, "dev-1", "checksum_failed"); got != 1 {
		t.Errorf("FramesDropped(dev-1, checksum_failed) = %v, want 1", got)
	}
}

func TestCommandCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := jkblemetrics.NewCollector(reg)

	c.CommandSent("dev-1", "GET_SETTINGS")
	c.CommandTimedOut("dev-1", "GET_SETTINGS")
	c.CommandOverflowed("dev-1", "TOGGLE_CHARGING")

	if got := counterValue(t, c.CommandsSent, "dev-1", "GET_SETTINGS"); got != 1 {
		t.Errorf("CommandsSent = %v, want 1", got)
	}
	if got := counterValue(t, c.CommandTimeouts, "dev-1", "GET_SETTINGS"); got != 1 {
		t.Errorf("CommandTimeouts = %v, want 1", got)
	}
	if got := counterValue(t, c.CommandOverflows, "dev-1", "TOGGLE_CHARGING"); got != 1 {
		t.Errorf("CommandOverflows = %v, want 1", got)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
