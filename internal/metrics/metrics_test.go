package metrics

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := NewRegistry("test")
	c := r.RegisterCounter("events_total", "Events seen")

	c.Inc()
	c.Inc()
	c.Add(3)
	if c.Value() != 5 {
		t.Errorf("value = %d, want 5", c.Value())
	}
}

func TestGauge(t *testing.T) {
	r := NewRegistry("test")
	g := r.RegisterGauge("clients", "Connected clients")

	g.Set(4)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 3 {
		t.Errorf("value = %d, want 3", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	r := NewRegistry("test")
	h := r.RegisterHistogram("latency_seconds", "Latency", DurationBuckets)

	h.Observe(0.002)
	h.ObserveDuration(30 * time.Millisecond)
	h.Observe(10) // beyond the last bucket
	if h.Count() != 3 {
		t.Errorf("count = %d, want 3", h.Count())
	}
}

func TestRegisterReturnsExisting(t *testing.T) {
	r := NewRegistry("test")
	a := r.RegisterCounter("dup_total", "First")
	b := r.RegisterCounter("dup_total", "Second")
	if a != b {
		t.Error("re-registration must return the existing counter")
	}
	a.Inc()
	if b.Value() != 1 {
		t.Error("the two handles should share state")
	}
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("modeswitchd")
	c := r.RegisterCounter("mode_events_total", "Mode-change payloads received")
	g := r.RegisterGauge("observers_attached", "Attached observers")
	h := r.RegisterHistogram("switch_seconds", "Switch latency", DurationBuckets)

	c.Add(7)
	g.Set(2)
	h.Observe(0.01)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"# TYPE modeswitchd_mode_events_total counter",
		"modeswitchd_mode_events_total 7",
		"# TYPE modeswitchd_observers_attached gauge",
		"modeswitchd_observers_attached 2",
		"# TYPE modeswitchd_switch_seconds histogram",
		`modeswitchd_switch_seconds_bucket{le="+Inf"} 1`,
		"modeswitchd_switch_seconds_count 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q:\n%s", want, out)
		}
	}
}

func TestSnapshot(t *testing.T) {
	r := NewRegistry("test")
	r.RegisterCounter("a_total", "A").Add(2)
	r.RegisterGauge("b", "B").Set(-1)

	snap := r.Snapshot()
	if snap["test_a_total"] != uint64(2) {
		t.Errorf("snapshot a = %v", snap["test_a_total"])
	}
	if snap["test_b"] != int64(-1) {
		t.Errorf("snapshot b = %v", snap["test_b"])
	}
}

func TestDaemonMetricsRecordSwitch(t *testing.T) {
	m := NewDaemonMetrics(NewRegistry("test"))

	m.RecordSwitch(5*time.Millisecond, nil)
	m.RecordSwitch(5*time.Millisecond, errors.New("fail"))

	if m.SwitchesIssued.Value() != 1 {
		t.Errorf("SwitchesIssued = %d, want 1", m.SwitchesIssued.Value())
	}
	if m.SwitchFailures.Value() != 1 {
		t.Errorf("SwitchFailures = %d, want 1", m.SwitchFailures.Value())
	}
	if m.SwitchLatency.Count() != 2 {
		t.Errorf("latency observations = %d, want 2", m.SwitchLatency.Count())
	}
}
