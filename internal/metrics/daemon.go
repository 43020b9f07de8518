package metrics

import "time"

// DaemonMetrics bundles the metrics the daemon records on its hot
// paths.
type DaemonMetrics struct {
	// ModeEvents counts every mode-change payload received.
	ModeEvents *Counter

	// NormalTransitions counts payloads classified as normal mode.
	NormalTransitions *Counter

	// SwitchesIssued counts IME switch calls actually sent.
	SwitchesIssued *Counter

	// SwitchFailures counts IME switch calls that errored.
	SwitchFailures *Counter

	// AttachFailures counts failed observer attach attempts.
	AttachFailures *Counter

	// SetupPasses counts observer setup passes (initial + reconfigs).
	SetupPasses *Counter

	// AttachedObservers is the number of families attached in the
	// current pass.
	AttachedObservers *Gauge

	// HeuristicActive is 1 while the fallback observer is installed.
	HeuristicActive *Gauge

	// ConnectedClients is the number of live IPC connections.
	ConnectedClients *Gauge

	// SwitchLatency is the latency distribution of IME switch calls.
	SwitchLatency *Histogram
}

// NewDaemonMetrics registers the daemon metric set on a registry.
func NewDaemonMetrics(r *Registry) *DaemonMetrics {
	if r == nil {
		r = Default()
	}
	return &DaemonMetrics{
		ModeEvents:        r.RegisterCounter("mode_events_total", "Mode-change payloads received"),
		NormalTransitions: r.RegisterCounter("normal_transitions_total", "Payloads classified as normal mode"),
		SwitchesIssued:    r.RegisterCounter("ime_switches_total", "IME switch calls issued"),
		SwitchFailures:    r.RegisterCounter("ime_switch_failures_total", "IME switch calls that failed"),
		AttachFailures:    r.RegisterCounter("observer_attach_failures_total", "Failed observer attach attempts"),
		SetupPasses:       r.RegisterCounter("setup_passes_total", "Observer setup passes"),
		AttachedObservers: r.RegisterGauge("observers_attached", "Observers attached in the current pass"),
		HeuristicActive:   r.RegisterGauge("heuristic_active", "1 while the fallback observer is installed"),
		ConnectedClients:  r.RegisterGauge("ipc_clients", "Live IPC connections"),
		SwitchLatency:     r.RegisterHistogram("ime_switch_seconds", "IME switch call latency", DurationBuckets),
	}
}

// RecordSwitch observes one switch call's outcome and latency.
func (m *DaemonMetrics) RecordSwitch(d time.Duration, err error) {
	m.SwitchLatency.ObserveDuration(d)
	if err != nil {
		m.SwitchFailures.Inc()
	} else {
		m.SwitchesIssued.Inc()
	}
}
