package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"callaudio/call"
	"callaudio/device"
	"callaudio/render"
	"callaudio/scene"
)

// Metrics are the orchestrator's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	LifecycleEvents  *prometheus.CounterVec
	SceneTransitions *prometheus.CounterVec
	DeviceSwitches   *prometheus.CounterVec
	RingtoneStarts   prometheus.Counter
	ToneStarts       *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	LiveCalls        prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LifecycleEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callaudio",
			Name:      "lifecycle_events_total",
			Help:      "Call state updates received, by next state.",
		}, []string{"state"}),
		SceneTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callaudio",
			Name:      "scene_transitions_total",
			Help:      "Committed audio scene state changes.",
		}, []string{"from", "to"}),
		DeviceSwitches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callaudio",
			Name:      "device_switches_total",
			Help:      "Audio device changes, by target device.",
		}, []string{"device"}),
		RingtoneStarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "callaudio",
			Name:      "ringtone_starts_total",
			Help:      "Ringtones started.",
		}),
		ToneStarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callaudio",
			Name:      "tone_starts_total",
			Help:      "Call tones started, by tone.",
		}, []string{"tone"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callaudio",
			Name:      "failures_total",
			Help:      "Refused or failed audio operations.",
		}, []string{"op"}),
		LiveCalls: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "callaudio",
			Name:      "live_calls",
			Help:      "Calls known to the orchestrator.",
		}),
	}
}

func (m *Metrics) lifecycle(s call.State) {
	if m != nil {
		m.LifecycleEvents.WithLabelValues(s.String()).Inc()
	}
}

func (m *Metrics) transition(from, to scene.State) {
	if m != nil {
		m.SceneTransitions.WithLabelValues(from.String(), to.String()).Inc()
	}
}

func (m *Metrics) deviceSwitch(to device.Device) {
	if m != nil {
		m.DeviceSwitches.WithLabelValues(to.String()).Inc()
	}
}

func (m *Metrics) ringtone() {
	if m != nil {
		m.RingtoneStarts.Inc()
	}
}

func (m *Metrics) tone(k render.ToneKind) {
	if m != nil {
		m.ToneStarts.WithLabelValues(k.String()).Inc()
	}
}

func (m *Metrics) failure(op string) {
	if m != nil {
		m.Failures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) liveCalls(n int) {
	if m != nil {
		m.LiveCalls.Set(float64(n))
	}
}
