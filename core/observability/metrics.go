package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments of the pipeline. A nil *Metrics
// records nothing.
type Metrics struct {
	FramesCaptured   prometheus.Counter
	SamplesRendered  prometheus.Counter
	Interruptions    prometheus.Counter
	Cancellations    prometheus.Counter
	DroppedDeltas    *prometheus.CounterVec
	CompletedItems   *prometheus.CounterVec
	ExportedClips    *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
	WireEvents       *prometheus.CounterVec
	InterruptOffset  prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments with reg. A nil reg uses a fresh
// registry, which keeps repeated construction in tests from colliding.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Captured microphone frames forwarded to the agent.",
		}),
		SamplesRendered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_rendered_total",
			Help:      "Track samples handed to the output device.",
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Agent responses cut short by the user.",
		}),
		Cancellations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Response cancellations sent to the agent.",
		}),
		DroppedDeltas: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_deltas_total",
			Help:      "Conversation deltas rejected by the reconciler by reason.",
		}, []string{"reason"}),
		CompletedItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completed_items_total",
			Help:      "Completed conversation items by role.",
		}, []string{"role"}),
		ExportedClips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_clips_total",
			Help:      "Item audio exports by result.",
		}, []string{"result"}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Controller state transitions by target state.",
		}, []string{"state"}),
		WireEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wire_events_total",
			Help:      "Realtime events by source and type.",
		}, []string{"source", "type"}),
		InterruptOffset: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "interrupt_offset_ms",
			Help:      "Audio heard before an interruption in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		gatherer: reg,
	}
}

func (m *Metrics) FrameCaptured() {
	if m != nil {
		m.FramesCaptured.Inc()
	}
}

func (m *Metrics) Rendered(samples int) {
	if m != nil && samples > 0 {
		m.SamplesRendered.Add(float64(samples))
	}
}

// Interrupted records an interruption that stopped audio after heard.
func (m *Metrics) Interrupted(heard time.Duration) {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
	m.InterruptOffset.Observe(float64(heard.Milliseconds()))
}

func (m *Metrics) Cancelled() {
	if m != nil {
		m.Cancellations.Inc()
	}
}

func (m *Metrics) DeltaDropped(reason string) {
	if m != nil {
		m.DroppedDeltas.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ItemCompleted(role string) {
	if m != nil {
		m.CompletedItems.WithLabelValues(role).Inc()
	}
}

func (m *Metrics) ClipExported(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ExportedClips.WithLabelValues(result).Inc()
}

func (m *Metrics) StateChanged(state string) {
	if m != nil {
		m.StateTransitions.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) WireEvent(source, eventType string) {
	if m != nil {
		m.WireEvents.WithLabelValues(source, eventType).Inc()
	}
}

// Handler serves the registry the metrics were registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
