package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking dialogue.
type BookingMetrics struct {
	turnsTotal          *prometheus.CounterVec
	turnLatency         *prometheus.HistogramVec
	modelFallbacks      *prometheus.CounterVec
	toolCalls           *prometheus.CounterVec
	appointmentsTotal   *prometheus.CounterVec
	persistenceFailures *prometheus.CounterVec
	speechFallbacks     *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total user turns processed by outcome",
		}, []string{"outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "dialogue",
			Name:      "turn_latency_seconds",
			Help:      "Latency from utterance to reply",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"outcome"}),
		modelFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "dialogue",
			Name:      "model_fallback_total",
			Help:      "Secondary model fallbacks by result",
		}, []string{"status"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "tools",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and result",
		}, []string{"tool", "status"}),
		appointmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "tools",
			Name:      "appointments_total",
			Help:      "Appointment commit attempts by result",
		}, []string{"status"}),
		persistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "store",
			Name:      "persistence_failures_total",
			Help:      "Failed fire-and-forget writes by store",
		}, []string{"store"}),
		speechFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "speech",
			Name:      "speech_fallback_total",
			Help:      "Speech backend fallbacks by stage",
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.turnsTotal,
		m.turnLatency,
		m.modelFallbacks,
		m.toolCalls,
		m.appointmentsTotal,
		m.persistenceFailures,
		m.speechFallbacks,
	)
	return m
}

func (m *BookingMetrics) ObserveTurn(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *BookingMetrics) ObserveModelFallback(status string) {
	if m == nil {
		return
	}
	m.modelFallbacks.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

func (m *BookingMetrics) ObserveAppointment(status string) {
	if m == nil {
		return
	}
	m.appointmentsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObservePersistenceFailure(store string) {
	if m == nil {
		return
	}
	m.persistenceFailures.WithLabelValues(store).Inc()
}

func (m *BookingMetrics) ObserveSpeechFallback(stage string) {
	if m == nil {
		return
	}
	m.speechFallbacks.WithLabelValues(stage).Inc()
}
