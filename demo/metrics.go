package demo

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts decoding work across every demo a process parses. All
// methods accept a nil receiver.
type Metrics struct {
	frames    *prometheus.CounterVec
	messages  *prometheus.CounterVec
	entityOps *prometheus.CounterVec
	warnings  *prometheus.CounterVec
	demos     *prometheus.CounterVec
	duration  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "demo",
			Name:      "frames_total",
		}, []string{"command"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "demo",
			Name:      "messages_total",
		}, []string{"type"}),
		entityOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entities",
			Name:      "operations_total",
		}, []string{"op"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "demo",
			Name:      "warnings_total",
		}, []string{"kind"}),
		demos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "demo",
			Name:      "parsed_total",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "demo",
			Name:      "parse_duration_seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
}

// Register adds every collector to r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.frames, m.messages, m.entityOps, m.warnings, m.demos, m.duration} {
		if err := r.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *Metrics) frame(c Command) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(c.String()).Inc()
}

func (m *Metrics) message(t MessageType) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) entityOp(op string) {
	if m == nil {
		return
	}
	m.entityOps.WithLabelValues(op).Inc()
}

func (m *Metrics) warning(kind string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(kind).Inc()
}

func (m *Metrics) parsed(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.demos.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}
