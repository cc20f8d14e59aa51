package w215

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "graylogic_w215"

// Metrics holds the Prometheus collectors of the bridge. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	cycles   *prometheus.CounterVec
	readings *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by result (login status or configuration_error).",
		}, []string{"result"}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "feature_outcomes_total",
			Help:      "Feature pipeline outcomes by feature type.",
		}, []string{"feature", "outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of poll cycles.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_in_flight",
			Help:      "Poll cycles currently running.",
		}),
	}
	reg.MustRegister(m.cycles, m.readings, m.duration, m.inFlight)
	return m
}

func (m *Metrics) observe(r *Report, err error) {
	if m == nil {
		return
	}

	result := string(r.LoginStatus)
	switch {
	case errors.Is(err, ErrConfiguration):
		result = "configuration_error"
	case result == "":
		result = "unknown"
	}
	m.cycles.WithLabelValues(result).Inc()
	m.duration.Observe(r.Duration().Seconds())

	for typ, f := range r.Features {
		m.readings.WithLabelValues(string(typ), string(f.Outcome)).Inc()
	}
}

func (m *Metrics) cycleStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) cycleFinished() {
	if m != nil {
		m.inFlight.Dec()
	}
}
