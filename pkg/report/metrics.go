package report

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus metrics of a single run.
type Metrics struct {
	Probes      *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	PassedRatio prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netverify_probes_total",
			Help: "Number of probed targets by kind and result.",
		}, []string{"kind", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netverify_probe_duration_seconds",
			Help:    "Time spent probing a single target.",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		PassedRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netverify_last_run_passed_ratio",
			Help: "Ratio of passed targets in the last finished run.",
		}),
	}

	reg.MustRegister(m.Probes, m.Duration, m.PassedRatio)
	return m
}

func (m *Metrics) observe(kind string, passed bool, seconds float64) {
	if m == nil {
		return
	}

	result := "fail"
	if passed {
		result = "pass"
	}
	m.Probes.WithLabelValues(kind, result).Inc()
	m.Duration.WithLabelValues(kind).Observe(seconds)
}
