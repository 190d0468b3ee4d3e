package sampler

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes sampler progress. A nil *Metrics records nothing.
type Metrics struct {
	draws       *prometheus.CounterVec
	divergences *prometheus.CounterVec
	acceptRate  *prometheus.GaugeVec
	stepSize    *prometheus.GaugeVec
}

// NewMetrics creates the sampler collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shine_sampler_draws_total",
			Help: "Number of HMC transitions, by phase.",
		}, []string{"model", "phase"}),
		divergences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shine_sampler_divergences_total",
			Help: "Number of divergent transitions.",
		}, []string{"model", "phase"}),
		acceptRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shine_sampler_accept_rate",
			Help: "Mean acceptance probability of the kept draws.",
		}, []string{"model", "chain"}),
		stepSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shine_sampler_step_size",
			Help: "Adapted leapfrog step size.",
		}, []string{"model", "chain"}),
	}
	reg.MustRegister(m.draws, m.divergences, m.acceptRate, m.stepSize)
	return m
}

func phase(tuning bool) string {
	if tuning {
		return "tune"
	}
	return "sample"
}

func (m *Metrics) observeTransition(model string, tuning, divergent bool) {
	if m == nil {
		return
	}
	m.draws.WithLabelValues(model, phase(tuning)).Inc()
	if divergent {
		m.divergences.WithLabelValues(model, phase(tuning)).Inc()
	}
}

func (m *Metrics) observeChain(model string, chain int, accept, eps float64) {
	if m == nil {
		return
	}
	c := strconv.Itoa(chain)
	m.acceptRate.WithLabelValues(model, c).Set(accept)
	m.stepSize.WithLabelValues(model, c).Set(eps)
}
