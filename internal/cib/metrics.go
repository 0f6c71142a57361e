package cib

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts commit outcomes and verification results. A nil *Metrics
// records nothing.
type Metrics struct {
	Commits       *prometheus.CounterVec
	Verifications *prometheus.CounterVec
}

// NewMetrics creates the session counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Commits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cibconf_commits_total",
			Help: "Commit attempts by result",
		}, []string{"result"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cibconf_verifications_total",
			Help: "Verification runs by severity",
		}, []string{"severity"}),
	}
}

// Commit results.
const (
	resultCommitted = "committed"
	resultForced    = "forced"
	resultNoop      = "noop"
	resultRejected  = "rejected"
	resultFailed    = "failed"
)

func (m *Metrics) recordCommit(result string) {
	if m == nil || m.Commits == nil {
		return
	}
	m.Commits.WithLabelValues(result).Inc()
}

func (m *Metrics) recordVerification(sev Severity) {
	if m == nil || m.Verifications == nil {
		return
	}
	m.Verifications.WithLabelValues(sev.String()).Inc()
}
