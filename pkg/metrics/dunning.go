package metrics

import "github.com/prometheus/client_golang/prometheus"

// DunningMetrics counts reminder-stage sends and account blocks per sweep.
type DunningMetrics struct {
	stages         *prometheus.CounterVec
	lateFees       prometheus.Counter
	blockedSellers prometheus.Counter
}

// NewDunningMetrics registers dunning counters on the provided registerer.
func NewDunningMetrics(reg prometheus.Registerer) *DunningMetrics {
	if reg == nil {
		return &DunningMetrics{}
	}
	stages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dunning_stages_sent_total",
		Help: "Reminder stages sent, by stage.",
	}, []string{"stage"})
	lateFees := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dunning_late_fees_total",
		Help: "Late fees appended to invoices.",
	})
	blocked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dunning_sellers_blocked_total",
		Help: "Seller accounts blocked for unpaid invoices.",
	})
	reg.MustRegister(stages, lateFees, blocked)
	return &DunningMetrics{
		stages:         stages,
		lateFees:       lateFees,
		blockedSellers: blocked,
	}
}

// IncStage counts one sent reminder stage.
func (m *DunningMetrics) IncStage(stage string) {
	if m == nil || m.stages == nil {
		return
	}
	m.stages.WithLabelValues(stage).Inc()
}

// IncLateFee counts one appended late fee.
func (m *DunningMetrics) IncLateFee() {
	if m == nil || m.lateFees == nil {
		return
	}
	m.lateFees.Inc()
}

// IncBlockedSeller counts one blocked seller account.
func (m *DunningMetrics) IncBlockedSeller() {
	if m == nil || m.blockedSellers == nil {
		return
	}
	m.blockedSellers.Inc()
}
