package metrics

import "github.com/prometheus/client_golang/prometheus"

// SettlementMetrics counts money-moving outcomes so duplicate-suppression and
// parked payouts are visible on a dashboard.
type SettlementMetrics struct {
	transfers      *prometheus.CounterVec
	refunds        *prometheus.CounterVec
	parkedReleases prometheus.Counter
}

// NewSettlementMetrics registers settlement counters on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_transfers_total",
		Help: "Transfer attempts by outcome (released, already_released, failed).",
	}, []string{"outcome"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_refunds_total",
		Help: "Refund attempts by outcome (refunded, already_refunded, refused, failed).",
	}, []string{"outcome"})
	parked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_parked_releases_total",
		Help: "Releases deferred because the seller has not finished payout onboarding.",
	})
	reg.MustRegister(transfers, refunds, parked)
	return &SettlementMetrics{
		transfers:      transfers,
		refunds:        refunds,
		parkedReleases: parked,
	}
}

// IncTransfer counts a transfer attempt with the given outcome label.
func (m *SettlementMetrics) IncTransfer(outcome string) {
	if m == nil || m.transfers == nil {
		return
	}
	m.transfers.WithLabelValues(outcome).Inc()
}

// IncRefund counts a refund attempt with the given outcome label.
func (m *SettlementMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(outcome).Inc()
}

// IncParkedRelease counts a release parked for onboarding.
func (m *SettlementMetrics) IncParkedRelease() {
	if m == nil || m.parkedReleases == nil {
		return
	}
	m.parkedReleases.Inc()
}
