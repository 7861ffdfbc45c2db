package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCronJobMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.IncSuccess("invoice-reminders")
	m.IncSuccess("invoice-reminders")
	m.IncFailure("pending-payouts")
	m.ObserveDuration("invoice-reminders", 250*time.Millisecond)

	if got := testutil.ToFloat64(m.success.WithLabelValues("invoice-reminders")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.failure.WithLabelValues("pending-payouts")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestNilReceiversAreSafe(t *testing.T) {
	var m *CronJobMetrics
	m.IncSuccess("x")
	m.IncFailure("x")
	m.ObserveDuration("x", time.Second)

	empty := &CronJobMetrics{}
	empty.IncSuccess("x")
}
