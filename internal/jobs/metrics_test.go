package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, label := range m.GetLabel() {
				key += "," + label.GetName() + "=" + label.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				values[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return values
}

func TestTrackerRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	require.NoError(t, metrics.Track("stock:reconcile").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("stock:reconcile").End(boom), boom)
	metrics.Track("ledger:verify").Skip()

	values := gathered(t, reg)
	require.Equal(t, 1.0, values["odyssey_jobs_total,job=stock:reconcile,status=success"])
	require.Equal(t, 1.0, values["odyssey_jobs_total,job=stock:reconcile,status=failure"])
	require.Equal(t, 1.0, values["odyssey_jobs_total,job=ledger:verify,status=skipped"])
	require.Equal(t, 1.0, values["odyssey_jobs_failures_total,job=stock:reconcile"])
	require.Equal(t, 2.0, values["odyssey_job_duration_seconds,job=stock:reconcile"])
}

func TestIntegrityCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	metrics.AddDrift(3)
	metrics.AddDrift(0)
	metrics.AddLedgerMismatches(2)

	values := gathered(t, reg)
	require.Equal(t, 3.0, values["odyssey_stock_drift_total"])
	require.Equal(t, 2.0, values["odyssey_ledger_mismatch_total"])
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	tracker := metrics.Track("ledger:verify")
	tracker.Skip()
	require.NoError(t, tracker.End(nil))
	metrics.AddDrift(1)
	metrics.AddLedgerMismatches(1)
}
