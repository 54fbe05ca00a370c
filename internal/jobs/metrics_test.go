package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRunRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	run := m.Track("pharmacy:low_stock_scan")
	run.Items(3)
	require.NoError(t, run.End(nil))

	boom := errors.New("boom")
	run = m.Track("pharmacy:low_stock_scan")
	run.Items(7)
	require.ErrorIs(t, run.End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("pharmacy:low_stock_scan", outcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("pharmacy:low_stock_scan", outcomeFailed)))
	require.Equal(t, 3.0, testutil.ToFloat64(m.items.WithLabelValues("pharmacy:low_stock_scan")))
	require.Positive(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("pharmacy:low_stock_scan")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	run := m.Track("idempotency:cleanup")
	run.Items(1)
	require.NoError(t, run.End(nil))
}
