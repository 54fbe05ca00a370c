package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestDomainCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := NewDomain(reg)

	d.DispenseOutcome("success")
	d.DispenseOutcome("insufficient_stock")
	d.DispenseOutcome("success")
	d.LedgerEntry("DISPENSED", false)
	d.LedgerEntry("ADJUSTMENT", true)
	d.RevenuePostFailed()
	d.ReportCache(true)
	d.ReportCache(false)
	d.ReportBuild(20 * time.Millisecond)
	d.SetLowStock(4)
	d.IntakeRows(3, 1)

	require.Equal(t, 2.0, testutil.ToFloat64(d.dispenses.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(d.ledgerEntries.WithLabelValues("adjustment")))
	require.Equal(t, 1.0, testutil.ToFloat64(d.clamped))
	require.Equal(t, 1.0, testutil.ToFloat64(d.revenueFailed))
	require.Equal(t, 1.0, testutil.ToFloat64(d.reportCache.WithLabelValues("hit")))
	require.Equal(t, 4.0, testutil.ToFloat64(d.lowStock))
	require.Equal(t, 1.0, testutil.ToFloat64(d.intakeRows.WithLabelValues("skipped")))
}

func TestDomainNilSafe(t *testing.T) {
	var d *Domain
	d.DispenseOutcome("success")
	d.LedgerEntry("STOCK_IN", false)
	d.RevenuePostFailed()
	d.SetLowStock(1)
}
