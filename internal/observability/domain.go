package observability

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Domain holds pharmacy and finance counters. It satisfies the metrics
// ports of the stock, dispense, billing and position services.
type Domain struct {
	dispenses     *prometheus.CounterVec
	ledgerEntries *prometheus.CounterVec
	clamped       prometheus.Counter
	revenueFailed prometheus.Counter
	reportCache   *prometheus.CounterVec
	reportBuild   prometheus.Histogram
	lowStock      prometheus.Gauge
	intakeRows    *prometheus.CounterVec
}

// NewDomain registers the domain collectors with reg.
func NewDomain(reg prometheus.Registerer) *Domain {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	d := &Domain{
		dispenses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_dispense_total",
			Help: "Dispense attempts by outcome.",
		}, []string{"outcome"}),
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_ledger_entries_total",
			Help: "Stock ledger entries written by transaction type.",
		}, []string{"type"}),
		clamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_ledger_adjustments_clamped_total",
			Help: "Adjustments whose negative delta was clamped at zero stock.",
		}),
		revenueFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meridian_revenue_post_failures_total",
			Help: "Payments whose revenue entry could not be posted.",
		}),
		reportCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_report_cache_requests_total",
			Help: "Financial position cache lookups by result.",
		}, []string{"result"}),
		reportBuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meridian_report_build_duration_seconds",
			Help:    "Time spent aggregating a financial position report.",
			Buckets: prometheus.DefBuckets,
		}),
		lowStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meridian_medicines_low_stock",
			Help: "Active medicines at or below their reorder level.",
		}),
		intakeRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_intake_rows_total",
			Help: "Vendor invoice rows processed by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(d.dispenses, d.ledgerEntries, d.clamped, d.revenueFailed,
		d.reportCache, d.reportBuild, d.lowStock, d.intakeRows)
	return d
}

// DispenseOutcome counts one dispense attempt.
func (d *Domain) DispenseOutcome(outcome string) {
	if d == nil {
		return
	}
	d.dispenses.WithLabelValues(outcome).Inc()
}

// LedgerEntry counts one committed ledger entry.
func (d *Domain) LedgerEntry(txType string, clamped bool) {
	if d == nil {
		return
	}
	d.ledgerEntries.WithLabelValues(strings.ToLower(txType)).Inc()
	if clamped {
		d.clamped.Inc()
	}
}

// RevenuePostFailed counts a payment whose revenue entry was lost.
func (d *Domain) RevenuePostFailed() {
	if d == nil {
		return
	}
	d.revenueFailed.Inc()
}

// ReportCache counts a report cache lookup.
func (d *Domain) ReportCache(hit bool) {
	if d == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	d.reportCache.WithLabelValues(result).Inc()
}

// ReportBuild observes report aggregation latency.
func (d *Domain) ReportBuild(elapsed time.Duration) {
	if d == nil {
		return
	}
	d.reportBuild.Observe(elapsed.Seconds())
}

// SetLowStock publishes the low-stock medicine count.
func (d *Domain) SetLowStock(n int) {
	if d == nil {
		return
	}
	d.lowStock.Set(float64(n))
}

// IntakeRows counts imported and skipped vendor invoice rows.
func (d *Domain) IntakeRows(imported, skipped int) {
	if d == nil {
		return
	}
	d.intakeRows.WithLabelValues("imported").Add(float64(imported))
	d.intakeRows.WithLabelValues("skipped").Add(float64(skipped))
}
