// Package position aggregates the hospital's financial position over a date range.
package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of period bounds.
const DateLayout = "2006-01-02"

// Query selects the reporting period. Zero bounds fall back to the current month.
type Query struct {
	Start time.Time
	End   time.Time
}

// Period is the resolved, inclusive reporting range.
type Period struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// CategoryTotal is one row of a breakdown.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// Totals are the headline figures.
type Totals struct {
	Revenue            decimal.Decimal `json:"revenue"`
	Expenses           decimal.Decimal `json:"expenses"`
	NetPosition        decimal.Decimal `json:"net_position"`
	AccountsReceivable decimal.Decimal `json:"accounts_receivable"`
	CashCollected      decimal.Decimal `json:"cash_collected"`
}

// Breakdown groups revenue and expenses by category, largest first.
type Breakdown struct {
	RevenueByCategory  []CategoryTotal `json:"revenue_by_category"`
	ExpensesByCategory []CategoryTotal `json:"expenses_by_category"`
}

// Report is the financial position for a period.
type Report struct {
	Period      Period    `json:"period"`
	Totals      Totals    `json:"totals"`
	Breakdown   Breakdown `json:"breakdown"`
	GeneratedAt time.Time `json:"generated_at"`
}
