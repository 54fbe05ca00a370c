// Package bookkeeping stores append-only revenue and expense entries.
package bookkeeping

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Revenue categories posted by the payment engine.
const (
	CategoryPharmacy = "PHARMACY"
	CategoryServices = "SERVICES"
)

// RevenueEntry is an immutable revenue row.
type RevenueEntry struct {
	ID          int64           `json:"id"`
	OccurredOn  time.Time       `json:"occurred_on"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	InvoiceID   *int64          `json:"invoice_id,omitempty"`
	PaymentID   *int64          `json:"payment_id,omitempty"`
	Description string          `json:"description,omitempty"`
	RecordedBy  int64           `json:"recorded_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ExpenseEntry is an immutable expense row.
type ExpenseEntry struct {
	ID          int64           `json:"id"`
	OccurredOn  time.Time       `json:"occurred_on"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Vendor      string          `json:"vendor,omitempty"`
	Description string          `json:"description,omitempty"`
	RecordedBy  int64           `json:"recorded_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RevenueInput posts revenue.
type RevenueInput struct {
	OccurredOn  time.Time
	Category    string
	Amount      decimal.Decimal
	InvoiceID   *int64
	PaymentID   *int64
	Description string
	ActorID     int64
}

// ExpenseInput records an expense. Amount is decimal text.
type ExpenseInput struct {
	OccurredOn  string `json:"occurred_on"`
	Category    string `json:"category" validate:"required,max=50"`
	Amount      string `json:"amount" validate:"required"`
	Vendor      string `json:"vendor" validate:"max=200"`
	Description string `json:"description" validate:"max=500"`
	ActorID     int64  `json:"-"`
}

// Filter narrows listings by inclusive date range and category.
type Filter struct {
	From     time.Time
	To       time.Time
	Category string
	Limit    int
}

var (
	// ErrCategoryRequired indicates a missing category.
	ErrCategoryRequired = errors.New("bookkeeping: category required")
	// ErrInvalidDate indicates an unparseable occurred_on.
	ErrInvalidDate = errors.New("bookkeeping: invalid date")
)

// DateLayout is the calendar date format used for entries.
const DateLayout = "2006-01-02"
