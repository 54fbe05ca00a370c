package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-hms/meridian/internal/shared"
)

// Status enumerates invoice states.
type Status string

const (
	StatusDue  Status = "DUE"
	StatusPaid Status = "PAID"
	StatusVoid Status = "VOID"
)

// Method enumerates payment methods.
type Method string

const (
	MethodCash      Method = "CASH"
	MethodCard      Method = "CARD"
	MethodMpesa     Method = "MPESA"
	MethodInsurance Method = "INSURANCE"
)

// ParseMethod normalises a payment method, defaulting to cash.
func ParseMethod(raw string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case "":
		return MethodCash, nil
	case MethodCash, MethodCard, MethodMpesa, MethodInsurance:
		return m, nil
	}
	return "", ErrInvalidMethod
}

// AmountText is a line amount kept as received. It decodes from JSON numbers
// or strings so a malformed amount reaches Recalc instead of failing the request.
type AmountText string

// UnmarshalJSON accepts a number, a string or null.
func (a *AmountText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = AmountText(s)
		return nil
	}
	*a = AmountText(data)
	return nil
}

// LineItem is one billed service.
type LineItem struct {
	Code   string     `json:"code"`
	Name   string     `json:"name"`
	Amount AmountText `json:"amount"`
}

// Invoice bills a patient. Subtotal and Total are always derived from Services and Discount.
type Invoice struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	PatientID      int64           `json:"patient_id"`
	PrescriptionID *int64          `json:"prescription_id,omitempty"`
	Services       []LineItem      `json:"services"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	Status         Status          `json:"status"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Payment is recorded against one invoice and never retracted.
type Payment struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     Method          `json:"method"`
	Reference  string          `json:"reference,omitempty"`
	RecordedBy int64           `json:"recorded_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateInput creates an invoice. Discount is decimal text; empty means zero.
type CreateInput struct {
	PatientID      int64        `json:"patient_id" validate:"required,gt=0"`
	PrescriptionID *int64       `json:"prescription_id"`
	Services       []LineItem   `json:"services" validate:"dive"`
	Discount       string       `json:"discount"`
	Actor          shared.Actor `json:"-"`
}

// UpdateInput replaces the services and discount of a DUE invoice.
type UpdateInput struct {
	Services []LineItem   `json:"services" validate:"dive"`
	Discount string       `json:"discount"`
	Actor    shared.Actor `json:"-"`
}

// ForPrescriptionInput bills a medicine against a prescription.
type ForPrescriptionInput struct {
	PrescriptionID    int64
	MedicineID        int64
	Quantity          *int64
	Discount          string
	AdditionalCharges string
	AdditionalLabel   string
	Actor             shared.Actor
}

// PaymentInput records a payment. Amount is decimal text.
type PaymentInput struct {
	InvoiceID int64
	Amount    string
	Method    string
	Reference string
	Actor     shared.Actor
}

// PaymentResult is the payment plus the invoice state after it.
type PaymentResult struct {
	Payment   Payment         `json:"payment"`
	Invoice   Invoice         `json:"invoice"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status         Status
	PatientID      int64
	PrescriptionID int64
	From           time.Time
	To             time.Time
	Limit          int
}

var (
	// ErrInvalidMethod indicates an unknown payment method.
	ErrInvalidMethod = errors.New("billing: invalid payment method")
	// ErrPatientRequired indicates a missing patient reference.
	ErrPatientRequired = errors.New("billing: patient required")
)
