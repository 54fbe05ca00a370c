package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies how a medicine is sold.
type Category string

const (
	CategoryTablet    Category = "TABLET"
	CategoryCapsule   Category = "CAPSULE"
	CategorySyrup     Category = "SYRUP"
	CategoryInjection Category = "INJECTION"
	CategoryCream     Category = "CREAM"
	CategoryDrops     Category = "DROPS"
	CategoryInhaler   Category = "INHALER"
	CategoryOther     Category = "OTHER"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryTablet, CategoryCapsule, CategorySyrup, CategoryInjection,
		CategoryCream, CategoryDrops, CategoryInhaler, CategoryOther:
		return true
	}
	return false
}

// DoseBased reports whether one unit of the category is a single administration,
// which lets the dispensed quantity be derived from dosage text.
func (c Category) DoseBased() bool {
	return c == CategoryTablet || c == CategoryCapsule
}

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	// TransactionStockIn records received stock.
	TransactionStockIn TransactionType = "STOCK_IN"
	// TransactionStockOut records stock removed outside a prescription.
	TransactionStockOut TransactionType = "STOCK_OUT"
	// TransactionAdjustment records a signed correction.
	TransactionAdjustment TransactionType = "ADJUSTMENT"
	// TransactionDispensed records stock released against a prescription.
	TransactionDispensed TransactionType = "DISPENSED"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionStockIn, TransactionStockOut, TransactionAdjustment, TransactionDispensed:
		return true
	}
	return false
}

// StockStatus summarises the stock position against the reorder level.
type StockStatus string

const (
	StatusOutOfStock StockStatus = "OUT_OF_STOCK"
	StatusLowStock   StockStatus = "LOW_STOCK"
	StatusInStock    StockStatus = "IN_STOCK"
)

// UnderflowPolicy decides what happens when a negative adjustment exceeds the stock on hand.
type UnderflowPolicy string

const (
	// UnderflowClamp sets stock to zero and records the applied delta.
	UnderflowClamp UnderflowPolicy = "clamp"
	// UnderflowReject fails the adjustment with InsufficientStock.
	UnderflowReject UnderflowPolicy = "reject"
)

// Medicine is a catalog item whose stock is owned by the ledger.
type Medicine struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Category     Category        `json:"category"`
	CurrentStock int64           `json:"current_stock"`
	ReorderLevel int64           `json:"reorder_level"`
	BuyingPrice  decimal.Decimal `json:"buying_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Status derives the stock status.
func (m Medicine) Status() StockStatus {
	switch {
	case m.CurrentStock <= 0:
		return StatusOutOfStock
	case m.CurrentStock <= m.ReorderLevel:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// Entry is an immutable ledger row.
type Entry struct {
	ID             int64           `json:"id"`
	MedicineID     int64           `json:"medicine_id"`
	Type           TransactionType `json:"transaction_type"`
	Quantity       int64           `json:"quantity"`
	RequestedDelta int64           `json:"requested_delta,omitempty"`
	StockAfter     int64           `json:"stock_after"`
	PrescriptionID *int64          `json:"prescription_id,omitempty"`
	BatchNumber    string          `json:"batch_number,omitempty"`
	ExpiryDate     *time.Time      `json:"expiry_date,omitempty"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Note           string          `json:"note,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Clamped reports whether an adjustment applied less than was requested.
func (e Entry) Clamped() bool {
	return e.Type == TransactionAdjustment && e.RequestedDelta != e.Quantity
}

// RecordInput describes a ledger write.
type RecordInput struct {
	MedicineID     int64           `json:"medicine_id" validate:"required,gt=0"`
	Type           TransactionType `json:"transaction_type" validate:"required"`
	Quantity       int64           `json:"quantity"`
	PrescriptionID *int64          `json:"prescription_id,omitempty"`
	BatchNumber    string          `json:"batch_number,omitempty" validate:"max=64"`
	ExpiryDate     *time.Time      `json:"expiry_date,omitempty"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Note           string          `json:"note,omitempty" validate:"max=500"`
	ActorID        int64           `json:"-"`
}

// Result is the outcome of a ledger write.
type Result struct {
	Entry    Entry `json:"entry"`
	NewStock int64 `json:"new_stock"`
}

// CreateMedicineInput describes a catalog addition. Stock always starts at zero.
type CreateMedicineInput struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Category     Category        `json:"category" validate:"required"`
	ReorderLevel int64           `json:"reorder_level" validate:"gte=0"`
	BuyingPrice  decimal.Decimal `json:"buying_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	ActorID      int64           `json:"-"`
}

// MedicineFilter narrows catalog listings.
type MedicineFilter struct {
	Search     string
	Category   Category
	ActiveOnly bool
	Status     StockStatus
	Limit      int
}

var (
	// ErrInvalidType indicates an unknown ledger transaction type.
	ErrInvalidType = errors.New("stock: invalid transaction type")
	// ErrInvalidCategory indicates an unknown medicine category.
	ErrInvalidCategory = errors.New("stock: invalid category")
	// ErrInvalidMedicine indicates incomplete medicine data.
	ErrInvalidMedicine = errors.New("stock: medicine name required")
)
