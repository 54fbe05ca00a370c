package stock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-hms/meridian/internal/shared"
)

// TxRepository exposes the transactional operations the ledger needs.
// Every method runs inside the caller's transaction.
type TxRepository interface {
	// DecrementStock atomically subtracts qty when enough stock is on hand and
	// returns the new stock. It fails with shared.ErrInsufficientStock otherwise.
	DecrementStock(ctx context.Context, medicineID, qty int64) (int64, error)
	IncrementStock(ctx context.Context, medicineID, qty int64) (int64, error)
	// LockMedicine reads the medicine row holding an exclusive row lock.
	LockMedicine(ctx context.Context, medicineID int64) (Medicine, error)
	SetStock(ctx context.Context, medicineID, stock int64) error
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
}

// Ledger is the only writer of Medicine.CurrentStock.
type Ledger struct {
	policy UnderflowPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger builds a Ledger. An empty policy means UnderflowClamp.
func NewLedger(policy UnderflowPolicy, logger *slog.Logger) *Ledger {
	if policy == "" {
		policy = UnderflowClamp
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{policy: policy, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Validate checks the input without touching storage.
func (l *Ledger) Validate(in RecordInput) error {
	if !in.Type.Valid() {
		return ErrInvalidType
	}
	if in.MedicineID <= 0 {
		return shared.Wrap(shared.ErrNotFound, "medicine %d", in.MedicineID)
	}
	if in.Type == TransactionAdjustment {
		if in.Quantity == 0 {
			return shared.ErrInvalidQuantity
		}
	} else if in.Quantity <= 0 {
		return shared.ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return shared.ErrNegativeAmount
	}
	return nil
}

// Apply mutates stock and appends the ledger entry inside tx. Both writes
// belong to the caller's transaction, so a failure from Apply must abort it.
func (l *Ledger) Apply(ctx context.Context, tx TxRepository, in RecordInput) (Result, error) {
	if err := l.Validate(in); err != nil {
		return Result{}, err
	}
	entry := Entry{
		MedicineID:     in.MedicineID,
		Type:           in.Type,
		Quantity:       in.Quantity,
		PrescriptionID: in.PrescriptionID,
		BatchNumber:    in.BatchNumber,
		ExpiryDate:     in.ExpiryDate,
		UnitCost:       in.UnitCost,
		Note:           in.Note,
		CreatedBy:      in.ActorID,
		CreatedAt:      l.now(),
	}

	var (
		newStock int64
		err      error
	)
	switch in.Type {
	case TransactionStockIn:
		newStock, err = tx.IncrementStock(ctx, in.MedicineID, in.Quantity)
	case TransactionStockOut, TransactionDispensed:
		newStock, err = tx.DecrementStock(ctx, in.MedicineID, in.Quantity)
	case TransactionAdjustment:
		newStock, entry, err = l.adjust(ctx, tx, entry)
	}
	if err != nil {
		return Result{}, err
	}
	entry.StockAfter = newStock

	id, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return Result{}, fmt.Errorf("stock: insert entry: %w", err)
	}
	entry.ID = id
	return Result{Entry: entry, NewStock: newStock}, nil
}

func (l *Ledger) adjust(ctx context.Context, tx TxRepository, entry Entry) (int64, Entry, error) {
	med, err := tx.LockMedicine(ctx, entry.MedicineID)
	if err != nil {
		return 0, entry, err
	}
	entry.RequestedDelta = entry.Quantity
	target := med.CurrentStock + entry.Quantity
	if target < 0 {
		if l.policy == UnderflowReject {
			return 0, entry, shared.Wrap(shared.ErrInsufficientStock,
				"adjustment %d exceeds stock %d of medicine %d", entry.Quantity, med.CurrentStock, med.ID)
		}
		entry.Quantity = -med.CurrentStock
		target = 0
		l.logger.WarnContext(ctx, "stock adjustment clamped at zero",
			slog.Int64("medicine_id", med.ID),
			slog.Int64("requested_delta", entry.RequestedDelta),
			slog.Int64("applied_delta", entry.Quantity),
			slog.Int64("stock_before", med.CurrentStock),
		)
	}
	if err := tx.SetStock(ctx, med.ID, target); err != nil {
		return 0, entry, err
	}
	return target, entry, nil
}
