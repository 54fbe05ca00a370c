package stock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridian-hms/meridian/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateMedicine(ctx context.Context, med Medicine) (Medicine, error)
	GetMedicine(ctx context.Context, id int64) (Medicine, error)
	FindMedicineByName(ctx context.Context, name string) (Medicine, error)
	ListMedicines(ctx context.Context, filter MedicineFilter) ([]Medicine, error)
	SetActive(ctx context.Context, id int64, active bool) error
	ListEntries(ctx context.Context, medicineID int64, limit int) ([]Entry, error)
}

// Metrics receives ledger counters.
type Metrics interface {
	LedgerEntry(txType string, clamped bool)
}

// Service coordinates ledger writes and the medicine catalog.
type Service struct {
	repo    RepositoryPort
	ledger  *Ledger
	audit   shared.AuditRecorder
	metrics Metrics
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, audit shared.AuditRecorder, metrics Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = NewLedger(UnderflowClamp, logger)
	}
	return &Service{repo: repo, ledger: ledger, audit: audit, metrics: metrics, logger: logger}
}

// Ledger returns the ledger used by this service so other workflows can apply
// entries inside their own transaction.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Record writes one ledger entry and the matching stock mutation atomically.
func (s *Service) Record(ctx context.Context, in RecordInput) (Result, error) {
	if err := s.ledger.Validate(in); err != nil {
		return Result{}, err
	}
	var res Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		res, err = s.ledger.Apply(ctx, tx, in)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.Observe(ctx, res.Entry)
	return res, nil
}

// Observe emits metrics and the audit row for a committed entry.
func (s *Service) Observe(ctx context.Context, entry Entry) {
	if s.metrics != nil {
		s.metrics.LedgerEntry(string(entry.Type), entry.Clamped())
	}
	meta := map[string]any{
		"medicine_id": entry.MedicineID,
		"quantity":    entry.Quantity,
		"stock_after": entry.StockAfter,
	}
	if entry.Type == TransactionAdjustment {
		meta["requested_delta"] = entry.RequestedDelta
	}
	if entry.PrescriptionID != nil {
		meta["prescription_id"] = *entry.PrescriptionID
	}
	shared.RecordBestEffort(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  entry.CreatedBy,
		Action:   fmt.Sprintf("stock:%s", strings.ToLower(string(entry.Type))),
		Entity:   "inventory_transaction",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta:     meta,
	})
}

// CreateMedicine adds a catalog item with zero stock.
func (s *Service) CreateMedicine(ctx context.Context, in CreateMedicineInput) (Medicine, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Medicine{}, ErrInvalidMedicine
	}
	if !in.Category.Valid() {
		return Medicine{}, ErrInvalidCategory
	}
	if in.ReorderLevel < 0 {
		return Medicine{}, shared.ErrInvalidQuantity
	}
	if in.BuyingPrice.IsNegative() || in.SellingPrice.IsNegative() {
		return Medicine{}, shared.ErrNegativeAmount
	}
	med, err := s.repo.CreateMedicine(ctx, Medicine{
		Name:         name,
		Category:     in.Category,
		ReorderLevel: in.ReorderLevel,
		BuyingPrice:  in.BuyingPrice,
		SellingPrice: in.SellingPrice,
		IsActive:     true,
	})
	if err != nil {
		return Medicine{}, err
	}
	shared.RecordBestEffort(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   "stock:medicine_create",
		Entity:   "medicine",
		EntityID: fmt.Sprintf("%d", med.ID),
		Meta:     map[string]any{"name": med.Name, "category": med.Category},
	})
	return med, nil
}

// GetMedicine loads a medicine.
func (s *Service) GetMedicine(ctx context.Context, id int64) (Medicine, error) {
	return s.repo.GetMedicine(ctx, id)
}

// FindMedicineByName resolves a medicine by case-insensitive name.
func (s *Service) FindMedicineByName(ctx context.Context, name string) (Medicine, error) {
	return s.repo.FindMedicineByName(ctx, strings.TrimSpace(name))
}

// ListMedicines lists catalog items.
func (s *Service) ListMedicines(ctx context.Context, filter MedicineFilter) ([]Medicine, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, ErrInvalidCategory
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	return s.repo.ListMedicines(ctx, filter)
}

// LowStock lists active medicines at or below their reorder level, including out of stock.
func (s *Service) LowStock(ctx context.Context) ([]Medicine, error) {
	return s.repo.ListMedicines(ctx, MedicineFilter{ActiveOnly: true, Status: StatusLowStock, Limit: 500})
}

// OutOfStock lists active medicines with no stock.
func (s *Service) OutOfStock(ctx context.Context) ([]Medicine, error) {
	return s.repo.ListMedicines(ctx, MedicineFilter{ActiveOnly: true, Status: StatusOutOfStock, Limit: 500})
}

// SetActive enables or soft-disables a medicine. Medicines are never deleted.
func (s *Service) SetActive(ctx context.Context, id int64, active bool, actorID int64) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	shared.RecordBestEffort(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   "stock:medicine_active",
		Entity:   "medicine",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     map[string]any{"is_active": active},
	})
	return nil
}

// History returns ledger entries of a medicine, newest first.
func (s *Service) History(ctx context.Context, medicineID int64, limit int) ([]Entry, error) {
	if _, err := s.repo.GetMedicine(ctx, medicineID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListEntries(ctx, medicineID, limit)
}
