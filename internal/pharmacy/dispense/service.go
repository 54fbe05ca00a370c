package dispense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meridian-hms/meridian/internal/money"
	"github.com/meridian-hms/meridian/internal/pharmacy/dosage"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/internal/shared"
)

// TxRepository exposes the reads and writes of one dispense transaction.
type TxRepository interface {
	// LockPrescription loads the prescription holding its row lock until commit.
	LockPrescription(ctx context.Context, id int64) (Prescription, error)
	HasPaidInvoice(ctx context.Context, prescriptionID int64) (bool, error)
	GetMedicine(ctx context.Context, id int64) (stock.Medicine, error)
	Stock() stock.TxRepository
	InsertRecord(ctx context.Context, rec Record) (int64, error)
	MarkDispensed(ctx context.Context, prescriptionID, pharmacistID int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreatePrescription(ctx context.Context, rx Prescription) (Prescription, error)
	GetPrescription(ctx context.Context, id int64) (Prescription, error)
	GetRecord(ctx context.Context, prescriptionID int64) (Record, error)
	// Transition moves a prescription from -> to, failing with shared.ErrInvalidState
	// when the prescription is not in from.
	Transition(ctx context.Context, id int64, from, to Status) (Prescription, error)
}

// Authorizer is the capability check consulted before state changes.
type Authorizer interface {
	CanDispense(actor shared.Actor) bool
	CanManagePrescription(actor shared.Actor) bool
}

// Metrics receives dispense outcomes.
type Metrics interface {
	DispenseOutcome(outcome string)
}

// Observer is notified of committed ledger entries.
type Observer interface {
	Observe(ctx context.Context, entry stock.Entry)
}

// Service runs the dispense authorization workflow.
type Service struct {
	repo     RepositoryPort
	ledger   *stock.Ledger
	auth     Authorizer
	observer Observer
	audit    shared.AuditRecorder
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Options groups optional collaborators.
type Options struct {
	Observer Observer
	Audit    shared.AuditRecorder
	Metrics  Metrics
	Logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *stock.Ledger, auth Authorizer, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		ledger:   ledger,
		auth:     auth,
		observer: opts.Observer,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dispense releases medicine against a paid prescription. The state check,
// finance gate, ledger write and state change commit or roll back together.
func (s *Service) Dispense(ctx context.Context, in Input) (Record, error) {
	rec, entry, err := s.dispense(ctx, in)
	s.recordOutcome(err)
	if err != nil {
		return Record{}, err
	}
	if s.observer != nil {
		s.observer.Observe(ctx, entry)
	}
	shared.RecordBestEffort(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  in.Actor.ID,
		Action:   "pharmacy:dispense",
		Entity:   "prescription",
		EntityID: fmt.Sprintf("%d", rec.PrescriptionID),
		Meta: map[string]any{
			"medicine_id":  rec.MedicineID,
			"quantity":     rec.Quantity,
			"final_amount": money.Format(rec.FinalAmount),
		},
	})
	return rec, nil
}

func (s *Service) dispense(ctx context.Context, in Input) (Record, stock.Entry, error) {
	if s.auth == nil || !s.auth.CanDispense(in.Actor) {
		return Record{}, stock.Entry{}, shared.Wrap(shared.ErrForbidden, "actor cannot dispense")
	}
	var (
		rec   Record
		entry stock.Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rx, err := tx.LockPrescription(ctx, in.PrescriptionID)
		if err != nil {
			return err
		}
		if rx.Status != StatusPending {
			return shared.Wrap(shared.ErrInvalidState, "prescription %d is %s", rx.ID, rx.Status)
		}
		paid, err := tx.HasPaidInvoice(ctx, rx.ID)
		if err != nil {
			return err
		}
		if !paid {
			return shared.Wrap(shared.ErrPaymentNotApproved, "prescription %d", rx.ID)
		}
		med, err := tx.GetMedicine(ctx, in.MedicineID)
		if err != nil {
			return err
		}
		if !med.IsActive {
			return shared.Wrap(shared.ErrMedicineInactive, "%s", med.Name)
		}
		qty, err := RequiredQuantity(med.Category, rx, in.Quantity)
		if err != nil {
			return err
		}
		rec, err = s.price(med, qty, in)
		if err != nil {
			return err
		}

		res, err := s.ledger.Apply(ctx, tx.Stock(), stock.RecordInput{
			MedicineID:     med.ID,
			Type:           stock.TransactionDispensed,
			Quantity:       qty,
			PrescriptionID: &rx.ID,
			UnitCost:       med.BuyingPrice,
			Note:           fmt.Sprintf("prescription %d", rx.ID),
			ActorID:        in.Actor.ID,
		})
		if err != nil {
			return err
		}
		entry = res.Entry

		rec.PrescriptionID = rx.ID
		rec.PharmacistID = in.Actor.ID
		rec.LedgerEntryID = entry.ID
		rec.DispensedAt = s.now()
		id, err := tx.InsertRecord(ctx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		return tx.MarkDispensed(ctx, rx.ID, in.Actor.ID)
	})
	if err != nil {
		return Record{}, stock.Entry{}, err
	}
	return rec, entry, nil
}

// RequiredQuantity resolves how many units a dispense consumes. Dose-based
// categories derive it from the prescription text and ignore explicit input.
func RequiredQuantity(category stock.Category, rx Prescription, explicit *int64) (int64, error) {
	if category.DoseBased() {
		return dosage.Quantity(rx.Dosage, rx.Duration)
	}
	if explicit == nil {
		return 0, shared.Wrap(shared.ErrQuantityRequired, "%s", category)
	}
	if *explicit < 1 {
		return 0, shared.ErrInvalidQuantity
	}
	return *explicit, nil
}

func (s *Service) price(med stock.Medicine, qty int64, in Input) (Record, error) {
	discount, err := money.NonNegative(in.Discount)
	if err != nil {
		return Record{}, err
	}
	additional, err := money.NonNegative(in.AdditionalCharges)
	if err != nil {
		return Record{}, err
	}
	amount := money.Mul(med.SellingPrice, qty)
	final := amount.Sub(discount).Add(additional)
	if final.IsNegative() {
		return Record{}, shared.Wrap(shared.ErrNegativeFinalAmount, "%s", money.Format(final))
	}
	return Record{
		MedicineID:        med.ID,
		Quantity:          qty,
		AmountCharged:     amount,
		Discount:          discount,
		AdditionalCharges: additional,
		AdditionalNote:    strings.TrimSpace(in.AdditionalNote),
		FinalAmount:       final,
	}, nil
}

func (s *Service) recordOutcome(err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(string(shared.KindOf(err)))
		if outcome == "" {
			outcome = "error"
		}
	}
	s.metrics.DispenseOutcome(outcome)
}

// CreatePrescription registers a PENDING prescription.
func (s *Service) CreatePrescription(ctx context.Context, in CreateInput) (Prescription, error) {
	if s.auth == nil || !s.auth.CanManagePrescription(in.Actor) {
		return Prescription{}, shared.ErrForbidden
	}
	if in.PatientID <= 0 || strings.TrimSpace(in.Medication) == "" || strings.TrimSpace(in.Dosage) == "" {
		return Prescription{}, errors.New("dispense: patient, medication and dosage required")
	}
	rx := Prescription{
		PatientID:    in.PatientID,
		Medication:   strings.TrimSpace(in.Medication),
		Dosage:       strings.TrimSpace(in.Dosage),
		Duration:     strings.TrimSpace(in.Duration),
		Instructions: strings.TrimSpace(in.Instructions),
		Status:       StatusPending,
	}
	if in.Actor.Role == shared.RoleDoctor {
		id := in.Actor.ID
		rx.DoctorID = &id
	}
	return s.repo.CreatePrescription(ctx, rx)
}

// GetPrescription loads a prescription.
func (s *Service) GetPrescription(ctx context.Context, id int64) (Prescription, error) {
	return s.repo.GetPrescription(ctx, id)
}

// GetRecord loads the dispense record of a prescription.
func (s *Service) GetRecord(ctx context.Context, prescriptionID int64) (Record, error) {
	return s.repo.GetRecord(ctx, prescriptionID)
}

// Complete closes a dispensed prescription.
func (s *Service) Complete(ctx context.Context, id int64, actor shared.Actor) (Prescription, error) {
	return s.transition(ctx, id, StatusCompleted, actor)
}

// Cancel cancels a pending prescription.
func (s *Service) Cancel(ctx context.Context, id int64, actor shared.Actor) (Prescription, error) {
	return s.transition(ctx, id, StatusCancelled, actor)
}

// Reinitiate returns a cancelled prescription to PENDING.
func (s *Service) Reinitiate(ctx context.Context, id int64, actor shared.Actor) (Prescription, error) {
	return s.transition(ctx, id, StatusPending, actor)
}

// CancelIfPending cancels the prescription when it is still PENDING and reports
// whether it did. It is used by system flows such as invoice voiding.
func (s *Service) CancelIfPending(ctx context.Context, id int64) (bool, error) {
	_, err := s.repo.Transition(ctx, id, StatusPending, StatusCancelled)
	if errors.Is(err, shared.ErrInvalidState) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) transition(ctx context.Context, id int64, to Status, actor shared.Actor) (Prescription, error) {
	if s.auth == nil || !s.auth.CanManagePrescription(actor) {
		return Prescription{}, shared.ErrForbidden
	}
	from, ok := transitions[to]
	if !ok {
		return Prescription{}, shared.ErrInvalidState
	}
	rx, err := s.repo.Transition(ctx, id, from, to)
	if err != nil {
		return Prescription{}, err
	}
	shared.RecordBestEffort(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "pharmacy:prescription_" + strings.ToLower(string(to)),
		Entity:   "prescription",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     map[string]any{"from": from, "to": to},
	})
	return rx, nil
}
