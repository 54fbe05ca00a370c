package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-hms/meridian/internal/finance/bookkeeping"
	"github.com/meridian-hms/meridian/internal/money"
	"github.com/meridian-hms/meridian/internal/pharmacy/dispense"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/internal/shared"
)

// TxRepository exposes the reads and writes of one invoice transaction.
type TxRepository interface {
	// LockInvoice loads the invoice holding its row lock until commit.
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	// SetStatus moves the invoice from -> to, failing with shared.ErrInvalidState
	// when the invoice is not in from.
	SetStatus(ctx context.Context, id int64, from, to Status) error
	// ClaimKey records an idempotency key; it is released if the transaction rolls back.
	ClaimKey(ctx context.Context, key, scope string) error
}

// RepositoryPort abstracts persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	// VoidInvoice sets VOID on a non-void invoice and reports whether it changed.
	VoidInvoice(ctx context.Context, id int64) (Invoice, bool, error)
}

// Authorizer is the capability check consulted before state changes.
type Authorizer interface {
	CanManageInvoices(actor shared.Actor) bool
	CanRecordPayment(actor shared.Actor) bool
	CanVoidInvoice(actor shared.Actor) bool
}

// RevenuePoster books collected money.
type RevenuePoster interface {
	PostRevenue(ctx context.Context, in bookkeeping.RevenueInput) (bookkeeping.RevenueEntry, error)
}

// Prescriptions is the view of the dispense workflow billing depends on.
type Prescriptions interface {
	GetPrescription(ctx context.Context, id int64) (dispense.Prescription, error)
	CancelIfPending(ctx context.Context, id int64) (bool, error)
}

// Medicines resolves catalog entries for medicine lines.
type Medicines interface {
	GetMedicine(ctx context.Context, id int64) (stock.Medicine, error)
}

// Invalidator is told when figures read by reports change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Metrics receives billing side effect failures.
type Metrics interface {
	RevenuePostFailed()
}

// Options groups optional collaborators.
type Options struct {
	Revenue       RevenuePoster
	Prescriptions Prescriptions
	Medicines     Medicines
	Cache         Invalidator
	Audit         shared.AuditRecorder
	Metrics       Metrics
	Logger        *slog.Logger
}

// Service runs invoice and payment workflows.
type Service struct {
	repo    RepositoryPort
	auth    Authorizer
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	numbers func() string
}

// NewService builds Service.
func NewService(repo RepositoryPort, auth Authorizer, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		auth:    auth,
		opts:    opts,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		numbers: invoiceNumber,
	}
}

func invoiceNumber() string {
	return "INV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// Create issues a DUE invoice.
func (s *Service) Create(ctx context.Context, in CreateInput) (Invoice, error) {
	if s.auth == nil || !s.auth.CanManageInvoices(in.Actor) {
		return Invoice{}, shared.Wrap(shared.ErrForbidden, "actor cannot manage invoices")
	}
	if in.PatientID <= 0 {
		return Invoice{}, ErrPatientRequired
	}
	discount, err := money.NonNegative(in.Discount)
	if err != nil {
		return Invoice{}, err
	}
	inv := Invoice{
		Number:         s.numbers(),
		PatientID:      in.PatientID,
		PrescriptionID: in.PrescriptionID,
		Services:       cleanItems(in.Services),
		Discount:       discount,
		Status:         StatusDue,
		CreatedBy:      in.Actor.ID,
	}
	s.recalc(&inv)
	created, err := s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, err
	}
	s.afterChange(ctx, in.Actor.ID, "billing:invoice:create", created, map[string]any{"total": money.Format(created.Total)})
	return created, nil
}

// CreateForPrescription bills a medicine against a PENDING prescription.
// Dose-based medicine quantities are derived the same way dispensing derives them;
// other categories use the explicit quantity or one unit.
func (s *Service) CreateForPrescription(ctx context.Context, in ForPrescriptionInput) (Invoice, error) {
	if s.auth == nil || !s.auth.CanManageInvoices(in.Actor) {
		return Invoice{}, shared.Wrap(shared.ErrForbidden, "actor cannot manage invoices")
	}
	if s.opts.Prescriptions == nil || s.opts.Medicines == nil {
		return Invoice{}, errors.New("billing: prescription billing not configured")
	}
	rx, err := s.opts.Prescriptions.GetPrescription(ctx, in.PrescriptionID)
	if err != nil {
		return Invoice{}, err
	}
	if rx.Status != dispense.StatusPending {
		return Invoice{}, shared.Wrap(shared.ErrInvalidState, "prescription is %s", rx.Status)
	}
	med, err := s.opts.Medicines.GetMedicine(ctx, in.MedicineID)
	if err != nil {
		return Invoice{}, err
	}
	if !med.IsActive {
		return Invoice{}, shared.Wrap(shared.ErrMedicineInactive, "%s", med.Name)
	}
	explicit := in.Quantity
	if explicit == nil && !med.Category.DoseBased() {
		one := int64(1)
		explicit = &one
	}
	qty, err := dispense.RequiredQuantity(med.Category, rx, explicit)
	if err != nil {
		return Invoice{}, err
	}
	discount, err := money.NonNegative(in.Discount)
	if err != nil {
		return Invoice{}, err
	}
	additional, err := money.NonNegative(in.AdditionalCharges)
	if err != nil {
		return Invoice{}, err
	}
	items := []LineItem{{
		Code:   fmt.Sprintf("MED-%d", med.ID),
		Name:   fmt.Sprintf("%s (x%d)", med.Name, qty),
		Amount: AmountText(money.Format(money.Mul(med.SellingPrice, qty))),
	}}
	if additional.IsPositive() {
		label := strings.TrimSpace(in.AdditionalLabel)
		if label == "" {
			label = "Additional charges"
		}
		items = append(items, LineItem{Code: "ADD-CHARGE", Name: label, Amount: AmountText(money.Format(additional))})
	}
	rxID := rx.ID
	inv := Invoice{
		Number:         s.numbers(),
		PatientID:      rx.PatientID,
		PrescriptionID: &rxID,
		Services:       items,
		Discount:       discount,
		Status:         StatusDue,
		CreatedBy:      in.Actor.ID,
	}
	s.recalc(&inv)
	created, err := s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, err
	}
	s.afterChange(ctx, in.Actor.ID, "billing:invoice:create", created, map[string]any{
		"prescription_id": rx.ID,
		"medicine_id":     med.ID,
		"quantity":        qty,
		"total":           money.Format(created.Total),
	})
	return created, nil
}

// Update replaces services and discount on a DUE invoice and recomputes totals.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Invoice, error) {
	if s.auth == nil || !s.auth.CanManageInvoices(in.Actor) {
		return Invoice{}, shared.Wrap(shared.ErrForbidden, "actor cannot manage invoices")
	}
	discount, err := money.NonNegative(in.Discount)
	if err != nil {
		return Invoice{}, err
	}
	var updated Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDue {
			return shared.Wrap(shared.ErrInvalidState, "invoice is %s", inv.Status)
		}
		inv.Services = cleanItems(in.Services)
		inv.Discount = discount
		s.recalc(&inv)
		updated, err = tx.UpdateInvoice(ctx, inv)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.afterChange(ctx, in.Actor.ID, "billing:invoice:update", updated, map[string]any{"total": money.Format(updated.Total)})
	return updated, nil
}

// RecordPayment appends a payment and marks the invoice PAID once payments
// cover its total. Revenue posting happens after commit and never fails the payment.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	if s.auth == nil || !s.auth.CanRecordPayment(in.Actor) {
		return PaymentResult{}, shared.Wrap(shared.ErrForbidden, "actor cannot record payments")
	}
	amount, err := money.Positive(in.Amount)
	if err != nil {
		return PaymentResult{}, err
	}
	method, err := ParseMethod(in.Method)
	if err != nil {
		return PaymentResult{}, err
	}
	reference := strings.TrimSpace(in.Reference)

	var result PaymentResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusVoid {
			return shared.Wrap(shared.ErrVoidInvoice, "%s", inv.Number)
		}
		if reference != "" {
			if err := tx.ClaimKey(ctx, fmt.Sprintf("payment:%d:%s", inv.ID, reference), "billing"); err != nil {
				return err
			}
		}
		payment, err := tx.InsertPayment(ctx, Payment{
			InvoiceID:  inv.ID,
			Amount:     amount,
			Method:     method,
			Reference:  reference,
			RecordedBy: in.Actor.ID,
		})
		if err != nil {
			return err
		}
		paid, err := tx.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		if inv.Status == StatusDue && paid.GreaterThanOrEqual(inv.Total) {
			if err := tx.SetStatus(ctx, inv.ID, StatusDue, StatusPaid); err != nil {
				return err
			}
			inv.Status = StatusPaid
		}
		result = PaymentResult{Payment: payment, Invoice: inv, TotalPaid: paid}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	s.postRevenue(ctx, result)
	s.afterChange(ctx, in.Actor.ID, "billing:payment:record", result.Invoice, map[string]any{
		"payment_id": result.Payment.ID,
		"amount":     money.Format(amount),
		"method":     string(method),
		"status":     string(result.Invoice.Status),
	})
	return result, nil
}

func (s *Service) postRevenue(ctx context.Context, result PaymentResult) {
	if s.opts.Revenue == nil {
		return
	}
	category := bookkeeping.CategoryServices
	if result.Invoice.PrescriptionID != nil {
		category = bookkeeping.CategoryPharmacy
	}
	invoiceID := result.Invoice.ID
	paymentID := result.Payment.ID
	_, err := s.opts.Revenue.PostRevenue(ctx, bookkeeping.RevenueInput{
		OccurredOn:  result.Payment.CreatedAt,
		Category:    category,
		Amount:      result.Payment.Amount,
		InvoiceID:   &invoiceID,
		PaymentID:   &paymentID,
		Description: fmt.Sprintf("Payment for %s", result.Invoice.Number),
		ActorID:     result.Payment.RecordedBy,
	})
	if err != nil {
		if s.opts.Metrics != nil {
			s.opts.Metrics.RevenuePostFailed()
		}
		s.logger.Warn("post revenue for payment",
			slog.Int64("invoice_id", invoiceID),
			slog.Int64("payment_id", paymentID),
			slog.Any("error", err))
	}
}

// Void marks an invoice VOID. A PENDING prescription linked to it is
// cancelled as a best effort. Voiding a void invoice is a no-op.
func (s *Service) Void(ctx context.Context, id int64, actor shared.Actor) (Invoice, error) {
	if s.auth == nil || !s.auth.CanVoidInvoice(actor) {
		return Invoice{}, shared.Wrap(shared.ErrForbidden, "actor cannot void invoices")
	}
	inv, changed, err := s.repo.VoidInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if !changed {
		return inv, nil
	}
	cancelled := false
	if inv.PrescriptionID != nil && s.opts.Prescriptions != nil {
		cancelled, err = s.opts.Prescriptions.CancelIfPending(ctx, *inv.PrescriptionID)
		if err != nil {
			s.logger.Warn("cancel prescription for void invoice",
				slog.Int64("invoice_id", inv.ID),
				slog.Int64("prescription_id", *inv.PrescriptionID),
				slog.Any("error", err))
		}
	}
	s.afterChange(ctx, actor.ID, "billing:invoice:void", inv, map[string]any{"prescription_cancelled": cancelled})
	return inv, nil
}

// Get returns one invoice.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// List returns invoices matching filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		filter.From, filter.To = filter.To, filter.From
	}
	return s.repo.ListInvoices(ctx, filter)
}

// Payments returns the payments recorded against an invoice.
func (s *Service) Payments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, invoiceID)
}

func (s *Service) recalc(inv *Invoice) {
	totals := Recalc(inv.Services, inv.Discount)
	if len(totals.Skipped) > 0 {
		s.logger.Warn("skipped malformed invoice lines",
			slog.String("invoice", inv.Number),
			slog.Any("lines", totals.Skipped))
	}
	inv.Apply(totals)
}

func (s *Service) afterChange(ctx context.Context, actorID int64, action string, inv Invoice, meta map[string]any) {
	if s.opts.Cache != nil {
		if err := s.opts.Cache.Bump(ctx); err != nil {
			s.logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
	shared.RecordBestEffort(ctx, s.opts.Audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", inv.ID),
		Meta:     meta,
	})
}

func cleanItems(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		item.Code = strings.TrimSpace(item.Code)
		item.Name = strings.TrimSpace(item.Name)
		item.Amount = AmountText(strings.TrimSpace(string(item.Amount)))
		out = append(out, item)
	}
	return out
}
