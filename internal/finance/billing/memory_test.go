package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-hms/meridian/internal/finance/bookkeeping"
	"github.com/meridian-hms/meridian/internal/money"
	"github.com/meridian-hms/meridian/internal/pharmacy/dispense"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	invoices map[int64]Invoice
	payments []Payment
	keys     map[string]bool
	nextID   int64

	failInsert error
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: make(map[int64]Invoice), keys: make(map[string]bool)}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoices := make(map[int64]Invoice, len(r.invoices))
	for k, v := range r.invoices {
		invoices[k] = v
	}
	payments := append([]Payment(nil), r.payments...)
	keys := make(map[string]bool, len(r.keys))
	for k := range r.keys {
		keys[k] = true
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.invoices = invoices
		r.payments = payments
		r.keys = keys
		return err
	}
	return nil
}

func (r *memoryRepo) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv.ID = r.id()
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	r.invoices[inv.ID] = inv
	return inv, nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, nil
}

func (r *memoryRepo) ListInvoices(ctx context.Context, f ListFilter) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for id := int64(1); id <= r.nextID; id++ {
		inv, ok := r.invoices[id]
		if !ok || (f.Status != "" && inv.Status != f.Status) {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) VoidInvoice(ctx context.Context, id int64) (Invoice, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, false, shared.ErrNotFound
	}
	if inv.Status == StatusVoid {
		return inv, false, nil
	}
	inv.Status = StatusVoid
	r.invoices[id] = inv
	return inv, true, nil
}

func (t *memoryTx) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, nil
}

func (t *memoryTx) UpdateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	t.repo.invoices[inv.ID] = inv
	return inv, nil
}

func (t *memoryTx) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	if err := t.repo.failInsert; err != nil {
		t.repo.failInsert = nil
		return Payment{}, err
	}
	p.ID = t.repo.id()
	p.CreatedAt = time.Now().UTC()
	t.repo.payments = append(t.repo.payments, p)
	return p, nil
}

func (t *memoryTx) SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	sum := money.Zero
	for _, p := range t.repo.payments {
		if p.InvoiceID == invoiceID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (t *memoryTx) SetStatus(ctx context.Context, id int64, from, to Status) error {
	inv := t.repo.invoices[id]
	if inv.Status != from {
		return shared.ErrInvalidState
	}
	inv.Status = to
	t.repo.invoices[id] = inv
	return nil
}

func (t *memoryTx) ClaimKey(ctx context.Context, key, scope string) error {
	if t.repo.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	t.repo.keys[key] = true
	return nil
}

type revenueStub struct {
	mu      sync.Mutex
	fail    bool
	entries []bookkeeping.RevenueInput
}

func (s *revenueStub) PostRevenue(ctx context.Context, in bookkeeping.RevenueInput) (bookkeeping.RevenueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return bookkeeping.RevenueEntry{}, errors.New("revenue store down")
	}
	s.entries = append(s.entries, in)
	return bookkeeping.RevenueEntry{ID: int64(len(s.entries)), Amount: in.Amount, Category: in.Category}, nil
}

type prescriptionStub struct {
	rx        dispense.Prescription
	cancelled []int64
	fail      bool
}

func (s *prescriptionStub) GetPrescription(ctx context.Context, id int64) (dispense.Prescription, error) {
	if id != s.rx.ID {
		return dispense.Prescription{}, shared.ErrNotFound
	}
	return s.rx, nil
}

func (s *prescriptionStub) CancelIfPending(ctx context.Context, id int64) (bool, error) {
	if s.fail {
		return false, errors.New("prescription store down")
	}
	if s.rx.Status != dispense.StatusPending {
		return false, nil
	}
	s.rx.Status = dispense.StatusCancelled
	s.cancelled = append(s.cancelled, id)
	return true, nil
}

type medicineStub map[int64]stock.Medicine

func (m medicineStub) GetMedicine(ctx context.Context, id int64) (stock.Medicine, error) {
	med, ok := m[id]
	if !ok {
		return stock.Medicine{}, shared.ErrNotFound
	}
	return med, nil
}

type failureCounter struct{ n int }

func (f *failureCounter) RevenuePostFailed() { f.n++ }
