package dispense

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-hms/meridian/internal/money"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/internal/shared"
)

type memoryRepo struct {
	mu            sync.Mutex
	prescriptions map[int64]Prescription
	medicines     map[int64]stock.Medicine
	paid          map[int64]bool
	records       map[int64]Record
	entries       []stock.Entry
	nextID        int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		prescriptions: make(map[int64]Prescription),
		medicines:     make(map[int64]stock.Medicine),
		paid:          make(map[int64]bool),
		records:       make(map[int64]Record),
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) addMedicine(med stock.Medicine) stock.Medicine {
	r.mu.Lock()
	defer r.mu.Unlock()
	med.ID = r.id()
	r.medicines[med.ID] = med
	return med
}

func (r *memoryRepo) setPaid(prescriptionID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paid[prescriptionID] = true
}

func (r *memoryRepo) stockOf(id int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.medicines[id].CurrentStock
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rxs := make(map[int64]Prescription, len(r.prescriptions))
	for k, v := range r.prescriptions {
		rxs[k] = v
	}
	meds := make(map[int64]stock.Medicine, len(r.medicines))
	for k, v := range r.medicines {
		meds[k] = v
	}
	recs := make(map[int64]Record, len(r.records))
	for k, v := range r.records {
		recs[k] = v
	}
	entries := append([]stock.Entry(nil), r.entries...)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.prescriptions, r.medicines, r.records, r.entries = rxs, meds, recs, entries
		return err
	}
	return nil
}

func (r *memoryRepo) CreatePrescription(ctx context.Context, rx Prescription) (Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rx.ID = r.id()
	r.prescriptions[rx.ID] = rx
	return rx, nil
}

func (r *memoryRepo) GetPrescription(ctx context.Context, id int64) (Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rx, ok := r.prescriptions[id]
	if !ok {
		return Prescription{}, shared.ErrNotFound
	}
	return rx, nil
}

func (r *memoryRepo) GetRecord(ctx context.Context, prescriptionID int64) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[prescriptionID]
	if !ok {
		return Record{}, shared.ErrNotFound
	}
	return rec, nil
}

func (r *memoryRepo) Transition(ctx context.Context, id int64, from, to Status) (Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rx, ok := r.prescriptions[id]
	if !ok {
		return Prescription{}, shared.ErrNotFound
	}
	if rx.Status != from {
		return Prescription{}, shared.ErrInvalidState
	}
	rx.Status = to
	r.prescriptions[id] = rx
	return rx, nil
}

func (t *memoryTx) LockPrescription(ctx context.Context, id int64) (Prescription, error) {
	rx, ok := t.repo.prescriptions[id]
	if !ok {
		return Prescription{}, shared.ErrNotFound
	}
	return rx, nil
}

func (t *memoryTx) HasPaidInvoice(ctx context.Context, prescriptionID int64) (bool, error) {
	return t.repo.paid[prescriptionID], nil
}

func (t *memoryTx) GetMedicine(ctx context.Context, id int64) (stock.Medicine, error) {
	med, ok := t.repo.medicines[id]
	if !ok {
		return stock.Medicine{}, shared.ErrNotFound
	}
	return med, nil
}

func (t *memoryTx) Stock() stock.TxRepository { return t }

func (t *memoryTx) InsertRecord(ctx context.Context, rec Record) (int64, error) {
	if _, exists := t.repo.records[rec.PrescriptionID]; exists {
		return 0, shared.ErrInvalidState
	}
	rec.ID = t.repo.id()
	t.repo.records[rec.PrescriptionID] = rec
	return rec.ID, nil
}

func (t *memoryTx) MarkDispensed(ctx context.Context, prescriptionID, pharmacistID int64) error {
	rx := t.repo.prescriptions[prescriptionID]
	if rx.Status != StatusPending {
		return shared.ErrInvalidState
	}
	rx.Status = StatusDispensed
	rx.PharmacistID = &pharmacistID
	t.repo.prescriptions[prescriptionID] = rx
	return nil
}

func (t *memoryTx) DecrementStock(ctx context.Context, medicineID, qty int64) (int64, error) {
	med := t.repo.medicines[medicineID]
	if med.CurrentStock < qty {
		return 0, shared.ErrInsufficientStock
	}
	med.CurrentStock -= qty
	t.repo.medicines[medicineID] = med
	return med.CurrentStock, nil
}

func (t *memoryTx) IncrementStock(ctx context.Context, medicineID, qty int64) (int64, error) {
	med := t.repo.medicines[medicineID]
	med.CurrentStock += qty
	t.repo.medicines[medicineID] = med
	return med.CurrentStock, nil
}

func (t *memoryTx) LockMedicine(ctx context.Context, medicineID int64) (stock.Medicine, error) {
	return t.GetMedicine(ctx, medicineID)
}

func (t *memoryTx) SetStock(ctx context.Context, medicineID, value int64) error {
	med := t.repo.medicines[medicineID]
	med.CurrentStock = value
	t.repo.medicines[medicineID] = med
	return nil
}

func (t *memoryTx) InsertEntry(ctx context.Context, entry stock.Entry) (int64, error) {
	entry.ID = t.repo.id()
	t.repo.entries = append(t.repo.entries, entry)
	return entry.ID, nil
}

type roleAuth struct{}

func (roleAuth) CanDispense(actor shared.Actor) bool {
	return actor.Role == shared.RolePharmacist
}

func (roleAuth) CanManagePrescription(actor shared.Actor) bool {
	return actor.Role == shared.RolePharmacist || actor.Role == shared.RoleDoctor
}

type outcomeCounter struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *outcomeCounter) DispenseOutcome(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[outcome]++
}

var (
	pharmacist = shared.Actor{ID: 7, Role: shared.RolePharmacist}
	doctor     = shared.Actor{ID: 3, Role: shared.RoleDoctor}
)

type fixture struct {
	svc     *Service
	repo    *memoryRepo
	metrics *outcomeCounter
	capsule stock.Medicine
	syrup   stock.Medicine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := newMemoryRepo()
	metrics := &outcomeCounter{}
	svc := NewService(repo, stock.NewLedger(stock.UnderflowClamp, nil), roleAuth{}, Options{Metrics: metrics})
	return fixture{
		svc:     svc,
		repo:    repo,
		metrics: metrics,
		capsule: repo.addMedicine(stock.Medicine{Name: "Amoxicillin 500mg", Category: stock.CategoryCapsule, CurrentStock: 30, SellingPrice: money.MustParse("2.50"), IsActive: true}),
		syrup:   repo.addMedicine(stock.Medicine{Name: "Cough syrup", Category: stock.CategorySyrup, CurrentStock: 4, SellingPrice: money.MustParse("8.00"), IsActive: true}),
	}
}

func (f fixture) prescription(t *testing.T) Prescription {
	t.Helper()
	rx, err := f.svc.CreatePrescription(context.Background(), CreateInput{
		PatientID: 11, Medication: "Amoxicillin", Dosage: "1 capsule twice daily", Duration: "7 days", Actor: doctor,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, rx.Status)
	return rx
}

func TestDispenseDerivesQuantityAndCharges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.prescription(t)
	f.repo.setPaid(rx.ID)

	explicit := int64(99)
	rec, err := f.svc.Dispense(ctx, Input{
		PrescriptionID:    rx.ID,
		MedicineID:        f.capsule.ID,
		Quantity:          &explicit,
		Discount:          "5.00",
		AdditionalCharges: "1.50",
		AdditionalNote:    "packaging",
		Actor:             pharmacist,
	})
	require.NoError(t, err)
	require.Equal(t, int64(14), rec.Quantity)
	require.Equal(t, "35.00", money.Format(rec.AmountCharged))
	require.Equal(t, "31.50", money.Format(rec.FinalAmount))
	require.Equal(t, int64(16), f.repo.stockOf(f.capsule.ID))

	got, err := f.svc.GetPrescription(ctx, rx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDispensed, got.Status)
	require.Equal(t, pharmacist.ID, *got.PharmacistID)
	require.Len(t, f.repo.entries, 1)
	require.Equal(t, stock.TransactionDispensed, f.repo.entries[0].Type)
	require.Equal(t, 1, f.metrics.outcomes["success"])
}

func TestDispenseTwiceFailsWithInvalidState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.prescription(t)
	f.repo.setPaid(rx.ID)

	in := Input{PrescriptionID: rx.ID, MedicineID: f.capsule.ID, Actor: pharmacist}
	_, err := f.svc.Dispense(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.Dispense(ctx, in)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, f.repo.records, 1)
}

func TestConcurrentDispenseOfOnePrescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.prescription(t)
	f.repo.setPaid(rx.ID)

	var (
		mu      sync.Mutex
		success int
		g       errgroup.Group
	)
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := f.svc.Dispense(ctx, Input{PrescriptionID: rx.ID, MedicineID: f.capsule.ID, Actor: pharmacist})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return nil
			}
			if shared.KindOf(err) != shared.KindInvalidState {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 1, success)
	require.Equal(t, int64(16), f.repo.stockOf(f.capsule.ID))
}

func TestDispenseRequiresPaidInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.prescription(t)

	in := Input{PrescriptionID: rx.ID, MedicineID: f.capsule.ID, Actor: pharmacist}
	_, err := f.svc.Dispense(ctx, in)
	require.ErrorIs(t, err, shared.ErrPaymentNotApproved)
	require.Equal(t, 1, f.metrics.outcomes["payment_not_approved"])

	f.repo.setPaid(rx.ID)
	_, err = f.svc.Dispense(ctx, in)
	require.NoError(t, err)
}

func TestDispenseValidationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Dispense(ctx, Input{PrescriptionID: 1, MedicineID: f.capsule.ID, Actor: doctor})
	require.ErrorIs(t, err, shared.ErrForbidden)

	rx := f.prescription(t)
	f.repo.setPaid(rx.ID)

	inactive := f.repo.addMedicine(stock.Medicine{Name: "Old", Category: stock.CategoryTablet, CurrentStock: 10, IsActive: false})
	_, err = f.svc.Dispense(ctx, Input{PrescriptionID: rx.ID, MedicineID: inactive.ID, Actor: pharmacist})
	require.ErrorIs(t, err, shared.ErrMedicineInactive)

	_, err = f.svc.Dispense(ctx, Input{PrescriptionID: rx.ID, MedicineID: f.syrup.ID, Actor: pharmacist})
	require.ErrorIs(t, err, shared.ErrQuantityRequired)

	zero := int64(0)
	_, err = f.svc.Dispense(ctx, Input{PrescriptionID: rx.ID, MedicineID: f.syrup.ID, Quantity: &zero, Actor: pharmacist})
	require.ErrorIs(t, err, shared.ErrInvalidQuantity)

	_, err = f.svc.Dispense(ctx, Input{PrescriptionID: rx.ID, MedicineID: f.capsule.ID, Discount: "-1", Actor: pharmacist})
	require.ErrorIs(t, err, shared.ErrNegativeAmount)

	_, err = f.svc.Dispense(ctx, Input{PrescriptionID: rx.ID, MedicineID: f.capsule.ID, Discount: "abc", Actor: pharmacist})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = f.svc.Dispense(ctx, Input{PrescriptionID: rx.ID, MedicineID: f.capsule.ID, Discount: "40", Actor: pharmacist})
	require.ErrorIs(t, err, shared.ErrNegativeFinalAmount)

	require.Empty(t, f.repo.records)
	require.Empty(t, f.repo.entries)
	require.Equal(t, int64(30), f.repo.stockOf(f.capsule.ID))
	got, _ := f.svc.GetPrescription(ctx, rx.ID)
	require.Equal(t, StatusPending, got.Status)
}

func TestDispenseInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.prescription(t)
	f.repo.setPaid(rx.ID)

	qty := int64(5)
	_, err := f.svc.Dispense(ctx, Input{PrescriptionID: rx.ID, MedicineID: f.syrup.ID, Quantity: &qty, Actor: pharmacist})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	require.Empty(t, f.repo.records)
	require.Empty(t, f.repo.entries)
	require.Equal(t, int64(4), f.repo.stockOf(f.syrup.ID))
	got, _ := f.svc.GetPrescription(ctx, rx.ID)
	require.Equal(t, StatusPending, got.Status)
}

func TestPrescriptionStateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.prescription(t)

	_, err := f.svc.Complete(ctx, rx.ID, pharmacist)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	got, err := f.svc.Cancel(ctx, rx.ID, doctor)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	f.repo.setPaid(rx.ID)
	_, err = f.svc.Dispense(ctx, Input{PrescriptionID: rx.ID, MedicineID: f.capsule.ID, Actor: pharmacist})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	got, err = f.svc.Reinitiate(ctx, rx.ID, doctor)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)

	_, err = f.svc.Dispense(ctx, Input{PrescriptionID: rx.ID, MedicineID: f.capsule.ID, Actor: pharmacist})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, rx.ID, doctor)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	got, err = f.svc.Complete(ctx, rx.ID, pharmacist)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)

	_, err = f.svc.Complete(ctx, rx.ID, shared.Actor{ID: 1, Role: shared.RoleFinance})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCancelIfPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rx := f.prescription(t)

	cancelled, err := f.svc.CancelIfPending(ctx, rx.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	cancelled, err = f.svc.CancelIfPending(ctx, rx.ID)
	require.NoError(t, err)
	require.False(t, cancelled)
}

func TestRequiredQuantityRejectsOverflowingDosage(t *testing.T) {
	rx := Prescription{Dosage: "4611686018427387904 tablets twice", Duration: "1 day"}
	_, err := RequiredQuantity(stock.CategoryTablet, rx, nil)
	require.ErrorIs(t, err, shared.ErrInvalidQuantity)

	rx = Prescription{Dosage: "2tabs twice daily", Duration: "7 days"}
	qty, err := RequiredQuantity(stock.CategoryCapsule, rx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(28), qty)
}
