package dispense

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/internal/platform/db"
	"github.com/meridian-hms/meridian/internal/shared"
)

const prescriptionColumns = `id, patient_id, doctor_id, medication, dosage, duration, instructions, status, pharmacist_id, created_at, updated_at`

// uniqueDispenseConstraint backs the one-dispense-per-prescription rule.
const uniqueDispenseConstraint = "prescription_dispenses_prescription_id_key"

// Repository persists prescriptions and dispense records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx    pgx.Tx
	stock stock.TxRepository
}

// WithTx runs fn inside a read-committed transaction shared with the stock ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, stock: stock.NewTxRepository(tx)})
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrescription(row rowScanner) (Prescription, error) {
	var (
		rx         Prescription
		status     string
		doctor     pgtype.Int8
		pharmacist pgtype.Int8
	)
	if err := row.Scan(&rx.ID, &rx.PatientID, &doctor, &rx.Medication, &rx.Dosage, &rx.Duration,
		&rx.Instructions, &status, &pharmacist, &rx.CreatedAt, &rx.UpdatedAt); err != nil {
		return Prescription{}, err
	}
	rx.Status = Status(status)
	if doctor.Valid {
		v := doctor.Int64
		rx.DoctorID = &v
	}
	if pharmacist.Valid {
		v := pharmacist.Int64
		rx.PharmacistID = &v
	}
	return rx, nil
}

func prescriptionNotFound(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Wrap(shared.ErrNotFound, "prescription %d", id)
	}
	return err
}

// CreatePrescription inserts a prescription.
func (r *Repository) CreatePrescription(ctx context.Context, rx Prescription) (Prescription, error) {
	doctor := pgtype.Int8{}
	if rx.DoctorID != nil {
		doctor = pgtype.Int8{Int64: *rx.DoctorID, Valid: true}
	}
	created, err := scanPrescription(r.pool.QueryRow(ctx, `INSERT INTO prescriptions (patient_id, doctor_id, medication, dosage, duration, instructions, status)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+prescriptionColumns,
		rx.PatientID, doctor, rx.Medication, rx.Dosage, rx.Duration, rx.Instructions, string(rx.Status)))
	if err != nil {
		return Prescription{}, fmt.Errorf("dispense: create prescription: %w", err)
	}
	return created, nil
}

// GetPrescription loads a prescription.
func (r *Repository) GetPrescription(ctx context.Context, id int64) (Prescription, error) {
	rx, err := scanPrescription(r.pool.QueryRow(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id=$1`, id))
	if err != nil {
		return Prescription{}, prescriptionNotFound(err, id)
	}
	return rx, nil
}

// GetRecord loads the dispense record of a prescription.
func (r *Repository) GetRecord(ctx context.Context, prescriptionID int64) (Record, error) {
	var (
		rec    Record
		ledger pgtype.Int8
	)
	err := r.pool.QueryRow(ctx, `SELECT id, prescription_id, medicine_id, quantity, amount_charged, discount,
additional_charges, additional_note, final_amount, pharmacist_id, ledger_entry_id, dispensed_at
FROM prescription_dispenses WHERE prescription_id=$1`, prescriptionID).Scan(
		&rec.ID, &rec.PrescriptionID, &rec.MedicineID, &rec.Quantity, &rec.AmountCharged, &rec.Discount,
		&rec.AdditionalCharges, &rec.AdditionalNote, &rec.FinalAmount, &rec.PharmacistID, &ledger, &rec.DispensedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.Wrap(shared.ErrNotFound, "dispense for prescription %d", prescriptionID)
		}
		return Record{}, err
	}
	if ledger.Valid {
		rec.LedgerEntryID = ledger.Int64
	}
	return rec, nil
}

// Transition moves a prescription between states with a guarded update.
func (r *Repository) Transition(ctx context.Context, id int64, from, to Status) (Prescription, error) {
	rx, err := scanPrescription(r.pool.QueryRow(ctx, `UPDATE prescriptions SET status=$3, updated_at=NOW()
WHERE id=$1 AND status=$2 RETURNING `+prescriptionColumns, id, string(from), string(to)))
	if err == nil {
		return rx, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Prescription{}, err
	}
	current, err := r.GetPrescription(ctx, id)
	if err != nil {
		return Prescription{}, err
	}
	return Prescription{}, shared.Wrap(shared.ErrInvalidState, "prescription %d is %s, expected %s", id, current.Status, from)
}

func (t *txRepo) LockPrescription(ctx context.Context, id int64) (Prescription, error) {
	rx, err := scanPrescription(t.tx.QueryRow(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Prescription{}, prescriptionNotFound(err, id)
	}
	return rx, nil
}

func (t *txRepo) HasPaidInvoice(ctx context.Context, prescriptionID int64) (bool, error) {
	var paid bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE prescription_id=$1 AND status='PAID')`, prescriptionID).Scan(&paid)
	return paid, err
}

func (t *txRepo) GetMedicine(ctx context.Context, id int64) (stock.Medicine, error) {
	var (
		med      stock.Medicine
		category string
	)
	err := t.tx.QueryRow(ctx, `SELECT id, name, category, current_stock, reorder_level, buying_price, selling_price, is_active, created_at, updated_at
FROM medicines WHERE id=$1`, id).Scan(&med.ID, &med.Name, &category, &med.CurrentStock, &med.ReorderLevel,
		&med.BuyingPrice, &med.SellingPrice, &med.IsActive, &med.CreatedAt, &med.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.Medicine{}, shared.Wrap(shared.ErrNotFound, "medicine %d", id)
		}
		return stock.Medicine{}, err
	}
	med.Category = stock.Category(category)
	return med, nil
}

func (t *txRepo) Stock() stock.TxRepository {
	return t.stock
}

func (t *txRepo) InsertRecord(ctx context.Context, rec Record) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO prescription_dispenses
(prescription_id, medicine_id, quantity, amount_charged, discount, additional_charges, additional_note, final_amount, pharmacist_id, ledger_entry_id, dispensed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		rec.PrescriptionID, rec.MedicineID, rec.Quantity, rec.AmountCharged, rec.Discount,
		rec.AdditionalCharges, rec.AdditionalNote, rec.FinalAmount, rec.PharmacistID,
		pgtype.Int8{Int64: rec.LedgerEntryID, Valid: rec.LedgerEntryID != 0}, rec.DispensedAt).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, uniqueDispenseConstraint) {
			return 0, shared.Wrap(shared.ErrInvalidState, "prescription %d already dispensed", rec.PrescriptionID)
		}
		return 0, fmt.Errorf("dispense: insert record: %w", err)
	}
	return id, nil
}

func (t *txRepo) MarkDispensed(ctx context.Context, prescriptionID, pharmacistID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE prescriptions SET status=$2, pharmacist_id=$3, updated_at=NOW()
WHERE id=$1 AND status=$4`, prescriptionID, string(StatusDispensed), pgtype.Int8{Int64: pharmacistID, Valid: pharmacistID != 0}, string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Wrap(shared.ErrInvalidState, "prescription %d", prescriptionID)
	}
	return nil
}
