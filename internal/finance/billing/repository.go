package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-hms/meridian/internal/platform/db"
	"github.com/meridian-hms/meridian/internal/shared"
)

const invoiceColumns = `id, number, patient_id, prescription_id, services, subtotal, discount, total, status, created_by, created_at, updated_at`

const paymentColumns = `id, invoice_id, amount, method, reference, recorded_by, created_at`

// Repository persists invoices and payments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn inside a read-committed transaction; invoice rows are locked explicitly.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (Invoice, error) {
	var (
		inv      Invoice
		rx       pgtype.Int8
		services []byte
		status   string
	)
	if err := row.Scan(&inv.ID, &inv.Number, &inv.PatientID, &rx, &services, &inv.Subtotal,
		&inv.Discount, &inv.Total, &status, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	if rx.Valid {
		v := rx.Int64
		inv.PrescriptionID = &v
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &inv.Services); err != nil {
			return Invoice{}, fmt.Errorf("billing: decode services: %w", err)
		}
	}
	inv.Status = Status(status)
	return inv, nil
}

func scanPayment(row rowScanner) (Payment, error) {
	var (
		p      Payment
		method string
	)
	if err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &method, &p.Reference, &p.RecordedBy, &p.CreatedAt); err != nil {
		return Payment{}, err
	}
	p.Method = Method(method)
	return p, nil
}

func invoiceNotFound(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Wrap(shared.ErrNotFound, "invoice %d", id)
	}
	return err
}

func encodeServices(items []LineItem) ([]byte, error) {
	if items == nil {
		items = []LineItem{}
	}
	return json.Marshal(items)
}

func nullableID(id *int64) pgtype.Int8 {
	if id == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *id, Valid: true}
}

// CreateInvoice inserts an invoice.
func (r *Repository) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	services, err := encodeServices(inv.Services)
	if err != nil {
		return Invoice{}, err
	}
	created, err := scanInvoice(r.pool.QueryRow(ctx, `INSERT INTO invoices
(number, patient_id, prescription_id, services, subtotal, discount, total, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+invoiceColumns,
		inv.Number, inv.PatientID, nullableID(inv.PrescriptionID), services,
		inv.Subtotal, inv.Discount, inv.Total, string(inv.Status), inv.CreatedBy))
	if err != nil {
		return Invoice{}, fmt.Errorf("billing: create invoice: %w", err)
	}
	return created, nil
}

// GetInvoice loads one invoice.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
	if err != nil {
		return Invoice{}, invoiceNotFound(err, id)
	}
	return inv, nil
}

// ListInvoices returns invoices newest first.
func (r *Repository) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status=$%d", string(filter.Status))
	}
	if filter.PatientID > 0 {
		add("patient_id=$%d", filter.PatientID)
	}
	if filter.PrescriptionID > 0 {
		add("prescription_id=$%d", filter.PrescriptionID)
	}
	if !filter.From.IsZero() {
		add("created_at::date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at::date <= $%d", filter.To)
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListPayments returns an invoice's payments oldest first.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE invoice_id=$1 ORDER BY created_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// VoidInvoice sets VOID with a guarded update so concurrent voids change state once.
func (r *Repository) VoidInvoice(ctx context.Context, id int64) (Invoice, bool, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `UPDATE invoices SET status=$2, updated_at=NOW()
WHERE id=$1 AND status<>$2 RETURNING `+invoiceColumns, id, string(StatusVoid)))
	if err == nil {
		return inv, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, false, err
	}
	current, err := r.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, false, err
	}
	return current, false, nil
}

func (t *txRepo) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Invoice{}, invoiceNotFound(err, id)
	}
	return inv, nil
}

func (t *txRepo) UpdateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	services, err := encodeServices(inv.Services)
	if err != nil {
		return Invoice{}, err
	}
	updated, err := scanInvoice(t.tx.QueryRow(ctx, `UPDATE invoices
SET services=$2, subtotal=$3, discount=$4, total=$5, updated_at=NOW()
WHERE id=$1 RETURNING `+invoiceColumns, inv.ID, services, inv.Subtotal, inv.Discount, inv.Total))
	if err != nil {
		return Invoice{}, invoiceNotFound(err, inv.ID)
	}
	return updated, nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	created, err := scanPayment(t.tx.QueryRow(ctx, `INSERT INTO payments (invoice_id, amount, method, reference, recorded_by)
VALUES ($1, $2, $3, $4, $5) RETURNING `+paymentColumns,
		p.InvoiceID, p.Amount, string(p.Method), p.Reference, p.RecordedBy))
	if err != nil {
		return Payment{}, fmt.Errorf("billing: insert payment: %w", err)
	}
	return created, nil
}

func (t *txRepo) SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id=$1`, invoiceID).Scan(&sum)
	return sum, err
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Wrap(shared.ErrInvalidState, "invoice %d is not %s", id, from)
	}
	return nil
}

func (t *txRepo) ClaimKey(ctx context.Context, key, scope string) error {
	return shared.ClaimKey(ctx, t.tx, key, scope)
}
