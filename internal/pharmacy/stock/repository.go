package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hms/meridian/internal/platform/db"
	"github.com/meridian-hms/meridian/internal/shared"
)

const medicineColumns = `id, name, category, current_stock, reorder_level, buying_price, selling_price, is_active, created_at, updated_at`

// Repository persists medicines and ledger entries in PostgreSQL.
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

// NewTxRepository binds the ledger operations to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx runs fn inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedicine(row rowScanner) (Medicine, error) {
	var (
		med      Medicine
		category string
	)
	err := row.Scan(&med.ID, &med.Name, &category, &med.CurrentStock, &med.ReorderLevel,
		&med.BuyingPrice, &med.SellingPrice, &med.IsActive, &med.CreatedAt, &med.UpdatedAt)
	if err != nil {
		return Medicine{}, err
	}
	med.Category = Category(category)
	return med, nil
}

func notFound(err error, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Wrap(shared.ErrNotFound, "medicine %v", id)
	}
	return err
}

// CreateMedicine inserts a catalog row.
func (r *Repository) CreateMedicine(ctx context.Context, med Medicine) (Medicine, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO medicines (name, category, current_stock, reorder_level, buying_price, selling_price, is_active)
VALUES ($1, $2, 0, $3, $4, $5, $6)
RETURNING `+medicineColumns,
		med.Name, string(med.Category), med.ReorderLevel, med.BuyingPrice, med.SellingPrice, med.IsActive)
	created, err := scanMedicine(row)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Medicine{}, shared.Wrap(shared.ErrConflict, "medicine %q already exists", med.Name)
		}
		return Medicine{}, fmt.Errorf("stock: create medicine: %w", err)
	}
	return created, nil
}

// GetMedicine loads a medicine by id.
func (r *Repository) GetMedicine(ctx context.Context, id int64) (Medicine, error) {
	med, err := scanMedicine(r.pool.QueryRow(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id=$1`, id))
	if err != nil {
		return Medicine{}, notFound(err, id)
	}
	return med, nil
}

// FindMedicineByName resolves a medicine by case-insensitive name.
func (r *Repository) FindMedicineByName(ctx context.Context, name string) (Medicine, error) {
	med, err := scanMedicine(r.pool.QueryRow(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE lower(name)=lower($1) ORDER BY id LIMIT 1`, name))
	if err != nil {
		return Medicine{}, notFound(err, name)
	}
	return med, nil
}

// ListMedicines lists medicines matching filter.
func (r *Repository) ListMedicines(ctx context.Context, filter MedicineFilter) ([]Medicine, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Search != "" {
		add("name ILIKE $%d", "%"+filter.Search+"%")
	}
	if filter.Category != "" {
		add("category = $%d", string(filter.Category))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	switch filter.Status {
	case StatusOutOfStock:
		where = append(where, "current_stock <= 0")
	case StatusLowStock:
		where = append(where, "current_stock <= reorder_level")
	case StatusInStock:
		where = append(where, "current_stock > reorder_level")
	}
	query := `SELECT ` + medicineColumns + ` FROM medicines`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY name LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stock: list medicines: %w", err)
	}
	defer rows.Close()
	var out []Medicine
	for rows.Next() {
		med, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, med)
	}
	return out, rows.Err()
}

// SetActive toggles is_active.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE medicines SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Wrap(shared.ErrNotFound, "medicine %d", id)
	}
	return nil
}

// ListEntries returns ledger entries newest first.
func (r *Repository) ListEntries(ctx context.Context, medicineID int64, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, medicine_id, transaction_type, quantity, requested_delta, stock_after,
prescription_id, batch_number, expiry_date, unit_cost, note, created_by, created_at
FROM inventory_transactions WHERE medicine_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, medicineID, limit)
	if err != nil {
		return nil, fmt.Errorf("stock: list entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			txType    string
			requested pgtype.Int8
			rxID      pgtype.Int8
			expiry    pgtype.Date
			createdBy pgtype.Int8
		)
		if err := rows.Scan(&e.ID, &e.MedicineID, &txType, &e.Quantity, &requested, &e.StockAfter,
			&rxID, &e.BatchNumber, &expiry, &e.UnitCost, &e.Note, &createdBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = TransactionType(txType)
		if requested.Valid {
			e.RequestedDelta = requested.Int64
		}
		if rxID.Valid {
			id := rxID.Int64
			e.PrescriptionID = &id
		}
		if expiry.Valid {
			t := expiry.Time
			e.ExpiryDate = &t
		}
		if createdBy.Valid {
			e.CreatedBy = createdBy.Int64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *txRepo) DecrementStock(ctx context.Context, medicineID, qty int64) (int64, error) {
	var stock int64
	err := r.tx.QueryRow(ctx, `UPDATE medicines SET current_stock = current_stock - $2, updated_at = NOW()
WHERE id = $1 AND current_stock >= $2
RETURNING current_stock`, medicineID, qty).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("stock: decrement: %w", err)
	}
	// Zero rows: either the medicine is missing or the guard rejected the decrement.
	var onHand int64
	if err := r.tx.QueryRow(ctx, `SELECT current_stock FROM medicines WHERE id=$1`, medicineID).Scan(&onHand); err != nil {
		return 0, notFound(err, medicineID)
	}
	return 0, shared.Wrap(shared.ErrInsufficientStock, "medicine %d has %d, requested %d", medicineID, onHand, qty)
}

func (r *txRepo) IncrementStock(ctx context.Context, medicineID, qty int64) (int64, error) {
	var stock int64
	err := r.tx.QueryRow(ctx, `UPDATE medicines SET current_stock = current_stock + $2, updated_at = NOW()
WHERE id = $1 RETURNING current_stock`, medicineID, qty).Scan(&stock)
	if err != nil {
		return 0, notFound(err, medicineID)
	}
	return stock, nil
}

func (r *txRepo) LockMedicine(ctx context.Context, medicineID int64) (Medicine, error) {
	med, err := scanMedicine(r.tx.QueryRow(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id=$1 FOR UPDATE`, medicineID))
	if err != nil {
		return Medicine{}, notFound(err, medicineID)
	}
	return med, nil
}

func (r *txRepo) SetStock(ctx context.Context, medicineID, stock int64) error {
	if stock < 0 {
		return shared.Wrap(shared.ErrInsufficientStock, "medicine %d", medicineID)
	}
	_, err := r.tx.Exec(ctx, `UPDATE medicines SET current_stock=$2, updated_at=NOW() WHERE id=$1`, medicineID, stock)
	return err
}

func (r *txRepo) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_transactions
(medicine_id, transaction_type, quantity, requested_delta, stock_after, prescription_id, batch_number, expiry_date, unit_cost, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`,
		e.MedicineID,
		string(e.Type),
		e.Quantity,
		pgtype.Int8{Int64: e.RequestedDelta, Valid: e.Type == TransactionAdjustment},
		e.StockAfter,
		optionalID(e.PrescriptionID),
		e.BatchNumber,
		optionalDate(e),
		e.UnitCost,
		e.Note,
		pgtype.Int8{Int64: e.CreatedBy, Valid: e.CreatedBy != 0},
		e.CreatedAt,
	).Scan(&id)
	return id, err
}

func optionalID(id *int64) pgtype.Int8 {
	if id == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *id, Valid: true}
}

func optionalDate(e Entry) pgtype.Date {
	if e.ExpiryDate == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *e.ExpiryDate, Valid: true}
}
