package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-hms/meridian/internal/money"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/internal/shared"
)

// Catalog is the part of the stock service the importer needs.
type Catalog interface {
	FindMedicineByName(ctx context.Context, name string) (stock.Medicine, error)
	Record(ctx context.Context, in stock.RecordInput) (stock.Result, error)
}

// Imported describes a row that produced a ledger entry.
type Imported struct {
	Row        int   `json:"row"`
	MedicineID int64 `json:"medicine_id"`
	EntryID    int64 `json:"entry_id"`
	Quantity   int64 `json:"quantity"`
	NewStock   int64 `json:"new_stock"`
}

// Skipped describes a row that was rejected.
type Skipped struct {
	Row    int    `json:"row"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Report summarises an import.
type Report struct {
	Imported []Imported `json:"imported"`
	Skipped  []Skipped  `json:"skipped"`
}

// Metrics counts processed rows.
type Metrics interface {
	IntakeRows(imported, skipped int)
}

// Importer posts one STOCK_IN per valid line, each in its own transaction.
type Importer struct {
	catalog Catalog
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

// NewImporter builds an Importer.
func NewImporter(catalog Catalog, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{catalog: catalog, logger: logger, now: time.Now}
}

// WithMetrics attaches a row counter.
func (i *Importer) WithMetrics(m Metrics) *Importer {
	i.metrics = m
	return i
}

// Import validates and records lines. A bad row is skipped, never fatal to the batch.
// Only context cancellation aborts the import.
func (i *Importer) Import(ctx context.Context, lines []Line, actorID int64, reference string) (Report, error) {
	report := Report{Imported: []Imported{}, Skipped: []Skipped{}}
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		in, reason := i.validate(ctx, line)
		if reason != "" {
			report.Skipped = append(report.Skipped, Skipped{Row: line.Row, Name: line.Name, Reason: reason})
			continue
		}
		in.ActorID = actorID
		if reference != "" {
			in.Note = fmt.Sprintf("intake %s row %d", reference, line.Row)
		}
		res, err := i.catalog.Record(ctx, in)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			i.logger.WarnContext(ctx, "intake row failed", slog.Int("row", line.Row), slog.String("name", line.Name), slog.Any("error", err))
			report.Skipped = append(report.Skipped, Skipped{Row: line.Row, Name: line.Name, Reason: shared.UserSafeMessage(err)})
			continue
		}
		report.Imported = append(report.Imported, Imported{
			Row:        line.Row,
			MedicineID: in.MedicineID,
			EntryID:    res.Entry.ID,
			Quantity:   in.Quantity,
			NewStock:   res.NewStock,
		})
	}
	i.logger.InfoContext(ctx, "intake completed",
		slog.Int("imported", len(report.Imported)),
		slog.Int("skipped", len(report.Skipped)),
	)
	if i.metrics != nil {
		i.metrics.IntakeRows(len(report.Imported), len(report.Skipped))
	}
	return report, nil
}

func (i *Importer) validate(ctx context.Context, line Line) (stock.RecordInput, string) {
	if line.Name == "" {
		return stock.RecordInput{}, "missing medicine name"
	}
	if line.Quantity <= 0 {
		return stock.RecordInput{}, "quantity must be greater than zero"
	}
	if len(line.BatchNumber) > 64 {
		return stock.RecordInput{}, "batch number too long"
	}
	if line.RawExpiry != "" && line.ExpiryDate == nil {
		return stock.RecordInput{}, "invalid expiry date"
	}
	if line.ExpiryDate != nil && line.ExpiryDate.Before(i.now().Truncate(24*time.Hour)) {
		return stock.RecordInput{}, "batch already expired"
	}
	med, err := i.catalog.FindMedicineByName(ctx, line.Name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return stock.RecordInput{}, "unknown medicine"
		}
		return stock.RecordInput{}, shared.UserSafeMessage(err)
	}
	if !med.IsActive {
		return stock.RecordInput{}, "medicine is inactive"
	}
	cost := med.BuyingPrice
	if line.BuyingPrice != "" {
		var err error
		cost, err = money.NonNegative(line.BuyingPrice)
		if err != nil {
			return stock.RecordInput{}, "invalid buying price"
		}
	}
	return stock.RecordInput{
		MedicineID:  med.ID,
		Type:        stock.TransactionStockIn,
		Quantity:    line.Quantity,
		BatchNumber: line.BatchNumber,
		ExpiryDate:  line.ExpiryDate,
		UnitCost:    cost,
	}, ""
}
