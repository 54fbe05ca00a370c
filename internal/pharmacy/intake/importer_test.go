package intake

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-hms/meridian/internal/money"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/internal/shared"
)

type fakeCatalog struct {
	medicines map[string]stock.Medicine
	recorded  []stock.RecordInput
	failFor   int64
}

func (c *fakeCatalog) FindMedicineByName(ctx context.Context, name string) (stock.Medicine, error) {
	med, ok := c.medicines[strings.ToLower(name)]
	if !ok {
		return stock.Medicine{}, shared.ErrNotFound
	}
	return med, nil
}

func (c *fakeCatalog) Record(ctx context.Context, in stock.RecordInput) (stock.Result, error) {
	if in.MedicineID == c.failFor {
		return stock.Result{}, shared.Wrap(shared.ErrConflict, "boom")
	}
	c.recorded = append(c.recorded, in)
	return stock.Result{Entry: stock.Entry{ID: int64(len(c.recorded))}, NewStock: in.Quantity}, nil
}

func TestImporterSkipsInvalidRows(t *testing.T) {
	catalog := &fakeCatalog{medicines: map[string]stock.Medicine{
		"amoxicillin": {ID: 1, Name: "Amoxicillin", IsActive: true, BuyingPrice: money.MustParse("1.00")},
		"old syrup":   {ID: 2, Name: "Old syrup", IsActive: false},
		"broken":      {ID: 3, Name: "Broken", IsActive: true},
	}, failFor: 3}
	rows := &rowCounter{}
	imp := NewImporter(catalog, nil).WithMetrics(rows)
	imp.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	future := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	lines := []Line{
		{Row: 1, Name: "Amoxicillin", Quantity: 10, BuyingPrice: "1.25", ExpiryDate: &future, RawExpiry: "2027-01-01"},
		{Row: 2, Name: "amoxicillin", Quantity: 5},
		{Row: 3, Name: "Unknown", Quantity: 5},
		{Row: 4, Name: "Old syrup", Quantity: 5},
		{Row: 5, Name: "Amoxicillin", Quantity: 0},
		{Row: 6, Name: "Amoxicillin", Quantity: 3, BuyingPrice: "abc"},
		{Row: 7, Name: "Amoxicillin", Quantity: 3, BuyingPrice: "-2"},
		{Row: 8, Name: "Amoxicillin", Quantity: 3, RawExpiry: "soon"},
		{Row: 9, Name: "Amoxicillin", Quantity: 3, ExpiryDate: &past, RawExpiry: "2025-01-01"},
		{Row: 10, Name: "Broken", Quantity: 3},
	}
	report, err := imp.Import(context.Background(), lines, 42, "INV-77")
	require.NoError(t, err)
	require.Len(t, report.Imported, 2)
	require.Len(t, report.Skipped, 8)
	require.Equal(t, [2]int{2, 8}, rows.last)

	require.Equal(t, "1.25", money.Format(catalog.recorded[0].UnitCost))
	require.Equal(t, "1.00", money.Format(catalog.recorded[1].UnitCost))
	require.Equal(t, stock.TransactionStockIn, catalog.recorded[0].Type)
	require.Equal(t, int64(42), catalog.recorded[0].ActorID)
	require.Equal(t, "intake INV-77 row 1", catalog.recorded[0].Note)

	reasons := map[int]string{}
	for _, s := range report.Skipped {
		reasons[s.Row] = s.Reason
	}
	require.Equal(t, "unknown medicine", reasons[3])
	require.Equal(t, "medicine is inactive", reasons[4])
	require.Equal(t, "invalid buying price", reasons[6])
	require.Equal(t, "invalid buying price", reasons[7])
	require.Equal(t, "invalid expiry date", reasons[8])
	require.Equal(t, "batch already expired", reasons[9])
	require.Contains(t, reasons[10], "boom")
}

func TestImporterStopsOnCancel(t *testing.T) {
	imp := NewImporter(&fakeCatalog{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := imp.Import(ctx, []Line{{Row: 1, Name: "x", Quantity: 1}}, 1, "")
	require.ErrorIs(t, err, context.Canceled)
}

type rowCounter struct{ last [2]int }

func (r *rowCounter) IntakeRows(imported, skipped int) { r.last = [2]int{imported, skipped} }
