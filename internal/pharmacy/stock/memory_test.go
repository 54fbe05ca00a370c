package stock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meridian-hms/meridian/internal/shared"
)

// memoryRepo serialises transactions and restores its snapshot on failure.
type memoryRepo struct {
	mu        sync.Mutex
	medicines map[int64]Medicine
	entries   []Entry
	nextID    int64
	nextEntry int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{medicines: make(map[int64]Medicine)}
}

func (r *memoryRepo) seed(med Medicine) Medicine {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	med.ID = r.nextID
	r.medicines[med.ID] = med
	return med
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	meds := make(map[int64]Medicine, len(r.medicines))
	for k, v := range r.medicines {
		meds[k] = v
	}
	entries := append([]Entry(nil), r.entries...)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.medicines = meds
		r.entries = entries
		return err
	}
	return nil
}

func (r *memoryRepo) CreateMedicine(ctx context.Context, med Medicine) (Medicine, error) {
	return r.seed(med), nil
}

func (r *memoryRepo) GetMedicine(ctx context.Context, id int64) (Medicine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	med, ok := r.medicines[id]
	if !ok {
		return Medicine{}, shared.Wrap(shared.ErrNotFound, "medicine %d", id)
	}
	return med, nil
}

func (r *memoryRepo) FindMedicineByName(ctx context.Context, name string) (Medicine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, med := range r.medicines {
		if strings.EqualFold(med.Name, name) {
			return med, nil
		}
	}
	return Medicine{}, shared.Wrap(shared.ErrNotFound, "medicine %s", name)
}

func (r *memoryRepo) ListMedicines(ctx context.Context, filter MedicineFilter) ([]Medicine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Medicine
	for _, med := range r.medicines {
		if filter.ActiveOnly && !med.IsActive {
			continue
		}
		switch filter.Status {
		case StatusOutOfStock:
			if med.CurrentStock > 0 {
				continue
			}
		case StatusLowStock:
			if med.CurrentStock > med.ReorderLevel {
				continue
			}
		}
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	med, ok := r.medicines[id]
	if !ok {
		return shared.ErrNotFound
	}
	med.IsActive = active
	r.medicines[id] = med
	return nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, medicineID int64, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].MedicineID == medicineID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (tx *memoryTx) DecrementStock(ctx context.Context, medicineID, qty int64) (int64, error) {
	med, ok := tx.repo.medicines[medicineID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	if med.CurrentStock < qty {
		return 0, shared.Wrap(shared.ErrInsufficientStock, "medicine %d", medicineID)
	}
	med.CurrentStock -= qty
	tx.repo.medicines[medicineID] = med
	return med.CurrentStock, nil
}

func (tx *memoryTx) IncrementStock(ctx context.Context, medicineID, qty int64) (int64, error) {
	med, ok := tx.repo.medicines[medicineID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	med.CurrentStock += qty
	tx.repo.medicines[medicineID] = med
	return med.CurrentStock, nil
}

func (tx *memoryTx) LockMedicine(ctx context.Context, medicineID int64) (Medicine, error) {
	med, ok := tx.repo.medicines[medicineID]
	if !ok {
		return Medicine{}, shared.ErrNotFound
	}
	return med, nil
}

func (tx *memoryTx) SetStock(ctx context.Context, medicineID, stock int64) error {
	med := tx.repo.medicines[medicineID]
	med.CurrentStock = stock
	tx.repo.medicines[medicineID] = med
	return nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	tx.repo.nextEntry++
	entry.ID = tx.repo.nextEntry
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	tx.repo.entries = append(tx.repo.entries, entry)
	return entry.ID, nil
}

type countingMetrics struct {
	mu      sync.Mutex
	byType  map[string]int
	clamped int
}

func (m *countingMetrics) LedgerEntry(txType string, clamped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byType == nil {
		m.byType = make(map[string]int)
	}
	m.byType[txType]++
	if clamped {
		m.clamped++
	}
}
