package patient

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository used in tests and local runs.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]Patient
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, rows: make(map[int64]Patient)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) FindByContactPhone(_ context.Context, phone string) ([]Patient, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []Patient
	for id := int64(1); id < r.nextID; id++ {
		p, ok := r.rows[id]
		if !ok {
			continue
		}
		if NormalizePhone(ContactPhone(&p)) == normalized {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func (r *MemoryRepository) Create(_ context.Context, p *Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created := *p
	created.ID = r.nextID
	created.CreatedAt = time.Now()
	r.nextID++
	r.rows[created.ID] = created
	return &created, nil
}

func (r *MemoryRepository) Update(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[p.ID]; !ok {
		return ErrNotFound
	}
	r.rows[p.ID] = *p
	return nil
}
