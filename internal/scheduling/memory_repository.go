package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository used in tests and local runs.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]Appointment
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, rows: make(map[int64]Appointment)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListDay(_ context.Context, professional string, dayStart, dayEnd time.Time) ([]Appointment, error) {
	return r.filter(func(a *Appointment) bool {
		return a.Professional == professional &&
			a.Status != StatusCancelled &&
			!a.StartsAt.Before(dayStart) && !a.StartsAt.After(dayEnd)
	}), nil
}

func (r *MemoryRepository) ListActiveByPatientIDs(_ context.Context, patientIDs []int64) ([]Appointment, error) {
	ids := make(map[int64]struct{}, len(patientIDs))
	for _, id := range patientIDs {
		ids[id] = struct{}{}
	}
	return r.filter(func(a *Appointment) bool {
		_, ok := ids[a.PatientID]
		return ok && a.Status != StatusCancelled
	}), nil
}

func (r *MemoryRepository) ListUpcoming(_ context.Context, after time.Time) ([]Appointment, error) {
	return r.filter(func(a *Appointment) bool {
		return a.Status != StatusCancelled && a.StartsAt.After(after)
	}), nil
}

func (r *MemoryRepository) Create(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created := *a
	created.ID = r.nextID
	created.CreatedAt = time.Now()
	r.nextID++
	r.rows[created.ID] = created
	return &created, nil
}

func (r *MemoryRepository) Update(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[a.ID]; !ok {
		return ErrNotFound
	}
	r.rows[a.ID] = *a
	return nil
}

func (r *MemoryRepository) filter(keep func(*Appointment) bool) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []Appointment
	for _, a := range r.rows {
		a := a
		if keep(&a) {
			matches = append(matches, a)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].StartsAt.Before(matches[j].StartsAt) })
	return matches
}
