package patient

import (
	"context"
	"errors"
	"time"
)

// Patient is an identity record. ContactPhone is the messaging channel the
// patient is reached on and may be shared by several patients (e.g. siblings
// under a guardian's number); the (contact phone, normalized name) pair is
// what uniquely identifies a patient.
type Patient struct {
	ID              int64
	Name            string
	Phone           string
	ContactPhone    string
	ResponsibleName string
	CreatedAt       time.Time
}

// ErrNotFound indicates no patient row matched the lookup.
var ErrNotFound = errors.New("patient: not found")

// Repository persists patient rows. The pipeline never deletes patients.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Patient, error)
	// FindByContactPhone returns every patient whose normalized contact
	// phone equals the normalized input.
	FindByContactPhone(ctx context.Context, phone string) ([]Patient, error)
	Create(ctx context.Context, p *Patient) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
}
