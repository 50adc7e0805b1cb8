package patient

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/postclinics/clinic-agent/pkg/logging"
)

var nonDigits = regexp.MustCompile(`\D+`)

// NormalizePhone strips everything but digits for comparison purposes.
func NormalizePhone(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// NormalizeName collapses whitespace and case-folds for comparison purposes.
// Stored values keep their original casing.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ContactPhone returns the channel phone, falling back to the legacy phone
// column for rows created before contact_phone existed.
func ContactPhone(p *Patient) string {
	if phone := strings.TrimSpace(p.ContactPhone); phone != "" {
		return phone
	}
	return strings.TrimSpace(p.Phone)
}

// Resolver maps (name, contact phone) pairs onto stable patient records.
type Resolver struct {
	repo   Repository
	logger *logging.Logger
}

// NewResolver creates a patient identity resolver.
func NewResolver(repo Repository, logger *logging.Logger) *Resolver {
	if repo == nil {
		panic("patient: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{repo: repo, logger: logger}
}

// ResolveForContact finds the patient matching the contact phone and stated
// name, or creates one. Several patients may share one contact phone; a name
// mismatch creates a new row instead of overwriting an existing one.
func (r *Resolver) ResolveForContact(ctx context.Context, name, phone, responsibleName string) (*Patient, error) {
	normalizedName := NormalizeName(name)

	existing, err := r.repo.FindByContactPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("patient: lookup by contact: %w", err)
	}

	for i := range existing {
		p := &existing[i]
		if NormalizeName(p.Name) != normalizedName {
			continue
		}
		changed := false
		if p.ContactPhone == "" {
			p.ContactPhone = strings.TrimSpace(phone)
			changed = true
		}
		if responsibleName != "" && p.ResponsibleName != responsibleName {
			p.ResponsibleName = responsibleName
			changed = true
		}
		if changed {
			if err := r.repo.Update(ctx, p); err != nil {
				return nil, fmt.Errorf("patient: backfill contact: %w", err)
			}
		}
		return p, nil
	}

	created, err := r.repo.Create(ctx, &Patient{
		Name:            strings.TrimSpace(name),
		Phone:           strings.TrimSpace(phone),
		ContactPhone:    strings.TrimSpace(phone),
		ResponsibleName: responsibleName,
	})
	if err != nil {
		return nil, fmt.Errorf("patient: create: %w", err)
	}
	r.logger.Info("patient created", "patient_id", created.ID, "phone_suffix", phoneSuffix(phone))
	return created, nil
}

// GetByID loads one patient row.
func (r *Resolver) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return r.repo.GetByID(ctx, id)
}

// FindByContactPhone returns every patient sharing the normalized phone.
func (r *Resolver) FindByContactPhone(ctx context.Context, phone string) ([]Patient, error) {
	return r.repo.FindByContactPhone(ctx, phone)
}

func phoneSuffix(phone string) string {
	digits := NormalizePhone(phone)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}
