package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/postclinics/clinic-agent/internal/clinic"
	"github.com/postclinics/clinic-agent/internal/patient"
	"github.com/postclinics/clinic-agent/pkg/logging"
)

// Engine computes availability, detects overlap conflicts and performs
// appointment state transitions. All conflict decisions flow through
// CheckConflict so booking and rescheduling share one source of truth.
type Engine struct {
	repo     Repository
	patients *patient.Resolver
	catalog  *clinic.Config
	logger   *logging.Logger
}

// NewEngine wires the scheduling engine.
func NewEngine(repo Repository, patients *patient.Resolver, catalog *clinic.Config, logger *logging.Logger) *Engine {
	if repo == nil {
		panic("scheduling: repository required")
	}
	if patients == nil {
		panic("scheduling: patient resolver required")
	}
	if catalog == nil {
		panic("scheduling: clinic catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{repo: repo, patients: patients, catalog: catalog, logger: logger}
}

// Catalog exposes the service catalog backing this engine.
func (e *Engine) Catalog() *clinic.Config { return e.catalog }

func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
	return start, end
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// CheckConflict returns the first non-cancelled appointment for the
// professional that overlaps [start, start+duration), or nil. The search is
// bounded to the same calendar day. excludeID skips the row being updated.
func (e *Engine) CheckConflict(ctx context.Context, professional string, start time.Time, durationMinutes int, excludeID int64) (*Appointment, error) {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	dayStart, dayEnd := dayBounds(start)

	existing, err := e.repo.ListDay(ctx, professional, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("scheduling: conflict lookup: %w", err)
	}
	for i := range existing {
		appt := &existing[i]
		if excludeID != 0 && appt.ID == excludeID {
			continue
		}
		// Each busy interval uses its own service's current duration.
		busyEnd := appt.StartsAt.Add(time.Duration(e.catalog.ServiceInfo(appt.Service).Duration) * time.Minute)
		if overlaps(start, end, appt.StartsAt, busyEnd) {
			return appt, nil
		}
	}
	return nil, nil
}

// Availability computes free slots for a service on a date. Sundays are
// closed. Slots step in increments of the queried service's duration through
// the professional's work blocks for that weekday.
func (e *Engine) Availability(ctx context.Context, date time.Time, serviceName string) ([]time.Time, clinic.Service, error) {
	info := e.catalog.ServiceInfo(serviceName)
	if date.Weekday() == time.Sunday {
		return nil, info, ErrSundayClosed
	}

	blocks := e.catalog.BlocksFor(info.Professional, int(date.Weekday()))
	dayStart, dayEnd := dayBounds(date)

	existing, err := e.repo.ListDay(ctx, info.Professional, dayStart, dayEnd)
	if err != nil {
		return nil, info, fmt.Errorf("scheduling: availability lookup: %w", err)
	}

	type interval struct{ start, end time.Time }
	busy := make([]interval, 0, len(existing))
	for i := range existing {
		appt := &existing[i]
		d := time.Duration(e.catalog.ServiceInfo(appt.Service).Duration) * time.Minute
		busy = append(busy, interval{start: appt.StartsAt, end: appt.StartsAt.Add(d)})
	}

	step := time.Duration(info.Duration) * time.Minute
	var free []time.Time
	for _, block := range blocks {
		blockStart, err := atClock(date, block.Start)
		if err != nil {
			return nil, info, err
		}
		blockEnd, err := atClock(date, block.End)
		if err != nil {
			return nil, info, err
		}
		for slot := blockStart; !slot.Add(step).After(blockEnd); slot = slot.Add(step) {
			slotEnd := slot.Add(step)
			taken := false
			for _, b := range busy {
				if overlaps(slot, slotEnd, b.start, b.end) {
					taken = true
					break
				}
			}
			if !taken {
				free = append(free, slot)
			}
		}
	}

	return SelectSlots(free), info, nil
}

// SelectSlots trims a chronological slot list to at most five options,
// balancing morning and afternoon when both exist (2 morning + 3 afternoon).
func SelectSlots(slots []time.Time) []time.Time {
	var morning, afternoon []time.Time
	for _, s := range slots {
		if s.Hour() < 12 {
			morning = append(morning, s)
		} else {
			afternoon = append(afternoon, s)
		}
	}
	if len(morning) > 0 && len(afternoon) > 0 {
		selected := morning[:min(2, len(morning))]
		return append(selected, afternoon[:min(3, len(afternoon))]...)
	}
	if len(slots) > 5 {
		return slots[:5]
	}
	return slots
}

// CreateParams describes a booking request.
type CreateParams struct {
	PatientName     string
	PatientPhone    string
	ResponsibleName string
	StartsAt        time.Time
	Service         string
	Professional    string
	Status          string
	Force           bool
}

// Create books an appointment, resolving the patient and deriving duration
// and professional from the service. Unless Force is set, a conflicting
// appointment aborts the booking with a *ConflictError.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*Appointment, error) {
	canonical := clinic.Canonicalize(p.Service)
	if canonical == "" {
		canonical = clinic.DefaultProfessional
	}
	info := e.catalog.ServiceInfo(canonical)
	professional := p.Professional
	if professional == "" {
		professional = info.Professional
	}

	resolved, err := e.patients.ResolveForContact(ctx, p.PatientName, p.PatientPhone, p.ResponsibleName)
	if err != nil {
		return nil, err
	}

	if !p.Force {
		conflict, err := e.CheckConflict(ctx, professional, p.StartsAt, info.Duration, 0)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			return nil, conflictErrorFor(e.catalog, conflict)
		}
	}

	created, err := e.repo.Create(ctx, &Appointment{
		PatientID:    resolved.ID,
		StartsAt:     p.StartsAt,
		Service:      canonical,
		Professional: professional,
		Status:       NormalizeStatus(p.Status, StatusScheduled),
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling: create: %w", err)
	}
	e.logger.Info("appointment created",
		"appointment_id", created.ID,
		"professional", created.Professional,
		"service", created.Service,
		"starts_at", created.StartsAt.Format("2006-01-02 15:04"),
	)
	return created, nil
}

// UpdateParams stages partial field changes; nil pointers leave fields alone.
type UpdateParams struct {
	StartsAt        *time.Time
	Service         *string
	Professional    *string
	Status          *string
	PatientName     *string
	PatientPhone    *string
	ResponsibleName *string
	Force           bool
}

// Update applies staged changes and re-validates conflicts against the final
// professional/time/duration. Nothing is committed when a conflict fires.
func (e *Engine) Update(ctx context.Context, id int64, p UpdateParams) (*Appointment, error) {
	appt, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	staged := *appt

	if p.PatientName != nil || p.PatientPhone != nil || p.ResponsibleName != nil {
		current, err := e.patients.GetByID(ctx, staged.PatientID)
		if err != nil {
			return nil, err
		}
		name := current.Name
		if p.PatientName != nil {
			name = *p.PatientName
		}
		phone := patient.ContactPhone(current)
		if p.PatientPhone != nil {
			phone = *p.PatientPhone
		}
		responsible := current.ResponsibleName
		if p.ResponsibleName != nil {
			responsible = *p.ResponsibleName
		}
		resolved, err := e.patients.ResolveForContact(ctx, name, phone, responsible)
		if err != nil {
			return nil, err
		}
		staged.PatientID = resolved.ID
	}

	if p.Service != nil {
		staged.Service = clinic.Canonicalize(*p.Service)
		if p.Professional == nil {
			staged.Professional = e.catalog.ServiceInfo(staged.Service).Professional
		}
	}
	if p.Professional != nil {
		staged.Professional = *p.Professional
	}
	if p.Status != nil {
		staged.Status = NormalizeStatus(*p.Status, staged.Status)
	}
	if p.StartsAt != nil {
		staged.StartsAt = *p.StartsAt
	}

	mutatesSlot := p.StartsAt != nil || p.Service != nil || p.Professional != nil
	if !p.Force && mutatesSlot && staged.Status != StatusCancelled {
		duration := e.catalog.ServiceInfo(staged.Service).Duration
		conflict, err := e.CheckConflict(ctx, staged.Professional, staged.StartsAt, duration, staged.ID)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			return nil, conflictErrorFor(e.catalog, conflict)
		}
	}

	if err := e.repo.Update(ctx, &staged); err != nil {
		return nil, fmt.Errorf("scheduling: update: %w", err)
	}
	return &staged, nil
}

// Cancel sets status to cancelled unconditionally. Cancelling an already
// cancelled appointment succeeds; the returned flag lets the conversational
// layer surface a distinct message for that case.
func (e *Engine) Cancel(ctx context.Context, id int64) (*Appointment, bool, error) {
	appt, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if appt.Status == StatusCancelled {
		return appt, true, nil
	}
	appt.Status = StatusCancelled
	if err := e.repo.Update(ctx, appt); err != nil {
		return nil, false, fmt.Errorf("scheduling: cancel: %w", err)
	}
	e.logger.Info("appointment cancelled", "appointment_id", appt.ID)
	return appt, false, nil
}

// Confirm transitions scheduled or cancelled appointments to confirmed.
// Confirming an already confirmed appointment is a no-op success; any other
// status yields a *StatusError for the caller to explain.
func (e *Engine) Confirm(ctx context.Context, id int64) (*Appointment, error) {
	appt, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch appt.Status {
	case StatusConfirmed:
		return appt, nil
	case StatusScheduled, StatusCancelled:
		appt.Status = StatusConfirmed
		if err := e.repo.Update(ctx, appt); err != nil {
			return nil, fmt.Errorf("scheduling: confirm: %w", err)
		}
		e.logger.Info("appointment confirmed", "appointment_id", appt.ID)
		return appt, nil
	default:
		return nil, &StatusError{AppointmentID: appt.ID, Current: appt.Status, Attempted: "confirmed"}
	}
}

// Reschedule moves an appointment to a new start using the existing service's
// duration and professional. Cancelled appointments cannot be moved.
func (e *Engine) Reschedule(ctx context.Context, id int64, newStart time.Time, force bool) (*Appointment, error) {
	appt, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrRescheduleCancelled
	}

	if !force {
		duration := e.catalog.ServiceInfo(appt.Service).Duration
		conflict, err := e.CheckConflict(ctx, appt.Professional, newStart, duration, appt.ID)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			return nil, conflictErrorFor(e.catalog, conflict)
		}
	}

	appt.StartsAt = newStart
	if err := e.repo.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("scheduling: reschedule: %w", err)
	}
	e.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID,
		"starts_at", newStart.Format("2006-01-02 15:04"),
	)
	return appt, nil
}

// ListActiveForContact returns non-cancelled appointments for every patient
// sharing the contact phone, ordered by start time.
func (e *Engine) ListActiveForContact(ctx context.Context, phone string) ([]Appointment, error) {
	patients, err := e.patients.FindByContactPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(patients))
	for i := range patients {
		ids = append(ids, patients[i].ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return e.repo.ListActiveByPatientIDs(ctx, ids)
}

// Patient loads a patient row by id.
func (e *Engine) Patient(ctx context.Context, id int64) (*patient.Patient, error) {
	return e.patients.GetByID(ctx, id)
}

func conflictErrorFor(catalog *clinic.Config, appt *Appointment) *ConflictError {
	duration := time.Duration(catalog.ServiceInfo(appt.Service).Duration) * time.Minute
	return &ConflictError{
		AppointmentID: appt.ID,
		Professional:  appt.Professional,
		BusyStart:     appt.StartsAt,
		BusyEnd:       appt.StartsAt.Add(duration),
	}
}

func atClock(date time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduling: bad block time %q: %w", clock, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), parsed.Hour(), parsed.Minute(), 0, 0, date.Location()), nil
}
