package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Appointment is a booking row. StartsAt is naive clinic-local time; the
// occupied duration is not stored but re-derived from the service catalog at
// read time, so catalog changes retroactively affect conflict checks.
type Appointment struct {
	ID           int64
	PatientID    int64
	StartsAt     time.Time
	Service      string
	Professional string
	Status       string
	Notified24h  bool
	Notified3h   bool
	CreatedAt    time.Time
}

// Appointment statuses form a closed set.
const (
	StatusScheduled   = "scheduled"
	StatusConfirmed   = "confirmed"
	StatusCancelled   = "cancelled"
	StatusRescheduled = "rescheduled"
)

var (
	// ErrNotFound indicates the appointment id matched no row.
	ErrNotFound = errors.New("scheduling: appointment not found")
	// ErrRescheduleCancelled indicates a reschedule attempt against a
	// cancelled appointment, which must be rebooked instead.
	ErrRescheduleCancelled = errors.New("scheduling: cannot reschedule a cancelled appointment")
	// ErrSundayClosed indicates an availability query for a Sunday.
	ErrSundayClosed = errors.New("scheduling: clinic closed on Sundays")
)

// ConflictError reports a double-booking attempt, naming the colliding row.
type ConflictError struct {
	AppointmentID int64
	Professional  string
	BusyStart     time.Time
	BusyEnd       time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scheduling: slot occupied by appointment %d (%s %s-%s)",
		e.AppointmentID, e.Professional,
		e.BusyStart.Format("15:04"), e.BusyEnd.Format("15:04"))
}

// StatusError reports a state transition the conversational layer should
// explain rather than treat as a failure.
type StatusError struct {
	AppointmentID int64
	Current       string
	Attempted     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scheduling: appointment %d is %q and cannot be %s",
		e.AppointmentID, e.Current, e.Attempted)
}

// Repository persists appointment rows. Implementations never return
// physically deleted rows; cancellation is a status change.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	// ListDay returns non-cancelled appointments for one professional whose
	// start falls inside [dayStart, dayEnd].
	ListDay(ctx context.Context, professional string, dayStart, dayEnd time.Time) ([]Appointment, error)
	// ListActiveByPatientIDs returns non-cancelled appointments for the
	// given patients ordered by start time.
	ListActiveByPatientIDs(ctx context.Context, patientIDs []int64) ([]Appointment, error)
	// ListUpcoming returns non-cancelled appointments starting after the
	// given instant, used by the reminder sweep.
	ListUpcoming(ctx context.Context, after time.Time) ([]Appointment, error)
	Create(ctx context.Context, a *Appointment) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
}
