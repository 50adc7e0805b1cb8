package reminder

import (
	"context"
	"time"

	"github.com/postclinics/clinic-agent/internal/clinic"
	"github.com/postclinics/clinic-agent/internal/observability/metrics"
	"github.com/postclinics/clinic-agent/internal/patient"
	"github.com/postclinics/clinic-agent/internal/scheduling"
	"github.com/postclinics/clinic-agent/internal/whatsapp"
	"github.com/postclinics/clinic-agent/pkg/logging"
)

// Reminder windows in hours before the appointment start. Bookings made with
// less than lower24h remaining skip the "tomorrow" reminder entirely: the flag
// is set without sending so the patient is not reminded of a consult they
// booked the same day.
const (
	lower24h = 18.0
	upper24h = 25.0
	lower3h  = 0.5
	upper3h  = 3.5
)

// Sweeper periodically sends 24h/3h reminders for upcoming appointments.
// Flags flip only on confirmed delivery, so a failed send retries on the
// next sweep while a flipped flag makes repeat sweeps no-ops.
type Sweeper struct {
	appointments scheduling.Repository
	patients     patient.Repository
	logs         LogStore
	sender       whatsapp.Sender
	catalog      *clinic.Config
	loc          *time.Location
	interval     time.Duration
	logger       *logging.Logger
	metrics      *metrics.PipelineMetrics
}

// WithMetrics records delivery outcomes on m and returns s for chaining.
func (s *Sweeper) WithMetrics(m *metrics.PipelineMetrics) *Sweeper {
	s.metrics = m
	return s
}

// NewSweeper wires the reminder sweep.
func NewSweeper(
	appointments scheduling.Repository,
	patients patient.Repository,
	logs LogStore,
	sender whatsapp.Sender,
	catalog *clinic.Config,
	loc *time.Location,
	interval time.Duration,
	logger *logging.Logger,
) *Sweeper {
	if appointments == nil || patients == nil || logs == nil || sender == nil {
		panic("reminder: appointments, patients, logs and sender are required")
	}
	if catalog == nil {
		panic("reminder: clinic catalog required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		appointments: appointments,
		patients:     patients,
		logs:         logs,
		sender:       sender,
		catalog:      catalog,
		loc:          loc,
		interval:     interval,
		logger:       logger,
	}
}

// Run sweeps on a fixed interval until ctx is done. The first sweep happens
// immediately.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("reminder sweeper started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if _, err := s.SweepOnce(ctx); err != nil {
		s.logger.Error("reminder sweep failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder sweeper stopping")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("reminder sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce runs a single pass and returns how many reminders were delivered.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	// Appointments store naive clinic-local time; compare against a naive
	// clinic-local "now".
	now := time.Now().In(s.loc)
	naiveNow := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), 0, time.UTC)
	return s.sweepAt(ctx, naiveNow)
}

func (s *Sweeper) sweepAt(ctx context.Context, now time.Time) (int, error) {
	upcoming, err := s.appointments.ListUpcoming(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range upcoming {
		appt := upcoming[i]
		hoursUntil := appt.StartsAt.Sub(now).Hours()

		if !appt.Notified24h {
			switch {
			case hoursUntil < lower24h:
				// Booked too close to start for a "tomorrow" reminder.
				appt.Notified24h = true
				if err := s.appointments.Update(ctx, &appt); err != nil {
					s.logger.Error("reminder: mark late booking failed", "appointment_id", appt.ID, "error", err)
					continue
				}
				s.logger.Info("reminder: 24h skipped for late booking",
					"appointment_id", appt.ID, "hours_until", hoursUntil)
			case hoursUntil <= upper24h:
				if s.deliver(ctx, &appt, Kind24h) {
					sent++
				}
			}
		}

		if !appt.Notified3h && hoursUntil >= lower3h && hoursUntil <= upper3h {
			if s.deliver(ctx, &appt, Kind3h) {
				sent++
			}
		}
	}

	s.logger.Info("reminder sweep complete", "checked", len(upcoming), "sent", sent)
	return sent, nil
}

func (s *Sweeper) deliver(ctx context.Context, appt *scheduling.Appointment, kind string) bool {
	p, err := s.patients.GetByID(ctx, appt.PatientID)
	if err != nil {
		s.logger.Error("reminder: patient lookup failed", "appointment_id", appt.ID, "error", err)
		return false
	}

	var body string
	if kind == Kind24h {
		body = Message24h(s.catalog.Name, s.catalog.AssistantName, p.Name, appt.Service, appt.StartsAt)
	} else {
		body = Message3h(p.Name, appt.Service, appt.StartsAt)
	}

	res := s.sender.SendText(ctx, patient.ContactPhone(p), body)

	outcome := OutcomeSent
	if !res.Success {
		outcome = OutcomeFailed
	}
	s.metrics.ObserveReminder(kind, outcome)
	if err := s.logs.Append(ctx, &NotificationLog{
		AppointmentID: appt.ID,
		Kind:          kind,
		Status:        outcome,
		ErrorMessage:  res.ErrorMessage,
	}); err != nil {
		s.logger.Error("reminder: audit append failed", "appointment_id", appt.ID, "error", err)
	}

	if !res.Success {
		s.logger.Warn("reminder delivery failed",
			"appointment_id", appt.ID, "kind", kind, "status_code", res.StatusCode, "error", res.ErrorMessage)
		return false
	}

	if kind == Kind24h {
		appt.Notified24h = true
	} else {
		appt.Notified3h = true
	}
	if err := s.appointments.Update(ctx, appt); err != nil {
		s.logger.Error("reminder: flag update failed", "appointment_id", appt.ID, "error", err)
		return false
	}
	s.logger.Info("reminder sent", "appointment_id", appt.ID, "kind", kind)
	return true
}
