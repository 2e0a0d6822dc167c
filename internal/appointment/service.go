package appointment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/care-coordination/internal/authz"
	"github.com/hackgods/care-coordination/internal/clock"
	"github.com/hackgods/care-coordination/internal/lock"
	"github.com/hackgods/care-coordination/internal/notify"
)

// Config drives slot materialisation and first-run seeding.
type Config struct {
	HorizonDays int
	Times       []string
	DoctorIDs   []string
	SeedOnEmpty bool
}

type Service struct {
	repo     Repository
	locker   lock.Locker
	cfg      Config
	policy   authz.Policy
	notifier notify.Notifier
	clock    clock.Clock
	logger   zerolog.Logger
}

type Option func(*Service)

func WithPolicy(p authz.Policy) Option { return func(s *Service) { s.policy = p } }

func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, locker lock.Locker, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		locker:   locker,
		cfg:      cfg,
		policy:   authz.OwnerPolicy{},
		notifier: notify.Nop{},
		clock:    clock.Real(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load hydrates absent tables (mock appointments, generated slots) and
// reconciles slot availability against the appointment ledger.
func (s *Service) Load(ctx context.Context) error {
	return lock.WithKeys(ctx, s.locker, lockKeys, func(ctx context.Context) error {
		appts, foundAppts, err := s.repo.LoadAppointments(ctx)
		if err != nil {
			return fmt.Errorf("load appointments: %w", err)
		}
		slots, foundSlots, err := s.repo.LoadSlots(ctx)
		if err != nil {
			return fmt.Errorf("load slots: %w", err)
		}

		now := s.clock.Now()
		if !foundAppts && s.cfg.SeedOnEmpty {
			appts = mockAppointments(now)
		}
		if !foundSlots {
			slots = buildSlots(now, s.cfg.DoctorIDs, s.cfg.HorizonDays, s.cfg.Times)
		}

		changed := reconcile(appts, slots)
		if foundAppts && foundSlots && !changed {
			return nil
		}

		if err := s.repo.SaveAll(ctx, appts, slots); err != nil {
			return fmt.Errorf("save loaded tables: %w", err)
		}
		s.logger.Info().
			Int("appointments", len(appts)).
			Int("slots", len(slots)).
			Bool("seeded", !foundAppts || !foundSlots).
			Msg("appointment tables loaded")
		return nil
	})
}

// Book reserves the slot for the request and records a scheduled appointment.
// The check and the reservation run under the table locks, so two callers
// racing for one slot cannot both succeed.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := normalizeBooking(&req); err != nil {
		return nil, err
	}
	key := SlotKey(req.DoctorID, req.Date, req.Time)

	var created Appointment
	err := lock.WithKeys(ctx, s.locker, lockKeys, func(ctx context.Context) error {
		appts, _, err := s.repo.LoadAppointments(ctx)
		if err != nil {
			return fmt.Errorf("load appointments: %w", err)
		}
		slots, _, err := s.repo.LoadSlots(ctx)
		if err != nil {
			return fmt.Errorf("load slots: %w", err)
		}

		i := slotIndex(slots, key)
		if i < 0 {
			return &SlotUnavailableError{Key: key, Reason: "missing"}
		}
		if !slots[i].Available {
			return &SlotUnavailableError{Key: key, Reason: "booked"}
		}

		now := s.clock.Now()
		created = Appointment{
			ID:                   "APT-" + uuid.NewString(),
			PatientID:            req.PatientID,
			PatientName:          req.PatientName,
			PatientPhone:         req.PatientPhone,
			PatientEmail:         req.PatientEmail,
			DoctorID:             req.DoctorID,
			DoctorName:           req.DoctorName,
			DoctorSpecialization: req.DoctorSpecialization,
			Type:                 req.Type,
			Date:                 req.Date,
			Time:                 req.Time,
			Duration:             req.Duration,
			Reason:               req.Reason,
			Symptoms:             req.Symptoms,
			ConsultationType:     req.ConsultationType,
			Priority:             req.Priority,
			Status:               StatusScheduled,
			CreatedAt:            now,
			UpdatedAt:            now,
		}

		slots[i].Available = false
		slots[i].AppointmentID = created.ID
		appts = append(appts, created)

		if err := s.repo.SaveAll(ctx, appts, slots); err != nil {
			return fmt.Errorf("save booking: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, &SlotUnavailableError{Key: key, Reason: "busy"}
		}
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", created.ID).
		Str("slot", key).
		Str("patient_id", created.PatientID).
		Msg("appointment booked")

	s.dispatch(ctx, notify.Notification{
		RecipientID: created.DoctorID,
		Type:        notify.TypeAppointment,
		Priority:    notifyPriority(created.Priority),
		Title:       "New appointment",
		Message:     fmt.Sprintf("%s booked %s on %s at %s", created.PatientName, created.Type, created.Date, created.Time),
		Data:        map[string]string{"appointmentId": created.ID},
	})
	s.dispatch(ctx, notify.Notification{
		RecipientID: created.PatientID,
		Type:        notify.TypeAppointment,
		Title:       "Appointment confirmed",
		Message:     fmt.Sprintf("Your appointment with %s is on %s at %s", created.DoctorName, created.Date, created.Time),
		Data:        map[string]string{"appointmentId": created.ID},
	})

	return &created, nil
}

// Cancel marks the appointment cancelled and frees its slot. Cancelling an
// already cancelled appointment changes nothing and returns it as stored.
func (s *Service) Cancel(ctx context.Context, id string, actor authz.Actor, reason string) (*Appointment, error) {
	var (
		cancelled Appointment
		noop      bool
	)
	err := lock.WithKeys(ctx, s.locker, lockKeys, func(ctx context.Context) error {
		appts, _, err := s.repo.LoadAppointments(ctx)
		if err != nil {
			return fmt.Errorf("load appointments: %w", err)
		}
		i := appointmentIndex(appts, id)
		if i < 0 {
			return ErrAppointmentNotFound
		}
		appt := appts[i]

		if err := s.policy.Authorize(actor, appt.Ownership()); err != nil {
			return err
		}

		switch appt.Status {
		case StatusCancelled:
			cancelled, noop = appt, true
			return nil
		case StatusCompleted:
			return &TransitionError{ID: id, From: appt.Status, To: StatusCancelled}
		}

		slots, _, err := s.repo.LoadSlots(ctx)
		if err != nil {
			return fmt.Errorf("load slots: %w", err)
		}

		now := s.clock.Now()
		appt.Status = StatusCancelled
		appt.CancelledAt = &now
		appt.CancelledBy = actor.Role
		appt.CancellationReason = reason
		appt.UpdatedAt = now
		appts[i] = appt

		// only release a slot that still points at this appointment
		if j := slotIndex(slots, appt.SlotKey()); j >= 0 && slots[j].AppointmentID == appt.ID {
			slots[j].Available = true
			slots[j].AppointmentID = ""
		}

		if err := s.repo.SaveAll(ctx, appts, slots); err != nil {
			return fmt.Errorf("save cancellation: %w", err)
		}
		cancelled = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return &cancelled, nil
	}

	s.logger.Info().
		Str("appointment_id", id).
		Str("actor_id", actor.ID).
		Str("actor_role", string(actor.Role)).
		Msg("appointment cancelled")

	// tell the other party
	recipient := cancelled.DoctorID
	if actor.ID == cancelled.DoctorID {
		recipient = cancelled.PatientID
	}
	s.dispatch(ctx, notify.Notification{
		RecipientID: recipient,
		Type:        notify.TypeAppointment,
		Priority:    notify.PriorityHigh,
		Title:       "Appointment cancelled",
		Message:     fmt.Sprintf("The appointment on %s at %s was cancelled", cancelled.Date, cancelled.Time),
		Data:        map[string]string{"appointmentId": cancelled.ID, "reason": reason},
	})

	return &cancelled, nil
}

// Update applies a partial edit. Slot availability is never touched.
func (s *Service) Update(ctx context.Context, id string, upd Update, actor authz.Actor) (*Appointment, error) {
	return s.mutate(ctx, id, actor, func(a *Appointment) error {
		if upd.ConsultationType != nil && !validConsultation(*upd.ConsultationType) {
			return invalid("unknown consultation type %q", *upd.ConsultationType)
		}
		if upd.Priority != nil && !validPriority(*upd.Priority) {
			return invalid("unknown priority %q", *upd.Priority)
		}
		upd.apply(a)
		return nil
	})
}

func (s *Service) AddNotes(ctx context.Context, id, notes, doctorID string) (*Appointment, error) {
	return s.Update(ctx, id, Update{Notes: &notes}, authz.Actor{ID: doctorID, Role: authz.RoleDoctor})
}

// Complete closes a scheduled appointment. The slot stays consumed.
func (s *Service) Complete(ctx context.Context, id, doctorID, diagnosis, prescription string) (*Appointment, error) {
	actor := authz.Actor{ID: doctorID, Role: authz.RoleDoctor}
	appt, err := s.mutate(ctx, id, actor, func(a *Appointment) error {
		if a.Status != StatusScheduled {
			return &TransitionError{ID: id, From: a.Status, To: StatusCompleted}
		}
		now := s.clock.Now()
		a.Status = StatusCompleted
		a.CompletedAt = &now
		a.Diagnosis = diagnosis
		a.Prescription = prescription
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, notify.Notification{
		RecipientID: appt.PatientID,
		Type:        notify.TypeAppointment,
		Title:       "Appointment completed",
		Message:     fmt.Sprintf("Your visit with %s on %s is complete", appt.DoctorName, appt.Date),
		Data:        map[string]string{"appointmentId": appt.ID},
	})
	if prescription != "" {
		s.dispatch(ctx, notify.Notification{
			RecipientID: appt.PatientID,
			Type:        notify.TypePrescription,
			Title:       "New prescription",
			Message:     prescription,
			Data:        map[string]string{"appointmentId": appt.ID},
		})
	}
	return appt, nil
}

// mutate runs fn on one appointment under the appointments lock.
func (s *Service) mutate(ctx context.Context, id string, actor authz.Actor, fn func(*Appointment) error) (*Appointment, error) {
	var updated Appointment
	err := s.locker.WithLock(ctx, lockKeys[0], func(ctx context.Context) error {
		appts, _, err := s.repo.LoadAppointments(ctx)
		if err != nil {
			return fmt.Errorf("load appointments: %w", err)
		}
		i := appointmentIndex(appts, id)
		if i < 0 {
			return ErrAppointmentNotFound
		}
		if err := s.policy.Authorize(actor, appts[i].Ownership()); err != nil {
			return err
		}

		appt := appts[i]
		if err := fn(&appt); err != nil {
			return err
		}
		appt.UpdatedAt = s.clock.Now()
		appts[i] = appt

		if err := s.repo.SaveAppointments(ctx, appts); err != nil {
			return fmt.Errorf("save appointment: %w", err)
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// dispatch never fails the calling operation.
func (s *Service) dispatch(ctx context.Context, n notify.Notification) {
	if n.RecipientID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn().Err(err).
			Str("recipient_id", n.RecipientID).
			Str("title", n.Title).
			Msg("failed to dispatch notification")
	}
}

func normalizeBooking(req *BookingRequest) error {
	switch {
	case req.PatientID == "":
		return invalid("patientId is required")
	case req.DoctorID == "":
		return invalid("doctorId is required")
	}
	if _, err := time.Parse(DateLayout, req.Date); err != nil {
		return invalid("date %q must be YYYY-MM-DD", req.Date)
	}
	if _, err := time.Parse(TimeLayout, req.Time); err != nil {
		return invalid("time %q must be HH:MM", req.Time)
	}

	if req.Type == "" {
		req.Type = Types[0]
	}
	if !slices.Contains(Types, req.Type) {
		return invalid("unknown appointment type %q", req.Type)
	}
	if req.Duration == 0 {
		req.Duration = DefaultDuration
	}
	if req.Duration < 0 {
		return invalid("duration must be positive")
	}
	if req.ConsultationType == "" {
		req.ConsultationType = ConsultationInPerson
	}
	if !validConsultation(req.ConsultationType) {
		return invalid("unknown consultation type %q", req.ConsultationType)
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if !validPriority(req.Priority) {
		return invalid("unknown priority %q", req.Priority)
	}
	return nil
}

func validConsultation(c ConsultationType) bool {
	switch c {
	case ConsultationInPerson, ConsultationVideo, ConsultationPhone:
		return true
	}
	return false
}

func validPriority(p Priority) bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func notifyPriority(p Priority) notify.Priority {
	switch p {
	case PriorityUrgent:
		return notify.PriorityUrgent
	case PriorityHigh:
		return notify.PriorityHigh
	case PriorityLow:
		return notify.PriorityLow
	}
	return notify.PriorityNormal
}

func appointmentIndex(appts []Appointment, id string) int {
	for i := range appts {
		if appts[i].ID == id {
			return i
		}
	}
	return -1
}

func slotIndex(slots []Slot, key string) int {
	for i := range slots {
		if slots[i].Key == key {
			return i
		}
	}
	return -1
}
