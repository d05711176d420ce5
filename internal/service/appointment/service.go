// Package appointment books, reschedules and moves appointments through
// their lifecycle without ever double-booking a professional.
package appointment

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/lock"
	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
	"github.com/jwalitptl/care-scheduler/pkg/metrics"
)

// Notifier delivers booking notices to the patient. Failures are logged only.
type Notifier interface {
	AppointmentScheduled(ctx context.Context, to *model.User, appt *model.Appointment) error
	AppointmentCancelled(ctx context.Context, to *model.User, appt *model.Appointment) error
}

type Service struct {
	appointments  repository.AppointmentRepository
	patients      repository.PatientRepository
	professionals repository.ProfessionalRepository
	users         repository.UserRepository
	locker        lock.Locker
	notifiers     []Notifier
	clock         func() time.Time
	timeout       time.Duration
	notifyTimeout time.Duration
	log           *logger.Logger
	metrics       *metrics.Metrics
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithNotifier adds n to the notifiers told about bookings and cancellations.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n) }
}

// WithTimeout bounds each operation's store calls, lock wait included.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithNotifyTimeout bounds how long a booking waits on each notifier.
// Non-positive values keep the default.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func NewService(repos repository.Repositories, locker lock.Locker, log *logger.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		appointments:  repos.Appointments,
		patients:      repos.Patients,
		professionals: repos.Professionals,
		users:         repos.Users,
		locker:        locker,
		clock:         func() time.Time { return time.Now().UTC() },
		timeout:       5 * time.Second,
		notifyTimeout: 10 * time.Second,
		log:           log.With("component", "scheduler"),
		metrics:       m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// storeErr maps repository failures onto the error taxonomy.
func storeErr(op, resource string, err error) error {
	var appErr *apperrors.AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource)
	default:
		return apperrors.Persistence(op, err)
	}
}

// Propose books a new appointment in SCHEDULED state.
func (s *Service) Propose(ctx context.Context, req *model.CreateAppointmentRequest, actor model.Actor) (*model.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	patientUser, err := s.activePatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RolePatient && patientUser.ID != actor.UserID {
		return nil, apperrors.Authorization("patients may only book for themselves")
	}
	if err := s.activeProfessional(ctx, req.ProfessionalID); err != nil {
		return nil, err
	}

	if !req.Type.Valid() {
		return nil, apperrors.Validationf("unknown appointment type %q", req.Type)
	}
	duration := req.Duration
	if duration == 0 {
		duration = model.DefaultAppointmentDuration
	}
	if duration < 0 {
		return nil, apperrors.Validation("duration must be positive")
	}
	if !req.ScheduledDate.After(s.clock()) {
		return nil, apperrors.Validation("appointment must be scheduled in the future")
	}

	now := s.clock()
	appt := &model.Appointment{
		Base:             model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientID:        req.PatientID,
		ProfessionalID:   req.ProfessionalID,
		Type:             req.Type,
		Status:           model.AppointmentStatusScheduled,
		ScheduledDate:    req.ScheduledDate.UTC(),
		Duration:         duration,
		Reason:           req.Reason,
		Notes:            req.Notes,
		RoomNumber:       req.RoomNumber,
		IsTelemedicine:   req.IsTelemedicine || req.Type == model.AppointmentTypeTelemedicine,
		TelemedicineLink: req.TelemedicineLink,
	}

	err = s.withSchedule(ctx, []uuid.UUID{appt.ProfessionalID}, func(ctx context.Context) error {
		if err := s.ensureFree(ctx, appt.ProfessionalID, appt.ScheduledDate, appt.End(), nil); err != nil {
			return err
		}
		return storeErr("create appointment", "appointment", s.appointments.Create(ctx, appt))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AppointmentsBooked.Inc()
	s.log.Info("appointment scheduled",
		"appointment_id", appt.ID.String(),
		"professional_id", appt.ProfessionalID.String(),
	)
	s.notify(ctx, patientUser, appt, false)
	return appt, nil
}

// Get returns one appointment. Patients only see their own.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	appt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, storeErr("get appointment", "appointment", err)
	}
	if err := s.checkOwner(ctx, appt, actor); err != nil {
		return nil, err
	}
	return appt, nil
}

// List pages through appointments ordered by scheduled date. Patients are
// restricted to their own profile whatever filter they pass.
func (s *Service) List(ctx context.Context, actor model.Actor, filter model.AppointmentFilter, page model.Pagination) ([]*model.Appointment, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if actor.Role == model.RolePatient {
		profile, err := s.patients.GetByUserID(ctx, actor.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return []*model.Appointment{}, 0, nil
		}
		if err != nil {
			return nil, 0, storeErr("get patient", "patient", err)
		}
		filter.PatientID = &profile.ID
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperrors.Validationf("unknown status %q", filter.Status)
	}

	items, total, err := s.appointments.List(ctx, filter, page.Normalize())
	if err != nil {
		return nil, 0, storeErr("list appointments", "appointment", err)
	}
	return items, total, nil
}

// Update applies a patch. Moving the appointment in time or to another
// professional re-runs the conflict check against every other booking.
// Every update holds the schedule lock of the appointment's professional, and
// of the target professional when it changes, so it cannot overwrite a
// concurrent cancel or status change.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if patch.ProfessionalID != nil {
		if err := s.activeProfessional(ctx, *patch.ProfessionalID); err != nil {
			return nil, err
		}
	}

	var updated *model.Appointment
	err := s.withAppointment(ctx, id, patch.ProfessionalID, func(ctx context.Context, appt *model.Appointment) error {
		if err := applyPatch(appt, patch); err != nil {
			return err
		}
		if patch.Reschedules() {
			if appt.Status.Terminal() {
				return apperrors.Validationf("cannot reschedule a %s appointment", appt.Status)
			}
			if !appt.ScheduledDate.After(s.clock()) {
				return apperrors.Validation("appointment must be scheduled in the future")
			}
			if err := s.ensureFree(ctx, appt.ProfessionalID, appt.ScheduledDate, appt.End(), &appt.ID); err != nil {
				return err
			}
		}
		appt.UpdatedAt = s.clock()
		if err := s.appointments.Update(ctx, appt); err != nil {
			return storeErr("update appointment", "appointment", err)
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("appointment updated", "appointment_id", id.String(), "rescheduled", patch.Reschedules())
	return updated, nil
}

func applyPatch(appt *model.Appointment, patch *model.UpdateAppointmentRequest) error {
	if patch.Type != nil {
		if !patch.Type.Valid() {
			return apperrors.Validationf("unknown appointment type %q", *patch.Type)
		}
		appt.Type = *patch.Type
	}
	if patch.Duration != nil {
		if *patch.Duration <= 0 {
			return apperrors.Validation("duration must be positive")
		}
		appt.Duration = *patch.Duration
	}
	if patch.ScheduledDate != nil {
		appt.ScheduledDate = patch.ScheduledDate.UTC()
	}
	if patch.ProfessionalID != nil {
		appt.ProfessionalID = *patch.ProfessionalID
	}
	if patch.Reason != nil {
		appt.Reason = *patch.Reason
	}
	if patch.Notes != nil {
		appt.Notes = *patch.Notes
	}
	if patch.RoomNumber != nil {
		appt.RoomNumber = *patch.RoomNumber
	}
	if patch.IsTelemedicine != nil {
		appt.IsTelemedicine = *patch.IsTelemedicine
	}
	if patch.TelemedicineLink != nil {
		appt.TelemedicineLink = *patch.TelemedicineLink
	}
	return nil
}

// Cancel moves a live appointment to CANCELLED. A second cancel fails with
// InvalidStateTransition and changes nothing.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor model.Actor, reason string) (*model.Appointment, error) {
	appt, err := s.move(ctx, id, model.AppointmentStatusCancelled, func(ctx context.Context, appt *model.Appointment) error {
		if err := s.checkOwner(ctx, appt, actor); err != nil {
			return err
		}
		now := s.clock()
		by := actor.UserID
		appt.CancelReason = &reason
		appt.CancelledBy = &by
		appt.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if u, err := s.patientUser(ctx, appt.PatientID); err == nil {
		s.notify(ctx, u, appt, true)
	}
	return appt, nil
}

// Transition performs the remaining lifecycle moves: CONFIRMED, IN_PROGRESS,
// COMPLETED and NO_SHOW.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, target model.AppointmentStatus) (*model.Appointment, error) {
	if target == model.AppointmentStatusCancelled {
		return nil, apperrors.Validation("use cancel to cancel an appointment")
	}
	if !target.Valid() || target == model.AppointmentStatusScheduled {
		return nil, apperrors.Validationf("unknown target status %q", target)
	}
	return s.move(ctx, id, target, nil)
}

func (s *Service) move(ctx context.Context, id uuid.UUID, target model.AppointmentStatus, mutate func(context.Context, *model.Appointment) error) (*model.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var moved *model.Appointment
	err := s.withAppointment(ctx, id, nil, func(ctx context.Context, appt *model.Appointment) error {
		if !appt.Status.CanTransitionTo(target) {
			return apperrors.InvalidStateTransition(string(appt.Status), string(target))
		}
		if mutate != nil {
			if err := mutate(ctx, appt); err != nil {
				return err
			}
		}
		from := appt.Status
		appt.Status = target
		appt.UpdatedAt = s.clock()
		if err := s.appointments.Update(ctx, appt); err != nil {
			return storeErr("update appointment", "appointment", err)
		}
		s.log.Info("appointment status changed",
			"appointment_id", id.String(),
			"from", string(from),
			"to", string(target),
		)
		moved = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AppointmentTransitions.WithLabelValues(string(target)).Inc()
	return moved, nil
}

// errScheduleMoved means the appointment changed professional between the
// unlocked read and taking the locks.
var errScheduleMoved = errors.New("appointment moved to another schedule")

const maxScheduleAttempts = 3

// withAppointment locks the schedule the appointment sits on, plus extra when
// set, and hands fn a copy read under those locks.
func (s *Service) withAppointment(ctx context.Context, id uuid.UUID, extra *uuid.UUID, fn func(ctx context.Context, appt *model.Appointment) error) error {
	for attempt := 1; ; attempt++ {
		current, err := s.appointments.Get(ctx, id)
		if err != nil {
			return storeErr("get appointment", "appointment", err)
		}
		schedules := []uuid.UUID{current.ProfessionalID}
		if extra != nil {
			schedules = append(schedules, *extra)
		}

		err = s.withSchedule(ctx, schedules, func(ctx context.Context) error {
			appt, err := s.appointments.Get(ctx, id)
			if err != nil {
				return storeErr("get appointment", "appointment", err)
			}
			if appt.ProfessionalID != current.ProfessionalID {
				return errScheduleMoved
			}
			return fn(ctx, appt)
		})
		if errors.Is(err, errScheduleMoved) && attempt < maxScheduleAttempts {
			continue
		}
		return err
	}
}

// withSchedule runs fn inside the critical sections of the given
// professionals. Keys are taken in sorted order so two callers locking the
// same pair cannot deadlock.
func (s *Service) withSchedule(ctx context.Context, professionalIDs []uuid.UUID, fn func(ctx context.Context) error) error {
	keys := make([]string, 0, len(professionalIDs))
	for _, id := range professionalIDs {
		keys = append(keys, lock.ProfessionalKey(id))
	}
	sort.Strings(keys)
	keys = slices.Compact(keys)

	requested := time.Now()
	var enter func(ctx context.Context, i int) error
	enter = func(ctx context.Context, i int) error {
		if i == len(keys) {
			s.metrics.LockWait.Observe(time.Since(requested).Seconds())
			return fn(ctx)
		}
		return s.locker.WithLock(ctx, keys[i], func(ctx context.Context) error {
			return enter(ctx, i+1)
		})
	}

	err := enter(ctx, 0)
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	// lock.ErrNotAcquired, a deadline hit while waiting, or the appointment
	// kept moving between schedules
	return apperrors.Persistence("acquire schedule lock", err)
}

// ensureFree must run under the professional's lock.
func (s *Service) ensureFree(ctx context.Context, professionalID uuid.UUID, start, end time.Time, exclude *uuid.UUID) error {
	busy, err := s.appointments.HasConflict(ctx, professionalID, start, end, exclude)
	if err != nil {
		return storeErr("check schedule", "appointment", err)
	}
	if busy {
		s.metrics.SchedulingConflicts.Inc()
		return apperrors.SchedulingConflict("professional already has an appointment in this interval")
	}
	return nil
}

func (s *Service) activePatient(ctx context.Context, patientID uuid.UUID) (*model.User, error) {
	u, err := s.patientUser(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, apperrors.NotFound("patient")
	}
	return u, nil
}

func (s *Service) patientUser(ctx context.Context, patientID uuid.UUID) (*model.User, error) {
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, storeErr("get patient", "patient", err)
	}
	u, err := s.users.Get(ctx, p.UserID)
	if err != nil {
		return nil, storeErr("get patient user", "patient", err)
	}
	return u, nil
}

func (s *Service) activeProfessional(ctx context.Context, professionalID uuid.UUID) error {
	p, err := s.professionals.Get(ctx, professionalID)
	if err != nil {
		return storeErr("get professional", "professional", err)
	}
	u, err := s.users.Get(ctx, p.UserID)
	if err != nil {
		return storeErr("get professional user", "professional", err)
	}
	if !u.Active {
		return apperrors.NotFound("professional")
	}
	return nil
}

func (s *Service) checkOwner(ctx context.Context, appt *model.Appointment, actor model.Actor) error {
	if actor.Role != model.RolePatient {
		return nil
	}
	profile, err := s.patients.GetByUserID(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && profile.ID != appt.PatientID) {
		return apperrors.Authorization("appointment belongs to another patient")
	}
	return storeErr("get patient", "patient", err)
}

func (s *Service) notify(ctx context.Context, to *model.User, appt *model.Appointment, cancelled bool) {
	if to == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	for _, n := range s.notifiers {
		done := make(chan error, 1)
		go func(n Notifier) {
			if cancelled {
				done <- n.AppointmentCancelled(ctx, to, appt)
			} else {
				done <- n.AppointmentScheduled(ctx, to, appt)
			}
		}(n)

		var err error
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			s.log.Warn("appointment notification not sent", "appointment_id", appt.ID.String(), "error", err.Error())
		}
	}
}
