package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/care-scheduler/internal/lock"
	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
	"github.com/jwalitptl/care-scheduler/internal/repository/memory"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
	"github.com/jwalitptl/care-scheduler/pkg/metrics"
)

var now = time.Date(2030, 1, 7, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu        sync.Mutex
	scheduled []uuid.UUID
	cancelled []uuid.UUID
	fail      bool
}

func (n *recordingNotifier) AppointmentScheduled(_ context.Context, _ *model.User, a *model.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scheduled = append(n.scheduled, a.ID)
	if n.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (n *recordingNotifier) AppointmentCancelled(_ context.Context, _ *model.User, a *model.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, a.ID)
	return nil
}

type SchedulerSuite struct {
	suite.Suite
	ctx          context.Context
	repos        repository.Repositories
	metrics      *metrics.Metrics
	notifier     *recordingNotifier
	svc          *Service
	patient      *model.Patient
	patientUser  *model.User
	professional *model.Professional
	staff        model.Actor
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.ctx = context.Background()
	s.repos = memory.New().Repositories()
	s.metrics = metrics.New("test", nil)
	s.notifier = &recordingNotifier{}
	s.svc = NewService(s.repos, lock.NewKeyedMutex(), logger.Nop(), s.metrics,
		WithClock(func() time.Time { return now }),
		WithNotifier(s.notifier),
	)
	s.staff = model.Actor{UserID: uuid.New(), Role: model.RoleReceptionist}

	s.patientUser = s.user(model.RolePatient)
	s.patient = &model.Patient{UserID: s.patientUser.ID, Consent: true}
	s.Require().NoError(s.repos.Patients.Create(s.ctx, s.patient))
	s.professional = s.newProfessional()
}

func (s *SchedulerSuite) user(role model.Role) *model.User {
	u := &model.User{
		Email:     gofakeit.Email(),
		Role:      role,
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Active:    true,
	}
	s.Require().NoError(s.repos.Users.Create(s.ctx, u))
	return u
}

func (s *SchedulerSuite) newProfessional() *model.Professional {
	p := &model.Professional{
		UserID:         s.user(model.RoleDoctor).ID,
		Specialization: "cardiology",
		LicenseNumber:  gofakeit.Numerify("CRM-######"),
	}
	s.Require().NoError(s.repos.Professionals.Create(s.ctx, p))
	return p
}

func (s *SchedulerSuite) request(at time.Time, minutes int) *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		PatientID:      s.patient.ID,
		ProfessionalID: s.professional.ID,
		Type:           model.AppointmentTypeConsultation,
		ScheduledDate:  at,
		Duration:       minutes,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2030, 1, 7, hour, minute, 0, 0, time.UTC)
}

func (s *SchedulerSuite) requireKind(err error, kind apperrors.Kind) {
	s.Require().Error(err)
	s.Equal(kind, apperrors.KindOf(err), err.Error())
}

func (s *SchedulerSuite) TestProposeCreatesScheduled() {
	appt, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 0), s.staff)
	s.Require().NoError(err)
	s.Equal(model.AppointmentStatusScheduled, appt.Status)
	s.Equal(model.DefaultAppointmentDuration, appt.Duration)

	stored, err := s.svc.Get(s.ctx, appt.ID, s.staff)
	s.Require().NoError(err)
	s.Equal(appt.ScheduledDate, stored.ScheduledDate)
	s.Equal([]uuid.UUID{appt.ID}, s.notifier.scheduled)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.AppointmentsBooked))
}

func (s *SchedulerSuite) TestOverlapScenario() {
	_, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)

	_, err = s.svc.Propose(s.ctx, s.request(at(10, 15), 30), s.staff)
	s.requireKind(err, apperrors.KindSchedulingConflict)

	_, err = s.svc.Propose(s.ctx, s.request(at(10, 30), 30), s.staff)
	s.NoError(err)

	_, err = s.svc.Propose(s.ctx, s.request(at(9, 45), 20), s.staff)
	s.requireKind(err, apperrors.KindSchedulingConflict)
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.SchedulingConflicts))
}

func (s *SchedulerSuite) TestOtherProfessionalIsIndependent() {
	_, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)

	req := s.request(at(10, 0), 30)
	req.ProfessionalID = s.newProfessional().ID
	_, err = s.svc.Propose(s.ctx, req, s.staff)
	s.NoError(err)
}

func (s *SchedulerSuite) TestCancelledSlotIsFree() {
	appt, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)
	_, err = s.svc.Cancel(s.ctx, appt.ID, s.staff, "patient request")
	s.Require().NoError(err)

	_, err = s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.NoError(err)
}

func (s *SchedulerSuite) TestProposeValidation() {
	_, err := s.svc.Propose(s.ctx, s.request(now, 30), s.staff)
	s.requireKind(err, apperrors.KindValidation)

	_, err = s.svc.Propose(s.ctx, s.request(now.Add(-time.Hour), 30), s.staff)
	s.requireKind(err, apperrors.KindValidation)

	_, err = s.svc.Propose(s.ctx, s.request(at(10, 0), -5), s.staff)
	s.requireKind(err, apperrors.KindValidation)

	req := s.request(at(10, 0), 30)
	req.Type = "SURGERY"
	_, err = s.svc.Propose(s.ctx, req, s.staff)
	s.requireKind(err, apperrors.KindValidation)

	req = s.request(at(10, 0), 30)
	req.PatientID = uuid.New()
	_, err = s.svc.Propose(s.ctx, req, s.staff)
	s.requireKind(err, apperrors.KindNotFound)

	req = s.request(at(10, 0), 30)
	req.ProfessionalID = uuid.New()
	_, err = s.svc.Propose(s.ctx, req, s.staff)
	s.requireKind(err, apperrors.KindNotFound)
}

func (s *SchedulerSuite) TestInactiveProfessionalIsNotFound() {
	u, err := s.repos.Users.Get(s.ctx, s.professional.UserID)
	s.Require().NoError(err)
	u.Active = false
	s.Require().NoError(s.repos.Users.Update(s.ctx, u))

	_, err = s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.requireKind(err, apperrors.KindNotFound)
}

func (s *SchedulerSuite) TestPatientBooksOnlyForThemselves() {
	self := model.Actor{UserID: s.patientUser.ID, Role: model.RolePatient}
	_, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), self)
	s.Require().NoError(err)

	stranger := model.Actor{UserID: s.user(model.RolePatient).ID, Role: model.RolePatient}
	_, err = s.svc.Propose(s.ctx, s.request(at(11, 0), 30), stranger)
	s.requireKind(err, apperrors.KindAuthorization)
}

func (s *SchedulerSuite) TestConcurrentOverlappingProposals() {
	var (
		g         errgroup.Group
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			<-start
			_, err := s.svc.Propose(s.ctx, s.request(at(14, 0), 60), s.staff)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.IsKind(err, apperrors.KindSchedulingConflict):
				conflicts++
			default:
				return err
			}
			return nil
		})
	}
	close(start)
	s.Require().NoError(g.Wait())
	s.Equal(1, successes)
	s.Equal(1, conflicts)
}

func (s *SchedulerSuite) TestCancelTwice() {
	appt, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)

	cancelled, err := s.svc.Cancel(s.ctx, appt.ID, s.staff, "sick")
	s.Require().NoError(err)
	s.Equal(model.AppointmentStatusCancelled, cancelled.Status)
	s.Equal("sick", *cancelled.CancelReason)
	s.Equal(s.staff.UserID, *cancelled.CancelledBy)
	s.Equal(now, *cancelled.CancelledAt)

	_, err = s.svc.Cancel(s.ctx, appt.ID, s.staff, "again")
	s.requireKind(err, apperrors.KindInvalidStateTransition)

	stored, err := s.svc.Get(s.ctx, appt.ID, s.staff)
	s.Require().NoError(err)
	s.Equal("sick", *stored.CancelReason)
	s.Len(s.notifier.cancelled, 1)
}

// pausingAppointments holds the first write until resume is closed.
type pausingAppointments struct {
	repository.AppointmentRepository
	once   sync.Once
	paused chan struct{}
	resume chan struct{}
}

func (p *pausingAppointments) Update(ctx context.Context, a *model.Appointment) error {
	p.once.Do(func() {
		close(p.paused)
		<-p.resume
	})
	return p.AppointmentRepository.Update(ctx, a)
}

func (s *SchedulerSuite) TestUpdateDoesNotReviveConcurrentCancel() {
	appt, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)

	paused := &pausingAppointments{
		AppointmentRepository: s.repos.Appointments,
		paused:                make(chan struct{}),
		resume:                make(chan struct{}),
	}
	repos := s.repos
	repos.Appointments = paused
	svc := NewService(repos, lock.NewKeyedMutex(), logger.Nop(), s.metrics,
		WithClock(func() time.Time { return now }),
	)

	var g errgroup.Group
	notes := "bring previous exams"
	g.Go(func() error {
		_, err := svc.Update(s.ctx, appt.ID, &model.UpdateAppointmentRequest{Notes: &notes})
		return err
	})
	<-paused.paused

	cancelled := make(chan error, 1)
	go func() {
		_, err := svc.Cancel(s.ctx, appt.ID, s.staff, "patient called")
		cancelled <- err
	}()

	select {
	case err := <-cancelled:
		s.Failf("cancel finished while the update held the schedule", "err: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(paused.resume)

	s.Require().NoError(g.Wait())
	s.Require().NoError(<-cancelled)

	stored, err := s.svc.Get(s.ctx, appt.ID, s.staff)
	s.Require().NoError(err)
	s.Equal(model.AppointmentStatusCancelled, stored.Status)
	s.Equal(notes, stored.Notes)

	// the freed slot can be rebooked and stays single-booked
	_, err = s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)
	_, err = s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.requireKind(err, apperrors.KindSchedulingConflict)
}

func (s *SchedulerSuite) TestMoveBetweenProfessionalsLocksBothSchedules() {
	appt, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)
	other := s.newProfessional()

	locker := &keyRecorder{Locker: lock.NewKeyedMutex()}
	svc := NewService(s.repos, locker, logger.Nop(), s.metrics,
		WithClock(func() time.Time { return now }),
	)
	_, err = svc.Update(s.ctx, appt.ID, &model.UpdateAppointmentRequest{ProfessionalID: &other.ID})
	s.Require().NoError(err)

	want := []string{lock.ProfessionalKey(s.professional.ID), lock.ProfessionalKey(other.ID)}
	if want[0] > want[1] {
		want[0], want[1] = want[1], want[0]
	}
	s.Equal(want, locker.keys)
}

type keyRecorder struct {
	lock.Locker
	keys []string
}

func (k *keyRecorder) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	k.keys = append(k.keys, key)
	return k.Locker.WithLock(ctx, key, fn)
}

func (s *SchedulerSuite) TestCancelUnknown() {
	_, err := s.svc.Cancel(s.ctx, uuid.New(), s.staff, "")
	s.requireKind(err, apperrors.KindNotFound)
}

func (s *SchedulerSuite) TestLifecycle() {
	appt, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)

	_, err = s.svc.Transition(s.ctx, appt.ID, model.AppointmentStatusCompleted)
	s.requireKind(err, apperrors.KindInvalidStateTransition)

	for _, next := range []model.AppointmentStatus{
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusInProgress,
		model.AppointmentStatusCompleted,
	} {
		got, err := s.svc.Transition(s.ctx, appt.ID, next)
		s.Require().NoError(err)
		s.Equal(next, got.Status)
	}

	_, err = s.svc.Cancel(s.ctx, appt.ID, s.staff, "late")
	s.requireKind(err, apperrors.KindInvalidStateTransition)

	_, err = s.svc.Transition(s.ctx, appt.ID, model.AppointmentStatusCancelled)
	s.requireKind(err, apperrors.KindValidation)
}

func (s *SchedulerSuite) TestNoShowFromConfirmed() {
	appt, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)
	_, err = s.svc.Transition(s.ctx, appt.ID, model.AppointmentStatusConfirmed)
	s.Require().NoError(err)
	got, err := s.svc.Transition(s.ctx, appt.ID, model.AppointmentStatusNoShow)
	s.Require().NoError(err)
	s.True(got.Status.Terminal())
}

func (s *SchedulerSuite) TestUpdateReschedule() {
	first, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)
	second, err := s.svc.Propose(s.ctx, s.request(at(11, 0), 30), s.staff)
	s.Require().NoError(err)

	// moving within its own slot does not conflict with itself
	later := at(10, 10)
	moved, err := s.svc.Update(s.ctx, first.ID, &model.UpdateAppointmentRequest{ScheduledDate: &later})
	s.Require().NoError(err)
	s.Equal(later, moved.ScheduledDate)
	s.Equal(model.AppointmentStatusScheduled, moved.Status)

	clash := at(11, 15)
	_, err = s.svc.Update(s.ctx, first.ID, &model.UpdateAppointmentRequest{ScheduledDate: &clash})
	s.requireKind(err, apperrors.KindSchedulingConflict)

	longer := 90
	_, err = s.svc.Update(s.ctx, first.ID, &model.UpdateAppointmentRequest{Duration: &longer})
	s.requireKind(err, apperrors.KindSchedulingConflict)

	other := s.newProfessional().ID
	moved, err = s.svc.Update(s.ctx, second.ID, &model.UpdateAppointmentRequest{ProfessionalID: &other, Duration: &longer})
	s.Require().NoError(err)
	s.Equal(other, moved.ProfessionalID)

	past := now.Add(-time.Hour)
	_, err = s.svc.Update(s.ctx, first.ID, &model.UpdateAppointmentRequest{ScheduledDate: &past})
	s.requireKind(err, apperrors.KindValidation)
}

func (s *SchedulerSuite) TestUpdateNotesOnTerminal() {
	appt, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)
	_, err = s.svc.Cancel(s.ctx, appt.ID, s.staff, "")
	s.Require().NoError(err)

	notes := "called to reschedule"
	got, err := s.svc.Update(s.ctx, appt.ID, &model.UpdateAppointmentRequest{Notes: &notes})
	s.Require().NoError(err)
	s.Equal(notes, got.Notes)
	s.Equal(model.AppointmentStatusCancelled, got.Status)

	later := at(15, 0)
	_, err = s.svc.Update(s.ctx, appt.ID, &model.UpdateAppointmentRequest{ScheduledDate: &later})
	s.requireKind(err, apperrors.KindValidation)
}

func (s *SchedulerSuite) TestListFiltersAndPatientScope() {
	for _, h := range []int{12, 9, 10} {
		_, err := s.svc.Propose(s.ctx, s.request(at(h, 0), 30), s.staff)
		s.Require().NoError(err)
	}

	otherUser := s.user(model.RolePatient)
	other := &model.Patient{UserID: otherUser.ID, Consent: true}
	s.Require().NoError(s.repos.Patients.Create(s.ctx, other))
	req := s.request(at(16, 0), 30)
	req.PatientID = other.ID
	_, err := s.svc.Propose(s.ctx, req, s.staff)
	s.Require().NoError(err)

	items, total, err := s.svc.List(s.ctx, s.staff, model.AppointmentFilter{}, model.Pagination{Page: 1, Limit: 2})
	s.Require().NoError(err)
	s.Equal(4, total)
	s.Require().Len(items, 2)
	s.Equal(at(9, 0), items[0].ScheduledDate)
	s.Equal(at(10, 0), items[1].ScheduledDate)

	self := model.Actor{UserID: s.patientUser.ID, Role: model.RolePatient}
	items, total, err = s.svc.List(s.ctx, self, model.AppointmentFilter{PatientID: &other.ID}, model.Pagination{})
	s.Require().NoError(err)
	s.Equal(3, total)
	for _, a := range items {
		s.Equal(s.patient.ID, a.PatientID)
	}

	_, err = s.svc.Get(s.ctx, items[0].ID, model.Actor{UserID: otherUser.ID, Role: model.RolePatient})
	s.requireKind(err, apperrors.KindAuthorization)

	day := at(0, 0).AddDate(0, 0, 1)
	_, total, err = s.svc.List(s.ctx, s.staff, model.AppointmentFilter{Day: &day}, model.Pagination{})
	s.Require().NoError(err)
	s.Zero(total)
}

func (s *SchedulerSuite) TestNotificationFailureDoesNotFailBooking() {
	s.notifier.fail = true
	_, err := s.svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.NoError(err)
}

// hangingNotifier never returns on its own, like an SMTP relay that accepts
// the connection and then stalls.
type hangingNotifier struct {
	release chan struct{}
}

func (n hangingNotifier) AppointmentScheduled(context.Context, *model.User, *model.Appointment) error {
	<-n.release
	return nil
}

func (n hangingNotifier) AppointmentCancelled(context.Context, *model.User, *model.Appointment) error {
	<-n.release
	return nil
}

func (s *SchedulerSuite) TestStalledNotifierDoesNotHoldBooking() {
	hang := hangingNotifier{release: make(chan struct{})}
	defer close(hang.release)

	svc := NewService(s.repos, lock.NewKeyedMutex(), logger.Nop(), s.metrics,
		WithClock(func() time.Time { return now }),
		WithNotifier(hang),
		WithNotifyTimeout(20*time.Millisecond),
	)

	started := time.Now()
	appt, err := svc.Propose(s.ctx, s.request(at(10, 0), 30), s.staff)
	s.Require().NoError(err)
	_, err = svc.Cancel(s.ctx, appt.ID, s.staff, "")
	s.Require().NoError(err)
	s.Less(time.Since(started), 2*time.Second)
}

type stuckLocker struct{}

func (stuckLocker) WithLock(ctx context.Context, _ string, _ func(context.Context) error) error {
	<-ctx.Done()
	return lock.ErrNotAcquired
}

func TestLockTimeoutIsPersistenceError(t *testing.T) {
	repos := memory.New().Repositories()
	ctx := context.Background()

	u := &model.User{Email: "p@example.com", Role: model.RolePatient, Active: true}
	d := &model.User{Email: "d@example.com", Role: model.RoleDoctor, Active: true}
	require.NoError(t, repos.Users.Create(ctx, u))
	require.NoError(t, repos.Users.Create(ctx, d))
	p := &model.Patient{UserID: u.ID, Consent: true}
	pro := &model.Professional{UserID: d.ID}
	require.NoError(t, repos.Patients.Create(ctx, p))
	require.NoError(t, repos.Professionals.Create(ctx, pro))

	svc := NewService(repos, stuckLocker{}, logger.Nop(), metrics.New("test", nil),
		WithClock(func() time.Time { return now }),
		WithTimeout(20*time.Millisecond),
	)
	_, err := svc.Propose(ctx, &model.CreateAppointmentRequest{
		PatientID: p.ID, ProfessionalID: pro.ID, Type: model.AppointmentTypeExam, ScheduledDate: at(10, 0),
	}, model.Actor{Role: model.RoleAdmin})

	assert.True(t, apperrors.IsKind(err, apperrors.KindPersistence), "got %v", err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.Retryable())
}
