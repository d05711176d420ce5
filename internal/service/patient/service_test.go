package patient

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
	"github.com/jwalitptl/care-scheduler/internal/repository/memory"
	"github.com/jwalitptl/care-scheduler/internal/service/privacy"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

type fakeEraser struct {
	calls []uuid.UUID
}

func (f *fakeEraser) Erase(_ context.Context, id uuid.UUID, _ model.Actor) error {
	f.calls = append(f.calls, id)
	return nil
}

type PatientSuite struct {
	suite.Suite
	ctx    context.Context
	repos  repository.Repositories
	cipher *privacy.Cipher
	eraser *fakeEraser
	svc    *Service
	staff  model.Actor
}

func TestPatientSuite(t *testing.T) {
	suite.Run(t, new(PatientSuite))
}

func (s *PatientSuite) SetupTest() {
	s.ctx = context.Background()
	s.repos = memory.New().Repositories()
	var err error
	s.cipher, err = privacy.NewCipher("patient-tests-secret")
	s.Require().NoError(err)
	s.eraser = &fakeEraser{}
	s.svc = NewService(s.repos, s.cipher, s.eraser, logger.Nop())
	s.staff = model.Actor{UserID: uuid.New(), Role: model.RoleReceptionist}
}

func (s *PatientSuite) user(role model.Role, nationalID string) *model.User {
	u := &model.User{
		Email:     gofakeit.Email(),
		Role:      role,
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Active:    true,
	}
	if nationalID != "" {
		enc, err := s.cipher.Encrypt(nationalID)
		s.Require().NoError(err)
		u.NationalID = enc
	}
	s.Require().NoError(s.repos.Users.Create(s.ctx, u))
	return u
}

func (s *PatientSuite) TestCreateRequiresConsent() {
	u := s.user(model.RolePatient, "")
	_, err := s.svc.Create(s.ctx, &model.CreatePatientRequest{UserID: u.ID})
	s.True(apperrors.IsKind(err, apperrors.KindValidation))
}

func (s *PatientSuite) TestCreateRules() {
	doctor := s.user(model.RoleDoctor, "")
	_, err := s.svc.Create(s.ctx, &model.CreatePatientRequest{UserID: doctor.ID, Consent: true})
	s.True(apperrors.IsKind(err, apperrors.KindValidation))

	_, err = s.svc.Create(s.ctx, &model.CreatePatientRequest{UserID: uuid.New(), Consent: true})
	s.True(apperrors.IsKind(err, apperrors.KindNotFound))

	u := s.user(model.RolePatient, "")
	_, err = s.svc.Create(s.ctx, &model.CreatePatientRequest{UserID: u.ID, Consent: true})
	s.Require().NoError(err)
	_, err = s.svc.Create(s.ctx, &model.CreatePatientRequest{UserID: u.ID, Consent: true})
	s.True(apperrors.IsKind(err, apperrors.KindValidation))
}

func (s *PatientSuite) TestProfileMasksNationalID() {
	u := s.user(model.RolePatient, "98765432100")
	created, err := s.svc.Create(s.ctx, &model.CreatePatientRequest{UserID: u.ID, Consent: true, BloodType: "A+"})
	s.Require().NoError(err)
	s.NotNil(created.ConsentDate)

	got, err := s.svc.Get(s.ctx, created.ID, s.staff)
	s.Require().NoError(err)
	s.Equal("***.***.*100-**", got.NationalIDMasked)
	s.Equal(u.Email, got.Email)
	s.Equal("A+", got.BloodType)
}

func (s *PatientSuite) TestPatientSeesOnlyOwnProfile() {
	mine := s.user(model.RolePatient, "")
	theirs := s.user(model.RolePatient, "")
	p1, err := s.svc.Create(s.ctx, &model.CreatePatientRequest{UserID: mine.ID, Consent: true})
	s.Require().NoError(err)
	p2, err := s.svc.Create(s.ctx, &model.CreatePatientRequest{UserID: theirs.ID, Consent: true})
	s.Require().NoError(err)

	self := model.Actor{UserID: mine.ID, Role: model.RolePatient}
	_, err = s.svc.Get(s.ctx, p1.ID, self)
	s.NoError(err)
	_, err = s.svc.Get(s.ctx, p2.ID, self)
	s.True(apperrors.IsKind(err, apperrors.KindAuthorization))

	list, total, err := s.svc.List(s.ctx, self, model.Pagination{})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(p1.ID, list[0].ID)

	_, total, err = s.svc.List(s.ctx, s.staff, model.Pagination{})
	s.Require().NoError(err)
	s.Equal(2, total)

	allergies := "penicillin"
	_, err = s.svc.Update(s.ctx, p2.ID, &model.UpdatePatientRequest{Allergies: &allergies}, self)
	s.True(apperrors.IsKind(err, apperrors.KindAuthorization))

	updated, err := s.svc.Update(s.ctx, p1.ID, &model.UpdatePatientRequest{Allergies: &allergies}, self)
	s.Require().NoError(err)
	s.Equal(allergies, updated.Allergies)
	s.True(updated.Consent)
}

func (s *PatientSuite) TestDeleteDelegatesToErasure() {
	id := uuid.New()
	s.Require().NoError(s.svc.Delete(s.ctx, id, model.Actor{Role: model.RoleAdmin}))
	s.Equal([]uuid.UUID{id}, s.eraser.calls)
}

func (s *PatientSuite) TestConsentDateUsesClock() {
	fixed := time.Date(2030, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(s.repos, s.cipher, s.eraser, logger.Nop(), WithClock(func() time.Time { return fixed }))
	u := s.user(model.RolePatient, "")
	p, err := svc.Create(s.ctx, &model.CreatePatientRequest{UserID: u.ID, Consent: true})
	s.Require().NoError(err)
	s.Equal(fixed, *p.ConsentDate)
}
