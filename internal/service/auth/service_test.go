package auth

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
	"github.com/jwalitptl/care-scheduler/internal/repository/memory"
	"github.com/jwalitptl/care-scheduler/internal/service/audit"
	"github.com/jwalitptl/care-scheduler/internal/service/privacy"
	"github.com/jwalitptl/care-scheduler/pkg/auth"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
	"github.com/jwalitptl/care-scheduler/pkg/metrics"
	"github.com/jwalitptl/care-scheduler/pkg/security"
)

type AuthSuite struct {
	suite.Suite
	ctx    context.Context
	repos  repository.Repositories
	trail  *audit.Service
	cipher *privacy.Cipher
	svc    *Service
	admin  *model.Actor
}

func TestAuthSuite(t *testing.T) {
	suite.Run(t, new(AuthSuite))
}

func (s *AuthSuite) SetupTest() {
	s.ctx = context.Background()
	s.repos = memory.New().Repositories()
	s.trail = audit.NewService(s.repos.Audit, audit.Config{Mode: audit.ModeSync}, logger.Nop(), metrics.New("test", nil))

	var err error
	s.cipher, err = privacy.NewCipher("field-secret-for-tests")
	s.Require().NoError(err)

	s.svc = NewService(s.repos.Users, security.NewBcryptHasher(bcrypt.MinCost),
		auth.NewJWTService("jwt-secret", "care-scheduler", time.Hour), s.cipher, s.trail, logger.Nop())
	s.admin = &model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}
}

func (s *AuthSuite) register(role model.Role) (*model.User, string) {
	password := gofakeit.Password(true, true, true, false, false, 12)
	u, err := s.svc.Register(s.ctx, &model.RegisterRequest{
		Email:      gofakeit.Email(),
		Password:   password,
		Role:       role,
		FirstName:  gofakeit.FirstName(),
		NationalID: "12345678901",
	}, s.admin)
	s.Require().NoError(err)
	return u, password
}

func (s *AuthSuite) TestRegisterStoresProtectedFields() {
	u, password := s.register(model.RolePatient)

	stored, err := s.repos.Users.Get(s.ctx, u.ID)
	s.Require().NoError(err)
	s.NotEqual(password, stored.PasswordHash)
	s.NotEqual("12345678901", stored.NationalID)
	s.Equal(privacy.Hash("12345678901"), stored.NationalIDHash)

	clear, err := s.cipher.Decrypt(stored.NationalID)
	s.Require().NoError(err)
	s.Equal("12345678901", clear)
}

func (s *AuthSuite) TestRegisterRules() {
	_, err := s.svc.Register(s.ctx, &model.RegisterRequest{
		Email: "doc@example.com", Password: "long-enough", Role: model.RoleDoctor, FirstName: "D",
	}, nil)
	s.True(apperrors.IsKind(err, apperrors.KindAuthorization))

	_, err = s.svc.Register(s.ctx, &model.RegisterRequest{
		Email: "p@example.com", Password: "short", Role: model.RolePatient, FirstName: "P",
	}, nil)
	s.True(apperrors.IsKind(err, apperrors.KindValidation))

	_, err = s.svc.Register(s.ctx, &model.RegisterRequest{
		Email: "p@example.com", Password: "long-enough", Role: model.RolePatient, FirstName: "P",
	}, nil)
	s.Require().NoError(err)

	_, err = s.svc.Register(s.ctx, &model.RegisterRequest{
		Email: "P@Example.com", Password: "long-enough", Role: model.RolePatient, FirstName: "P",
	}, nil)
	s.True(apperrors.IsKind(err, apperrors.KindValidation))
}

func (s *AuthSuite) TestLoginAndAuthenticate() {
	u, password := s.register(model.RoleNurse)

	resp, err := s.svc.Login(s.ctx, &model.LoginRequest{Email: u.Email, Password: password})
	s.Require().NoError(err)
	s.Equal("Bearer", resp.TokenType)
	s.NotNil(resp.User.LastLoginAt)

	actor, err := s.svc.Authenticate(s.ctx, resp.AccessToken)
	s.Require().NoError(err)
	s.Equal(u.ID, actor.UserID)
	s.Equal(model.RoleNurse, actor.Role)

	logs, _, err := s.trail.List(s.ctx, model.AuditFilter{Action: model.AuditActionLogin}, model.Pagination{})
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(u.ID.String(), *logs[0].ActorID)
	s.Equal("success", logs[0].Detail["outcome"])
	s.Nil(logs[0].ResourceID)
}

func (s *AuthSuite) TestLoginFailuresAreAudited() {
	u, _ := s.register(model.RolePatient)

	_, err := s.svc.Login(s.ctx, &model.LoginRequest{Email: u.Email, Password: "wrong-password"})
	s.True(apperrors.IsKind(err, apperrors.KindAuthentication))

	_, err = s.svc.Login(s.ctx, &model.LoginRequest{Email: "nobody@example.com", Password: "whatever1"})
	s.True(apperrors.IsKind(err, apperrors.KindAuthentication))

	logs, total, err := s.trail.List(s.ctx, model.AuditFilter{Action: model.AuditActionLogin}, model.Pagination{})
	s.Require().NoError(err)
	s.Equal(2, total)
	for _, l := range logs {
		s.Equal("failure", l.Detail["outcome"])
	}
}

func (s *AuthSuite) TestInactiveUserIsRejected() {
	u, password := s.register(model.RoleDoctor)
	resp, err := s.svc.Login(s.ctx, &model.LoginRequest{Email: u.Email, Password: password})
	s.Require().NoError(err)

	stored, err := s.repos.Users.Get(s.ctx, u.ID)
	s.Require().NoError(err)
	stored.Active = false
	s.Require().NoError(s.repos.Users.Update(s.ctx, stored))

	_, err = s.svc.Authenticate(s.ctx, resp.AccessToken)
	s.True(apperrors.IsKind(err, apperrors.KindAuthentication))

	_, err = s.svc.Login(s.ctx, &model.LoginRequest{Email: u.Email, Password: password})
	s.True(apperrors.IsKind(err, apperrors.KindAuthentication))
}

func (s *AuthSuite) TestRefreshIssuesNewPair() {
	u, password := s.register(model.RoleReceptionist)
	resp, err := s.svc.Login(s.ctx, &model.LoginRequest{Email: u.Email, Password: password})
	s.Require().NoError(err)
	s.NotEmpty(resp.RefreshToken)

	// an access token is not accepted as a refresh token
	_, err = s.svc.Refresh(s.ctx, resp.AccessToken)
	s.True(apperrors.IsKind(err, apperrors.KindAuthentication))

	refreshed, err := s.svc.Refresh(s.ctx, resp.RefreshToken)
	s.Require().NoError(err)
	s.NotEmpty(refreshed.RefreshToken)

	actor, err := s.svc.Authenticate(s.ctx, refreshed.AccessToken)
	s.Require().NoError(err)
	s.Equal(u.ID, actor.UserID)

	// a refresh token cannot be used as a bearer token
	_, err = s.svc.Authenticate(s.ctx, refreshed.RefreshToken)
	s.True(apperrors.IsKind(err, apperrors.KindAuthentication))

	logs, _, err := s.trail.List(s.ctx, model.AuditFilter{Action: model.AuditActionLogin}, model.Pagination{})
	s.Require().NoError(err)
	grants := map[string]int{}
	for _, l := range logs {
		grants[l.Detail["grant"].(string)+":"+l.Detail["outcome"].(string)]++
	}
	s.Equal(map[string]int{"password:success": 1, "refresh:failure": 1, "refresh:success": 1}, grants)
}

func (s *AuthSuite) TestRefreshRejectsDisabledUser() {
	u, password := s.register(model.RolePatient)
	resp, err := s.svc.Login(s.ctx, &model.LoginRequest{Email: u.Email, Password: password})
	s.Require().NoError(err)

	stored, err := s.repos.Users.Get(s.ctx, u.ID)
	s.Require().NoError(err)
	stored.Active = false
	s.Require().NoError(s.repos.Users.Update(s.ctx, stored))

	_, err = s.svc.Refresh(s.ctx, resp.RefreshToken)
	s.True(apperrors.IsKind(err, apperrors.KindAuthentication))
}

func (s *AuthSuite) TestLogoutIsAudited() {
	actor := model.Actor{UserID: uuid.New(), Role: model.RolePatient}
	s.svc.Logout(s.ctx, actor)

	logs, _, err := s.trail.List(s.ctx, model.AuditFilter{Action: model.AuditActionLogout}, model.Pagination{})
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(actor.UserID.String(), *logs[0].ActorID)
}

func (s *AuthSuite) TestAuthenticateGarbage() {
	_, err := s.svc.Authenticate(s.ctx, "garbage")
	s.True(apperrors.IsKind(err, apperrors.KindAuthentication))
}

func (s *AuthSuite) TestEnsureAdminIsIdempotent() {
	created, err := s.svc.EnsureAdmin(s.ctx, "Root@Clinic.test", "bootstrap-pass")
	s.Require().NoError(err)
	s.True(created)

	created, err = s.svc.EnsureAdmin(s.ctx, "root@clinic.test", "other-pass")
	s.Require().NoError(err)
	s.False(created)

	resp, err := s.svc.Login(s.ctx, &model.LoginRequest{Email: "root@clinic.test", Password: "bootstrap-pass"})
	s.Require().NoError(err)
	s.Equal(model.RoleAdmin, resp.User.Role)
}
