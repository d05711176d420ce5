// Package auth registers users, logs them in and resolves bearer tokens to
// actors.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
	"github.com/jwalitptl/care-scheduler/internal/service/audit"
	"github.com/jwalitptl/care-scheduler/internal/service/privacy"
	"github.com/jwalitptl/care-scheduler/pkg/auth"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
	"github.com/jwalitptl/care-scheduler/pkg/security"
)

const invalidCredentials = "invalid credentials"

type Service struct {
	users   repository.UserRepository
	hasher  security.PasswordHasher
	tokens  auth.JWTService
	cipher  *privacy.Cipher
	auditor audit.Recorder
	clock   func() time.Time
	timeout time.Duration
	log     *logger.Logger
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(users repository.UserRepository, hasher security.PasswordHasher, tokens auth.JWTService,
	cipher *privacy.Cipher, auditor audit.Recorder, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		cipher:  cipher,
		auditor: auditor,
		clock:   func() time.Time { return time.Now().UTC() },
		timeout: 5 * time.Second,
		log:     log.With("component", "auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user. Anyone may sign up as a patient; every other role
// must be created by an administrator.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest, by *model.Actor) (*model.User, error) {
	if !req.Role.Valid() {
		return nil, apperrors.Validationf("unknown role %q", req.Role)
	}
	if req.Role != model.RolePatient && (by == nil || by.Role != model.RoleAdmin) {
		return nil, apperrors.Authorization("only administrators may create staff accounts")
	}

	hash, err := s.hasher.Hash(req.Password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return nil, apperrors.Validationf("password must be at least %d characters", security.MinPasswordLen)
	}
	if err != nil {
		return nil, apperrors.Persistence("hash password", err)
	}

	user := &model.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         req.Role,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Active:       true,
	}
	if req.NationalID != "" {
		if user.NationalID, err = s.cipher.Encrypt(req.NationalID); err != nil {
			return nil, apperrors.Persistence("encrypt national id", err)
		}
		user.NationalIDHash = privacy.Hash(req.NationalID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch err := s.users.Create(ctx, user); {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, apperrors.Validation("email already registered")
	case err != nil:
		return nil, apperrors.Persistence("create user", err)
	}
	s.log.Info("user registered", "user_id", user.ID.String(), "role", string(user.Role))
	return user, nil
}

// Login verifies the password and issues an access token. Every attempt is
// recorded as a LOGIN audit event with its outcome.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, repository.ErrNotFound) {
		s.recordLogin(ctx, "password", "", "failure", "unknown account")
		return nil, apperrors.Authentication(invalidCredentials)
	}
	if err != nil {
		return nil, apperrors.Persistence("get user", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.recordLogin(ctx, "password", user.ID.String(), "failure", "wrong password")
		return nil, apperrors.Authentication(invalidCredentials)
	}
	if !user.Active {
		s.recordLogin(ctx, "password", user.ID.String(), "failure", "inactive account")
		return nil, apperrors.Authentication("account is disabled")
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		// not worth failing the login over
		s.log.Warn("last login not updated", "user_id", user.ID.String(), "error", err.Error())
	}
	user.LastLoginAt = &now

	s.recordLogin(ctx, "password", user.ID.String(), "success", "")
	return tokens, nil
}

// Refresh trades a refresh token for a new token pair. The user must still
// exist and be active; the attempt is audited as a LOGIN with refresh set.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.recordLogin(ctx, "refresh", "", "failure", "invalid refresh token")
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperrors.Authentication("refresh token has expired")
		}
		return nil, apperrors.Authentication("invalid refresh token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, apperrors.Authentication("invalid refresh token")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		s.recordLogin(ctx, "refresh", "", "failure", "unknown account")
		return nil, apperrors.Authentication("invalid refresh token")
	}
	if err != nil {
		return nil, apperrors.Persistence("get user", err)
	}
	if !user.Active {
		s.recordLogin(ctx, "refresh", user.ID.String(), "failure", "inactive account")
		return nil, apperrors.Authentication("account is disabled")
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.recordLogin(ctx, "refresh", user.ID.String(), "success", "")
	return tokens, nil
}

func (s *Service) issue(user *model.User) (*model.TokenResponse, error) {
	access, expires, err := s.tokens.GenerateAccessToken(user.ID, string(user.Role), user.Email)
	if err != nil {
		return nil, apperrors.Persistence("sign token", err)
	}
	refresh, refreshExpires, err := s.tokens.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, apperrors.Persistence("sign refresh token", err)
	}
	return &model.TokenResponse{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresAt:        expires,
		RefreshExpiresAt: refreshExpires,
		User:             user,
	}, nil
}

func (s *Service) recordLogin(ctx context.Context, grant, userID, outcome, reason string) {
	detail := map[string]interface{}{"outcome": outcome, "grant": grant}
	if reason != "" {
		detail["reason"] = reason
	}
	s.auditor.Record(ctx, audit.Entry{
		ActorID:  userID,
		Action:   model.AuditActionLogin,
		Resource: model.ResourceAuth,
		Detail:   detail,
	})
}

// Logout records the event. Tokens are stateless and simply expire.
func (s *Service) Logout(ctx context.Context, actor model.Actor) {
	s.auditor.Record(ctx, audit.Entry{
		ActorID:  actor.UserID.String(),
		Action:   model.AuditActionLogout,
		Resource: model.ResourceAuth,
		Detail:   map[string]interface{}{"outcome": "success"},
	})
}

// Authenticate resolves a bearer token to the current state of its user.
// Deactivated or erased users are rejected even while their token is valid.
func (s *Service) Authenticate(ctx context.Context, token string) (model.Actor, error) {
	claims, err := s.tokens.ValidateToken(token)
	if errors.Is(err, auth.ErrTokenExpired) {
		return model.Actor{}, apperrors.Authentication("token has expired")
	}
	if err != nil {
		return model.Actor{}, apperrors.Authentication("invalid token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return model.Actor{}, apperrors.Authentication("invalid token")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Actor{}, apperrors.Authentication("invalid token")
	}
	if err != nil {
		return model.Actor{}, apperrors.Persistence("get user", err)
	}
	if !user.Active {
		return model.Actor{}, apperrors.Authentication("account is disabled")
	}
	return model.Actor{UserID: user.ID, Role: user.Role, Email: user.Email}, nil
}

// EnsureAdmin creates the first administrator when no account uses email.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err := s.users.GetByEmail(lctx, email)
	cancel()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, apperrors.Persistence("get user", err)
	}

	system := model.Actor{Role: model.RoleAdmin}
	user, err := s.Register(ctx, &model.RegisterRequest{
		Email:     email,
		Password:  password,
		Role:      model.RoleAdmin,
		FirstName: "Administrator",
	}, &system)
	if err != nil {
		return false, err
	}
	s.auditor.Record(ctx, audit.Entry{
		Action:     model.AuditActionCreate,
		Resource:   model.ResourceAuth,
		ResourceID: user.ID.String(),
		Detail:     map[string]interface{}{"bootstrap": true, "role": string(model.RoleAdmin)},
	})
	return true, nil
}
