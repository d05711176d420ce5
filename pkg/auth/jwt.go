// Package auth issues and validates the bearer tokens carried by API requests.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims carried by tokens. Subject is the user id; refresh tokens carry no
// role or email.
type Claims struct {
	Kind  string `json:"kind"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type JWTService interface {
	GenerateAccessToken(userID uuid.UUID, role, email string) (string, time.Time, error)
	GenerateRefreshToken(userID uuid.UUID) (string, time.Time, error)
	ValidateToken(token string) (*Claims, error)
	ValidateRefreshToken(token string) (*Claims, error)
}

type hmacService struct {
	secret        []byte
	issuer        string
	expiry        time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

type Option func(*hmacService)

// WithRefreshExpiry sets the lifetime of refresh tokens (default 7 days).
func WithRefreshExpiry(d time.Duration) Option {
	return func(s *hmacService) {
		if d > 0 {
			s.refreshExpiry = d
		}
	}
}

// NewJWTService signs tokens with HS256.
func NewJWTService(secret, issuer string, expiry time.Duration, opts ...Option) JWTService {
	s := &hmacService{
		secret:        []byte(secret),
		issuer:        issuer,
		expiry:        expiry,
		refreshExpiry: 7 * 24 * time.Hour,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *hmacService) GenerateAccessToken(userID uuid.UUID, role, email string) (string, time.Time, error) {
	return s.sign(Claims{Kind: KindAccess, Role: role, Email: email}, userID, s.expiry)
}

func (s *hmacService) GenerateRefreshToken(userID uuid.UUID) (string, time.Time, error) {
	return s.sign(Claims{Kind: KindRefresh}, userID, s.refreshExpiry)
}

func (s *hmacService) sign(claims Claims, userID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	issued := s.now()
	expires := issued.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateToken accepts access tokens only.
func (s *hmacService) ValidateToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, KindAccess)
}

// ValidateRefreshToken accepts refresh tokens only.
func (s *hmacService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, KindRefresh)
}

func (s *hmacService) validate(tokenString, kind string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
