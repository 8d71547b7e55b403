package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rbac-authz/auth-api/internal/core/domain"
)

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = 30 * time.Minute

var errMissingSecret = errors.New("token: signing secret is empty")

// TokenClaims is the payload of an access token. Roles is a snapshot taken at
// issuance and is advisory only: authorization always re-reads roles from
// storage.
type TokenClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed token plus its expiry.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenService issues and validates HS256 access tokens. The secret is set
// once at construction and never changes for the life of the process.
type TokenService struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService)

// WithIssuer sets the iss claim and requires it on validation.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		s.issuer = strings.TrimSpace(issuer)
	}
}

// WithLeeway tolerates clock skew when checking exp.
func WithLeeway(d time.Duration) TokenOption {
	return func(s *TokenService) {
		if d > 0 {
			s.leeway = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errMissingSecret
	}
	s := &TokenService{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Now reads the service clock.
func (s *TokenService) Now() time.Time {
	return s.now()
}

// Issue signs a token for subject carrying roles, valid from now for ttl.
func (s *TokenService) Issue(subject string, roles []string, now time.Time, ttl time.Duration) (IssuedToken, error) {
	if strings.TrimSpace(subject) == "" {
		return IssuedToken{}, errors.New("token: subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	exp := now.Add(ttl)
	claims := TokenClaims{
		Roles: append([]string{}, roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	// exp is encoded with second precision.
	return IssuedToken{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Validate checks the signature first, then expiry against the service clock.
// Errors are domain.ErrMalformedToken, domain.ErrTamperedToken or
// domain.ErrExpiredToken, all of which wrap domain.ErrUnauthenticated.
func (s *TokenService) Validate(token string) (*TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(s.leeway))
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return nil, domain.ErrMalformedToken
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return domain.ErrTamperedToken
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrExpiredToken
	default:
		return domain.ErrMalformedToken
	}
}
