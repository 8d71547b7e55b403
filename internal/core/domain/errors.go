package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrRoleNotFound       = errors.New("role not found")

	// ErrUnauthenticated covers every "not logged in" outcome. The token
	// errors below wrap it so callers can match either the kind or the family.
	ErrUnauthenticated = errors.New("not authenticated")
	ErrMissingToken    = fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	ErrMalformedToken  = fmt.Errorf("%w: malformed token", ErrUnauthenticated)
	ErrExpiredToken    = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrTamperedToken   = fmt.Errorf("%w: token signature invalid", ErrUnauthenticated)

	// ErrForbidden means the caller is authenticated but lacks the role.
	ErrForbidden = errors.New("access forbidden")

	// ErrConfiguration signals broken server setup such as a
	// missing seed role. Operators must be alerted.
	ErrConfiguration = errors.New("server configuration error")

	// ErrPromotionFailed masks storage failures during a promotion commit.
	ErrPromotionFailed = errors.New("promotion failed, please retry")
)
