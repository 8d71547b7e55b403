package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rbac-authz/auth-api/internal/api/metrics"
	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

// Context keys set by Auth.
const (
	ContextKeyUser  = "user"
	ContextKeyToken = "token"
)

// Auth resolves the bearer token to a stored user and injects both into the
// echo context. Roles come from storage, never from the token.
func Auth(authz ports.Authorizer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				metrics.AuthorizationDecisionsTotal.WithLabelValues("any", "unauthenticated").Inc()
				return err
			}

			user, err := authz.Authenticate(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthenticated) {
					metrics.AuthorizationDecisionsTotal.WithLabelValues("any", "unauthenticated").Inc()
				}
				return err
			}

			c.Set(ContextKeyUser, user)
			c.Set(ContextKeyToken, token)
			return next(c)
		}
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", domain.ErrMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", domain.ErrMalformedToken
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", domain.ErrMissingToken
	}
	return token, nil
}
