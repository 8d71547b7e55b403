package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/rbac-authz/auth-api/internal/api/metrics"
	"github.com/rbac-authz/auth-api/internal/core/domain"
)

// RBAC enforces role-based access control. It must run after Auth; the user
// it checks was loaded from storage for this request.
func RBAC(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := c.Get(ContextKeyUser).(*domain.User)
			if !ok || user == nil {
				metrics.AuthorizationDecisionsTotal.WithLabelValues(role, "unauthenticated").Inc()
				return domain.ErrUnauthenticated
			}
			if !user.HasRole(role) {
				metrics.AuthorizationDecisionsTotal.WithLabelValues(role, "deny").Inc()
				return domain.ErrForbidden
			}

			metrics.AuthorizationDecisionsTotal.WithLabelValues(role, "allow").Inc()
			return next(c)
		}
	}
}
