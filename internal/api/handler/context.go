package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/rbac-authz/auth-api/internal/api/middleware"
	"github.com/rbac-authz/auth-api/internal/core/domain"
)

// ctxUser returns the user loaded by the Auth middleware. A missing user
// means the route was mounted without Auth.
func ctxUser(c echo.Context) (*domain.User, error) {
	user, ok := c.Get(middleware.ContextKeyUser).(*domain.User)
	if !ok || user == nil {
		return nil, domain.ErrUnauthenticated
	}
	return user, nil
}

// ctxToken returns the raw bearer token, falling back to the header when the
// route is not behind Auth.
func ctxToken(c echo.Context) (string, error) {
	if token, ok := c.Get(middleware.ContextKeyToken).(string); ok && token != "" {
		return token, nil
	}
	return middleware.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
}
