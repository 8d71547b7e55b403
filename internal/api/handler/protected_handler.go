package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ProtectedHandler serves routes that only echo the resolved identity.
type ProtectedHandler struct{}

func NewProtectedHandler() *ProtectedHandler {
	return &ProtectedHandler{}
}

type adminAreaResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// Me returns the caller's identity with roles read from storage.
//
// @Summary      Current user
// @Tags         protected
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userResponse
// @Failure      401  {object}  map[string]string
// @Router       /protected/me [get]
func (h *ProtectedHandler) Me(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// Admin is reachable only by administrators.
//
// @Summary      Admin area
// @Tags         protected
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  adminAreaResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /protected/admin [get]
func (h *ProtectedHandler) Admin(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, adminAreaResponse{
		Message: "welcome, admin",
		User:    toUserResponse(user),
	})
}
