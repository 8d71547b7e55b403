package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rbac-authz/auth-api/internal/api/metrics"
	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

// AdminHandler exposes the privileged operations. Both services authorize
// the caller themselves from the raw token, so the routes are mounted without
// the Auth middleware and the admin decision is counted here.
type AdminHandler struct {
	promotions ports.PromotionService
	audit      ports.AuditService
}

func NewAdminHandler(promotions ports.PromotionService, audit ports.AuditService) *AdminHandler {
	return &AdminHandler{promotions: promotions, audit: audit}
}

type promotionResponse struct {
	Message      string   `json:"message"`
	UserID       string   `json:"user_id"`
	Roles        []string `json:"roles"`
	AlreadyAdmin bool     `json:"already_admin"`
}

type auditEntryResponse struct {
	ID          string    `json:"id"`
	ActorUserID *string   `json:"actor_user_id"`
	Action      string    `json:"action"`
	Target      string    `json:"target"`
	Timestamp   time.Time `json:"timestamp"`
}

// Promote grants the admin role to the target user.
//
// @Summary      Promote a user to admin
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      string  true  "Target user ID"
// @Success      200      {object}  promotionResponse
// @Failure      401      {object}  map[string]string
// @Failure      403      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      503      {object}  map[string]string
// @Router       /admin/promote/{user_id} [post]
func (h *AdminHandler) Promote(c echo.Context) error {
	token, err := ctxToken(c)
	if err != nil {
		recordAdminDecision(err)
		return err
	}

	res, err := h.promotions.Promote(c.Request().Context(), token, c.Param("user_id"))
	recordAdminDecision(err)
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues(promotionFailureLabel(err)).Inc()
		return err
	}

	msg := "user promoted to admin"
	if res.AlreadyAdmin {
		msg = "user is already an admin"
		metrics.PromotionsTotal.WithLabelValues("already_admin").Inc()
	} else {
		metrics.PromotionsTotal.WithLabelValues("promoted").Inc()
	}

	return c.JSON(http.StatusOK, promotionResponse{
		Message:      msg,
		UserID:       res.UserID,
		Roles:        res.Roles,
		AlreadyAdmin: res.AlreadyAdmin,
	})
}

func promotionFailureLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrForbidden):
		return "denied"
	default:
		return "failed"
	}
}

// recordAdminDecision counts the admin gate outcome of a service call.
// Errors raised after the gate passed (missing target, failed commit) still
// count as allow; infrastructure errors from the gate itself are not counted.
func recordAdminDecision(err error) {
	var decision string
	switch {
	case err == nil,
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrPromotionFailed):
		decision = "allow"
	case errors.Is(err, domain.ErrForbidden):
		decision = "deny"
	case errors.Is(err, domain.ErrUnauthenticated):
		decision = "unauthenticated"
	default:
		return
	}
	metrics.AuthorizationDecisionsTotal.WithLabelValues(domain.RoleAdmin, decision).Inc()
}

// AuditLogs lists the audit trail, newest first.
//
// @Summary      List audit logs
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   auditEntryResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /admin/audit-logs [get]
func (h *AdminHandler) AuditLogs(c echo.Context) error {
	token, err := ctxToken(c)
	if err != nil {
		recordAdminDecision(err)
		return err
	}

	entries, err := h.audit.List(c.Request().Context(), token)
	recordAdminDecision(err)
	if err != nil {
		return err
	}

	resp := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, auditEntryResponse{
			ID:          e.ID,
			ActorUserID: e.ActorUserID,
			Action:      e.Action,
			Target:      e.Target,
			Timestamp:   e.Timestamp,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
