package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	dto "github.com/prometheus/client_model/go"

	"github.com/rbac-authz/auth-api/internal/api/metrics"
	"github.com/rbac-authz/auth-api/internal/api/middleware"
	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

type stubPromotionService struct {
	promoteFn func(ctx context.Context, actorToken, targetUserID string) (*ports.PromotionResult, error)
}

func (s *stubPromotionService) Promote(ctx context.Context, actorToken, targetUserID string) (*ports.PromotionResult, error) {
	return s.promoteFn(ctx, actorToken, targetUserID)
}

type stubAuditService struct {
	listFn func(ctx context.Context, actorToken string) ([]*domain.AuditEntry, error)
}

func (s *stubAuditService) List(ctx context.Context, actorToken string) ([]*domain.AuditEntry, error) {
	return s.listFn(ctx, actorToken)
}

func promoteContext(e *echo.Echo, rec *httptest.ResponseRecorder, token, target string) echo.Context {
	req := httptest.NewRequest(http.MethodPost, "/admin/promote/"+target, nil)
	c := e.NewContext(req, rec)
	c.SetPath("/admin/promote/:user_id")
	c.SetParamNames("user_id")
	c.SetParamValues(target)
	if token != "" {
		c.Set(middleware.ContextKeyToken, token)
	}
	return c
}

func TestAdminHandler_Promote_Success(t *testing.T) {
	e := newTestEcho()
	promotions := &stubPromotionService{
		promoteFn: func(ctx context.Context, actorToken, targetUserID string) (*ports.PromotionResult, error) {
			if actorToken != "admin-token" || targetUserID != "u2" {
				t.Fatalf("unexpected args: %s %s", actorToken, targetUserID)
			}
			return &ports.PromotionResult{UserID: "u2", Roles: []string{"viewer", "admin"}}, nil
		},
	}
	handler := NewAdminHandler(promotions, &stubAuditService{})

	rec := httptest.NewRecorder()
	if err := handler.Promote(promoteContext(e, rec, "admin-token", "u2")); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp promotionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.UserID != "u2" || resp.AlreadyAdmin || len(resp.Roles) != 2 {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestAdminHandler_Promote_AlreadyAdmin(t *testing.T) {
	e := newTestEcho()
	promotions := &stubPromotionService{
		promoteFn: func(ctx context.Context, actorToken, targetUserID string) (*ports.PromotionResult, error) {
			return &ports.PromotionResult{UserID: targetUserID, Roles: []string{"viewer", "admin"}, AlreadyAdmin: true}, nil
		},
	}
	handler := NewAdminHandler(promotions, &stubAuditService{})

	rec := httptest.NewRecorder()
	if err := handler.Promote(promoteContext(e, rec, "admin-token", "u2")); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp promotionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.AlreadyAdmin || resp.Message != "user is already an admin" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestAdminHandler_Promote_PropagatesErrors(t *testing.T) {
	for _, want := range []error{domain.ErrForbidden, domain.ErrUserNotFound, domain.ErrPromotionFailed} {
		t.Run(want.Error(), func(t *testing.T) {
			e := newTestEcho()
			promotions := &stubPromotionService{
				promoteFn: func(ctx context.Context, actorToken, targetUserID string) (*ports.PromotionResult, error) {
					return nil, want
				},
			}
			handler := NewAdminHandler(promotions, &stubAuditService{})

			err := handler.Promote(promoteContext(e, httptest.NewRecorder(), "tok", "u2"))
			if !errors.Is(err, want) {
				t.Fatalf("expected %v, got %v", want, err)
			}
		})
	}
}

func TestAdminHandler_Promote_HeaderFallback(t *testing.T) {
	e := newTestEcho()
	promotions := &stubPromotionService{
		promoteFn: func(ctx context.Context, actorToken, targetUserID string) (*ports.PromotionResult, error) {
			if actorToken != "from-header" {
				t.Fatalf("unexpected token %q", actorToken)
			}
			return &ports.PromotionResult{UserID: targetUserID}, nil
		},
	}
	handler := NewAdminHandler(promotions, &stubAuditService{})

	rec := httptest.NewRecorder()
	c := promoteContext(e, rec, "", "u2")
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer from-header")

	if err := handler.Promote(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func TestAdminHandler_AuditLogs(t *testing.T) {
	e := newTestEcho()
	actor := "u1"
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	audit := &stubAuditService{
		listFn: func(ctx context.Context, actorToken string) ([]*domain.AuditEntry, error) {
			return []*domain.AuditEntry{
				{ID: "a2", ActorUserID: &actor, Action: domain.ActionPromoteUser, Target: "user_id=u2", Timestamp: ts},
				{ID: "a1", Action: domain.ActionBootstrapAdmin, Target: "user_id=u1", Timestamp: ts.Add(-time.Hour)},
			}, nil
		},
	}
	handler := NewAdminHandler(&stubPromotionService{}, audit)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/admin/audit-logs", nil), rec)
	c.Set(middleware.ContextKeyToken, "admin-token")

	if err := handler.AuditLogs(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp))
	}
	if resp[0]["actor_user_id"] != "u1" || resp[0]["action"] != domain.ActionPromoteUser {
		t.Fatalf("unexpected first entry: %+v", resp[0])
	}
	if v, ok := resp[1]["actor_user_id"]; !ok || v != nil {
		t.Fatalf("expected explicit null actor, got %v", v)
	}
}

func TestAdminHandler_AuditLogs_EmptyIsArray(t *testing.T) {
	e := newTestEcho()
	audit := &stubAuditService{
		listFn: func(ctx context.Context, actorToken string) ([]*domain.AuditEntry, error) {
			return nil, nil
		},
	}
	handler := NewAdminHandler(&stubPromotionService{}, audit)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/admin/audit-logs", nil), rec)
	c.Set(middleware.ContextKeyToken, "admin-token")

	if err := handler.AuditLogs(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Fatalf("expected empty array, got %q", got)
	}
}

func adminDecisionCount(t *testing.T, decision string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.AuthorizationDecisionsTotal.WithLabelValues(domain.RoleAdmin, decision).Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestAdminHandler_CountsAdminDecisions(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		err      error
		decision string
	}{
		{"allowed", "admin-token", nil, "allow"},
		{"allowed but target missing", "admin-token", domain.ErrUserNotFound, "allow"},
		{"forbidden", "viewer-token", domain.ErrForbidden, "deny"},
		{"expired token", "old-token", domain.ErrExpiredToken, "unauthenticated"},
		{"no token", "", nil, "unauthenticated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			promotions := &stubPromotionService{
				promoteFn: func(ctx context.Context, actorToken, targetUserID string) (*ports.PromotionResult, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &ports.PromotionResult{UserID: targetUserID}, nil
				},
			}
			handler := NewAdminHandler(promotions, &stubAuditService{})

			before := adminDecisionCount(t, tt.decision)
			_ = handler.Promote(promoteContext(e, httptest.NewRecorder(), tt.token, "u2"))

			if got := adminDecisionCount(t, tt.decision) - before; got != 1 {
				t.Fatalf("expected one %q decision, got %v", tt.decision, got)
			}
		})
	}
}

func TestAdminHandler_AuditLogs_CountsDeny(t *testing.T) {
	e := newTestEcho()
	audit := &stubAuditService{
		listFn: func(ctx context.Context, actorToken string) ([]*domain.AuditEntry, error) {
			return nil, domain.ErrForbidden
		},
	}
	handler := NewAdminHandler(&stubPromotionService{}, audit)

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/admin/audit-logs", nil), httptest.NewRecorder())
	c.Set(middleware.ContextKeyToken, "viewer-token")

	before := adminDecisionCount(t, "deny")
	if err := handler.AuditLogs(c); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if got := adminDecisionCount(t, "deny") - before; got != 1 {
		t.Fatalf("expected one deny decision, got %v", got)
	}
}
