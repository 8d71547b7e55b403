package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rbac-authz/auth-api/internal/api/middleware"
	"github.com/rbac-authz/auth-api/internal/core/domain"
)

func TestProtectedHandler_Me(t *testing.T) {
	e := newTestEcho()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/protected/me", nil), rec)
	c.Set(middleware.ContextKeyUser, &domain.User{ID: "u1", Email: "a@x.com", Roles: []string{"viewer"}})

	if err := NewProtectedHandler().Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.ID != "u1" || resp.Email != "a@x.com" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestProtectedHandler_Me_WithoutUser(t *testing.T) {
	e := newTestEcho()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/protected/me", nil), httptest.NewRecorder())

	if err := NewProtectedHandler().Me(c); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestProtectedHandler_Admin(t *testing.T) {
	e := newTestEcho()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/protected/admin", nil), rec)
	c.Set(middleware.ContextKeyUser, &domain.User{ID: "u1", Roles: []string{"viewer", "admin"}})

	if err := NewProtectedHandler().Admin(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp adminAreaResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Message == "" || resp.User.ID != "u1" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Pinger
		want   int
	}{
		{
			name:   "all healthy",
			checks: map[string]Pinger{"store": func(context.Context) error { return nil }},
			want:   http.StatusOK,
		},
		{
			name: "redis down",
			checks: map[string]Pinger{
				"store": func(context.Context) error { return nil },
				"redis": func(context.Context) error { return errors.New("connection refused") },
			},
			want: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/ready", nil), rec)

			if err := NewHealthDependenciesHandler(tt.checks).Readiness(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}

			var resp readinessResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if len(resp.Dependencies) != len(tt.checks) {
				t.Fatalf("expected %d dependencies, got %+v", len(tt.checks), resp.Dependencies)
			}
		})
	}
}
