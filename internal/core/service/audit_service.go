package service

import (
	"context"
	"fmt"

	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

// AuditService exposes the audit trail to administrators. Entries are only
// ever written by privileged workflows inside their own transactions.
type AuditService struct {
	repo ports.AuthRepository
	gate *Gate
}

func NewAuditService(repo ports.AuthRepository, gate *Gate) *AuditService {
	return &AuditService{repo: repo, gate: gate}
}

// List returns the full audit log, newest first.
// TODO: add cursor pagination once the log outgrows a single response.
func (s *AuditService) List(ctx context.Context, actorToken string) ([]*domain.AuditEntry, error) {
	if _, err := s.gate.Authorize(ctx, actorToken, domain.RoleAdmin); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListAuditLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}
