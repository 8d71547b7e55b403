package domain

import (
	"fmt"
	"time"
)

const (
	ActionPromoteUser    = "PROMOTE_USER"
	ActionBootstrapAdmin = "BOOTSTRAP_ADMIN"
)

// AuditEntry is an immutable record of a privileged action. ActorUserID is
// nil for system actions that have no calling user.
type AuditEntry struct {
	ID          string    `json:"id"`
	ActorUserID *string   `json:"actor_user_id"`
	Action      string    `json:"action"`
	Target      string    `json:"target"`
	Timestamp   time.Time `json:"timestamp"`
}

// UserTarget formats the target descriptor used for user-scoped actions.
func UserTarget(userID string) string {
	return fmt.Sprintf("user_id=%s", userID)
}
