package domain

import "time"

const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleViewer  = "viewer"

	// DefaultRole is assigned to every newly registered user.
	DefaultRole = RoleViewer
)

// SeedRoles is the fixed role vocabulary every store must contain.
var SeedRoles = []string{RoleAdmin, RoleAnalyst, RoleViewer}

// Role is a named capability bucket. The name is its natural key.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User models an authenticated actor in the system.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether name is part of the user's role set.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// AddRole appends name to the role set. It returns false when the role was
// already present and the set is unchanged.
func (u *User) AddRole(name string) bool {
	if u.HasRole(name) {
		return false
	}
	u.Roles = append(u.Roles, name)
	return true
}

// RoleNames returns a copy of the role set, safe to hand to callers.
func (u *User) RoleNames() []string {
	out := make([]string, len(u.Roles))
	copy(out, u.Roles)
	return out
}
