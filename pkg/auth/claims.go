package auth

import (
	"errors"
	"strings"
)

// Role is a normalized (lower-case) role label from the identity provider.
type Role string

const (
	RoleUser            Role = "user"
	RoleAdmin           Role = "admin"
	RoleSuperAdmin      Role = "superadmin"
	RoleSuperAdminSnake Role = "super_admin"
)

// AdminRoles is the closed set of role labels granting administrative access.
var AdminRoles = map[Role]struct{}{
	RoleAdmin:           {},
	RoleSuperAdmin:      {},
	RoleSuperAdminSnake: {},
}

// NormalizeRole lower-cases and trims a raw role label. An empty label is
// RoleUser.
func NormalizeRole(raw string) Role {
	r := strings.ToLower(strings.TrimSpace(raw))
	if r == "" {
		return RoleUser
	}
	return Role(r)
}

// IsAdmin reports whether r is in AdminRoles.
func (r Role) IsAdmin() bool {
	_, ok := AdminRoles[NormalizeRole(string(r))]
	return ok
}

// Claims is the already-verified identity of a caller.
type Claims struct {
	UserID int64
	Role   Role
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("admin access required")
)

// RequireAuthenticated fails with ErrUnauthenticated when c is nil.
func RequireAuthenticated(c *Claims) error {
	if c == nil {
		return ErrUnauthenticated
	}
	return nil
}

// RequireAdmin fails with ErrForbidden unless c carries an admin-tier role.
// Call it after RequireAuthenticated; a nil c still yields ErrUnauthenticated.
func RequireAdmin(c *Claims) error {
	if err := RequireAuthenticated(c); err != nil {
		return err
	}
	if !c.Role.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
