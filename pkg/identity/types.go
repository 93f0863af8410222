// Package identity resolves inbound credentials to the caller's identity
// tuple: user, role, organization, tenant, and optional company group.
package identity

import (
	"errors"
	"time"
)

// Role is the application-level role of a user
type Role string

const (
	RoleVendor       Role = "vendor"
	RoleCompanyAdmin Role = "company_admin"
	RoleCompanyUser  Role = "company_user"
)

// Valid reports whether the role is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleVendor, RoleCompanyAdmin, RoleCompanyUser:
		return true
	}
	return false
}

// IsCompanyRole reports whether the role belongs to a company organization
func (r Role) IsCompanyRole() bool {
	return r == RoleCompanyAdmin || r == RoleCompanyUser
}

// ErrUnauthenticated is returned when a credential does not resolve to a
// user. It deliberately covers both "bad token" and "valid session but no
// application user row yet" so callers cannot tell the cases apart.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the resolved caller identity used by every policy check
type Identity struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	OrganizationID int64  `json:"organization_id"`
	TenantID       int64  `json:"tenant_id"`
	CompanyGroupID *int64 `json:"company_group_id,omitempty"`
}

// User is the persisted application user row
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	OrganizationID int64     `json:"organization_id"`
	TenantID       int64     `json:"tenant_id"`
	CompanyGroupID *int64    `json:"company_group_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Identity converts a user row into the resolver output
func (u *User) Identity() *Identity {
	return &Identity{
		ID:             u.ID,
		Email:          u.Email,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
		TenantID:       u.TenantID,
		CompanyGroupID: u.CompanyGroupID,
	}
}

// Session is an issued opaque API session
type Session struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	TokenHash string     `json:"-"`
	Prefix    string     `json:"prefix"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
