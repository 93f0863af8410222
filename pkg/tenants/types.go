// Package tenants manages the portal's top-level isolation boundary. Every
// organization, user, and resource belongs to exactly one tenant; tenant ids
// never change after creation.
package tenants

import (
	"time"
)

// Tier represents subscription tiers
type Tier string

const (
	TierStandard   Tier = "standard"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Status represents tenant lifecycle status
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Tenant is a fully isolated customer environment
type Tenant struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Tier      Tier           `json:"tier"`
	Status    Status         `json:"status"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

// IsActive reports whether the tenant can serve requests
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// Limits are the per-tier usage caps enforced at creation time
type Limits struct {
	MaxUsers         int `json:"max_users"`
	MaxOrganizations int `json:"max_organizations"`
}

// LimitsForTier returns the usage caps for a subscription tier
func LimitsForTier(tier Tier) Limits {
	switch tier {
	case TierPro:
		return Limits{MaxUsers: 500, MaxOrganizations: 100}
	case TierEnterprise:
		return Limits{MaxUsers: 10000, MaxOrganizations: 2000}
	default:
		return Limits{MaxUsers: 50, MaxOrganizations: 10}
	}
}

// Usage is the tenant's current consumption against its limits
type Usage struct {
	TenantID      int64 `json:"tenant_id"`
	Users         int   `json:"users"`
	Organizations int   `json:"organizations"`
}

// UpdateRequest carries the mutable tenant fields. The tenant id and slug
// are immutable; they are not part of this request.
type UpdateRequest struct {
	Name     *string        `json:"name,omitempty"`
	Tier     *Tier          `json:"tier,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}
