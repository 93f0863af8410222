package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vendorgate/vendorgate/pkg/identity"
)

func caller(role identity.Role, tenantID, orgID, userID int64) *identity.Identity {
	return &identity.Identity{
		ID:             userID,
		Role:           role,
		OrganizationID: orgID,
		TenantID:       tenantID,
	}
}

func ptr(v int64) *int64 { return &v }

func TestCanRead(t *testing.T) {
	tests := []struct {
		name   string
		res    Resource
		caller *identity.Identity
		want   bool
	}{
		{
			name:   "nil caller denied",
			res:    Resource{TenantID: 1, OrganizationID: 10},
			caller: nil,
			want:   false,
		},
		{
			name:   "own organization",
			res:    Resource{TenantID: 1, OrganizationID: 10},
			caller: caller(identity.RoleCompanyUser, 1, 10, 100),
			want:   true,
		},
		{
			name:   "other organization, not shared",
			res:    Resource{TenantID: 1, OrganizationID: 11},
			caller: caller(identity.RoleCompanyUser, 1, 10, 100),
			want:   false,
		},
		{
			name:   "shared document with no vendor designation stays org-private",
			res:    Resource{TenantID: 1, OrganizationID: 11, Shared: true},
			caller: caller(identity.RoleVendor, 1, 10, 100),
			want:   false,
		},
		{
			name:   "shared document hidden from company caller in another org",
			res:    Resource{TenantID: 1, OrganizationID: 11, Shared: true},
			caller: caller(identity.RoleCompanyUser, 1, 10, 100),
			want:   false,
		},
		{
			name:   "shared document directed at a different vendor stays hidden",
			res:    Resource{TenantID: 1, OrganizationID: 11, Shared: true, VendorID: ptr(12)},
			caller: caller(identity.RoleVendor, 1, 10, 100),
			want:   false,
		},
		{
			name:   "shared document directed at this vendor",
			res:    Resource{TenantID: 1, OrganizationID: 11, Shared: true, VendorID: ptr(10)},
			caller: caller(identity.RoleVendor, 1, 10, 100),
			want:   true,
		},
		{
			name:   "company admin reads a resource directed at its org",
			res:    Resource{TenantID: 1, OrganizationID: 11, VendorID: ptr(10)},
			caller: caller(identity.RoleCompanyAdmin, 1, 10, 100),
			want:   true,
		},
		{
			name:   "cross-tenant never readable even when shared",
			res:    Resource{TenantID: 2, OrganizationID: 11, Shared: true},
			caller: caller(identity.RoleVendor, 1, 10, 100),
			want:   false,
		},
		{
			name:   "cross-tenant never readable for own-looking org id",
			res:    Resource{TenantID: 2, OrganizationID: 10},
			caller: caller(identity.RoleCompanyAdmin, 1, 10, 100),
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanRead(tt.res, tt.caller))
		})
	}
}

func TestCanWrite(t *testing.T) {
	tests := []struct {
		name   string
		res    Resource
		caller *identity.Identity
		want   bool
	}{
		{
			name:   "nil caller denied",
			res:    Resource{TenantID: 1, OrganizationID: 10, CreatedBy: 100},
			caller: nil,
			want:   false,
		},
		{
			name:   "creator may write",
			res:    Resource{TenantID: 1, OrganizationID: 11, CreatedBy: 100},
			caller: caller(identity.RoleVendor, 1, 10, 100),
			want:   true,
		},
		{
			name:   "company admin in owning org may write",
			res:    Resource{TenantID: 1, OrganizationID: 10, CreatedBy: 200},
			caller: caller(identity.RoleCompanyAdmin, 1, 10, 100),
			want:   true,
		},
		{
			name:   "company user in owning org may write",
			res:    Resource{TenantID: 1, OrganizationID: 10, CreatedBy: 200},
			caller: caller(identity.RoleCompanyUser, 1, 10, 100),
			want:   true,
		},
		{
			name:   "vendor in owning org but not creator denied",
			res:    Resource{TenantID: 1, OrganizationID: 10, CreatedBy: 200},
			caller: caller(identity.RoleVendor, 1, 10, 100),
			want:   false,
		},
		{
			name:   "company role outside owning org denied",
			res:    Resource{TenantID: 1, OrganizationID: 11, CreatedBy: 200},
			caller: caller(identity.RoleCompanyAdmin, 1, 10, 100),
			want:   false,
		},
		{
			name:   "cross-tenant creator denied",
			res:    Resource{TenantID: 2, OrganizationID: 10, CreatedBy: 100},
			caller: caller(identity.RoleCompanyAdmin, 1, 10, 100),
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanWrite(tt.res, tt.caller))
		})
	}
}
