package policy

import (
	"github.com/vendorgate/vendorgate/pkg/identity"
)

// Resource is the projection of any tenant-scoped resource that ownership
// predicates operate on. Resource types expose it via a PolicyResource()
// method so the predicates stay pure and in one place.
type Resource struct {
	Type           string
	TenantID       int64
	OrganizationID int64
	CreatedBy      int64
	// Shared widens read visibility across the organization boundary.
	Shared bool
	// VendorID designates the vendor organization a resource is directed at.
	VendorID *int64
}

// CanRead answers "may this caller read this resource". The caller may read
// when:
//   - the caller's organization owns the resource, or
//   - the resource is shared and directed at the caller's organization as
//     its vendor, or
//   - the resource is directed at the caller's organization as vendor and
//     the caller holds a company role (a company viewing its own
//     vendor-directed resource).
//
// A shared resource with no vendor designation is visible only to its own
// organization. Cross-tenant resources are never readable regardless of
// sharing flags.
func CanRead(res Resource, caller *identity.Identity) bool {
	if caller == nil || res.TenantID != caller.TenantID {
		return false
	}

	if res.OrganizationID == caller.OrganizationID {
		return true
	}

	if res.Shared && caller.Role == identity.RoleVendor &&
		res.VendorID != nil && *res.VendorID == caller.OrganizationID {
		return true
	}

	if res.VendorID != nil && *res.VendorID == caller.OrganizationID && caller.Role.IsCompanyRole() {
		return true
	}

	return false
}

// CanWrite answers "may this caller update or delete this resource".
// Stricter than CanRead: the caller must have created the resource, or hold
// an admin/user role inside the owning organization.
func CanWrite(res Resource, caller *identity.Identity) bool {
	if caller == nil || res.TenantID != caller.TenantID {
		return false
	}

	if res.CreatedBy == caller.ID {
		return true
	}

	if res.OrganizationID == caller.OrganizationID && caller.Role.IsCompanyRole() {
		return true
	}

	return false
}
