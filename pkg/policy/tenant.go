package policy

import (
	"net/http"
	"strconv"

	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
)

// TenantScopeResult is the structured outcome of tenant-scope validation
type TenantScopeResult struct {
	Valid             bool          `json:"valid"`
	UserTenantID      int64         `json:"user_tenant_id"`
	RequestedTenantID *int64        `json:"requested_tenant_id,omitempty"`
	ErrorCode         httputil.Code `json:"error_code,omitempty"`
}

// ValidateTenantScope compares a request-carried tenant id against the
// caller's tenant:
//   - absent requested id: valid, row-level scoping downstream applies
//   - equal: valid
//   - unequal: invalid with TENANT_MISMATCH, recorded as a security event
func ValidateTenantScope(requested *int64, id *identity.Identity) TenantScopeResult {
	result := TenantScopeResult{
		UserTenantID:      id.TenantID,
		RequestedTenantID: requested,
	}
	if requested == nil || *requested == id.TenantID {
		result.Valid = true
		return result
	}
	result.ErrorCode = httputil.CodeTenantMismatch
	return result
}

// RequestedTenantID extracts a tenant id carried by the request, checking
// the tenant_id query parameter and the X-Tenant-ID header. Body-carried
// tenant ids are validated by handlers after decoding, through the same
// ValidateTenantScope call.
func RequestedTenantID(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("tenant_id")
	if raw == "" {
		raw = r.Header.Get("X-Tenant-ID")
	}
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, httputil.WrapError(httputil.CodeValidation, "invalid tenant_id", err)
	}
	return &v, nil
}
