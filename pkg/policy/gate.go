// Package policy is the single authorization chokepoint: identity gate,
// role gate, tenant-scope validation, and per-resource ownership predicates.
// Every API route is composed through the pipeline in this package; no
// handler performs ad hoc checks.
package policy

import (
	"context"

	"github.com/vendorgate/vendorgate/pkg/contextkeys"
	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
)

// IdentityFromContext returns the resolved identity, or nil when the request
// is unauthenticated
func IdentityFromContext(ctx context.Context) *identity.Identity {
	if id, ok := ctx.Value(contextkeys.IdentityKey).(*identity.Identity); ok {
		return id
	}
	return nil
}

// RequireAuthenticated returns UNAUTHENTICATED when no identity is present
func RequireAuthenticated(id *identity.Identity) error {
	if id == nil {
		return httputil.ErrUnauthenticated()
	}
	return nil
}

// RequireRole enforces the role allow-list. The authentication check always
// runs first so an unauthenticated caller sees UNAUTHENTICATED and never
// learns which roles a route requires.
func RequireRole(id *identity.Identity, allowed ...identity.Role) error {
	if err := RequireAuthenticated(id); err != nil {
		return err
	}
	for _, role := range allowed {
		if id.Role == role {
			return nil
		}
	}
	return httputil.ErrForbidden()
}
