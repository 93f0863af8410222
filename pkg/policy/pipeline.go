package policy

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/contextkeys"
	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/observability"
)

// Pipeline composes the authorization chain every protected route passes
// through: resolve identity, then (optionally) gate on role, then validate
// tenant scope. Handlers after the pipeline can assume a valid identity in
// context and a tenant-clean request.
type Pipeline struct {
	resolver identity.Resolver
	recorder audit.Recorder
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewPipeline creates the authorization pipeline
func NewPipeline(resolver identity.Resolver, recorder audit.Recorder, metrics *observability.Metrics, logger *observability.Logger) *Pipeline {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Pipeline{
		resolver: resolver,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}
}

// Authenticate resolves the bearer credential and stores the identity in the
// request context. Unauthenticated requests are rejected here, before any
// handler logic, so resource existence is never leaked.
func (p *Pipeline) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := bearerToken(r)
		id, err := p.resolver.Resolve(r.Context(), credential)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				p.countFailure(httputil.CodeUnauthenticated)
				httputil.WriteUnauthenticated(w, r)
				return
			}
			p.logger.WithRequest(r.Context()).WithError(err).Error("identity resolution failed")
			httputil.WriteError(w, r, err)
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a route on an allow-list of roles
func (p *Pipeline) RequireRole(allowed ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if err := RequireRole(id, allowed...); err != nil {
				apiErr := httputil.AsAPIError(err)
				p.countFailure(apiErr.Code)
				if apiErr.Code == httputil.CodeForbidden && id != nil {
					event := audit.NewEvent(r.Context(), audit.EventTypeAuthzRoleDenied, audit.EventStatusDenied)
					event.UserID = &id.ID
					event.TenantID = &id.TenantID
					event.Method = r.Method
					event.Path = r.URL.Path
					event.Message = "role not permitted for route"
					p.record(r, event)
				}
				httputil.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TenantScope validates any request-carried tenant id against the caller's
// tenant. This stage is mandatory on every protected route; handlers that
// decode tenant ids from request bodies re-validate through CheckTenant.
func (p *Pipeline) TenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if err := RequireAuthenticated(id); err != nil {
			p.countFailure(httputil.CodeUnauthenticated)
			httputil.WriteError(w, r, err)
			return
		}

		requested, err := RequestedTenantID(r)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		if err := p.CheckTenant(w, r, requested); err != nil {
			return // response already written
		}
		next.ServeHTTP(w, r)
	})
}

// CheckTenant runs tenant-scope validation for an explicitly-carried tenant
// id (query, header, or body field). On mismatch it records the security
// event, writes the TENANT_MISMATCH response, and returns a non-nil error so
// the caller stops.
func (p *Pipeline) CheckTenant(w http.ResponseWriter, r *http.Request, requested *int64) error {
	id := IdentityFromContext(r.Context())
	result := ValidateTenantScope(requested, id)
	if result.Valid {
		return nil
	}

	if p.metrics != nil {
		p.metrics.TenantMismatchesTotal.WithLabelValues(r.URL.Path).Inc()
	}
	p.logger.WithRequest(r.Context()).WithFields(map[string]interface{}{
		"user_id":             id.ID,
		"user_tenant_id":      result.UserTenantID,
		"requested_tenant_id": *result.RequestedTenantID,
		"method":              r.Method,
		"path":                r.URL.Path,
	}).Warn("cross-tenant access attempt rejected")

	p.record(r, audit.TenantMismatchEvent(r.Context(), r, id.ID, result.UserTenantID, *result.RequestedTenantID))

	err := httputil.ErrTenantMismatch()
	httputil.WriteError(w, r, err)
	return err
}

// Authorize applies an ownership predicate to a loaded resource. Denials are
// written as the generic FORBIDDEN so callers cannot probe for existence.
func (p *Pipeline) Authorize(w http.ResponseWriter, r *http.Request, res Resource, write bool) error {
	id := IdentityFromContext(r.Context())
	allowed := false
	if write {
		allowed = CanWrite(res, id)
	} else {
		allowed = CanRead(res, id)
	}
	if allowed {
		return nil
	}

	p.countFailure(httputil.CodeForbidden)
	if id != nil {
		p.record(r, audit.AccessDeniedEvent(r.Context(), id.ID,
			audit.ResourceType(res.Type), "", "ownership predicate failed"))
	}
	err := httputil.ErrForbidden()
	httputil.WriteError(w, r, err)
	return err
}

// record persists an audit event; failures are logged, never propagated.
func (p *Pipeline) record(r *http.Request, event *audit.Event) {
	if err := p.recorder.Record(r.Context(), event); err != nil {
		p.logger.WithRequest(r.Context()).WithError(err).Error("failed to record audit event")
	}
}

func (p *Pipeline) countFailure(code httputil.Code) {
	if p.metrics != nil {
		p.metrics.AuthFailuresTotal.WithLabelValues(string(code)).Inc()
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
