package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/policy"
	"github.com/vendorgate/vendorgate/pkg/tenants"
)

// TenantHandlers exposes tenant administration. All {id} routes re-validate
// the path-carried tenant id through the policy pipeline, so an admin can
// only ever manage their own tenant.
type TenantHandlers struct {
	tenants  tenants.Service
	pipeline *policy.Pipeline
	emitter  *eventEmitter
}

// NewTenantHandlers creates the tenant handler group
func NewTenantHandlers(tenantSvc tenants.Service, pipeline *policy.Pipeline, emitter *eventEmitter) *TenantHandlers {
	return &TenantHandlers{tenants: tenantSvc, pipeline: pipeline, emitter: emitter}
}

// RegisterRoutes registers the tenant routes on the protected router
func (h *TenantHandlers) RegisterRoutes(r *mux.Router) {
	adminOnly := h.pipeline.RequireRole(identity.RoleCompanyAdmin)

	r.Handle("/tenants", adminOnly(http.HandlerFunc(h.Create))).Methods("POST")
	r.HandleFunc("/tenants/{id:[0-9]+}", h.Get).Methods("GET")
	r.Handle("/tenants/{id:[0-9]+}", adminOnly(http.HandlerFunc(h.Update))).Methods("PATCH")
	r.Handle("/tenants/{id:[0-9]+}", adminOnly(http.HandlerFunc(h.SoftDelete))).Methods("DELETE")
	r.Handle("/tenants/{id:[0-9]+}/suspend", adminOnly(http.HandlerFunc(h.Suspend))).Methods("POST")
	r.Handle("/tenants/{id:[0-9]+}/reactivate", adminOnly(http.HandlerFunc(h.Reactivate))).Methods("POST")
	r.HandleFunc("/tenants/{id:[0-9]+}/usage", h.Usage).Methods("GET")
}

type tenantCreateRequest struct {
	Name string       `json:"name"`
	Tier tenants.Tier `json:"tier,omitempty"`
}

// Create provisions a new tenant. Provisioning is the one cross-tenant
// operation; the created tenant starts empty and the caller gains no access
// to it.
func (h *TenantHandlers) Create(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	var req tenantCreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	tenant := &tenants.Tenant{
		Name: req.Name,
		Tier: req.Tier,
	}
	if err := h.tenants.Create(r.Context(), tenant); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeAdminTenantCreate, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)

	httputil.WriteCreated(w, r, tenant)
}

// Get returns the caller's tenant
func (h *TenantHandlers) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.ownTenantID(w, r)
	if !ok {
		return
	}

	tenant, err := h.tenants.GetByID(r.Context(), tenantID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, tenant)
}

// Update changes mutable tenant attributes; id and slug are immutable
func (h *TenantHandlers) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.ownTenantID(w, r)
	if !ok {
		return
	}

	var req tenants.UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	tenant, err := h.tenants.Update(r.Context(), tenantID, &req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, tenant)
}

// Suspend moves the tenant to suspended status
func (h *TenantHandlers) Suspend(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.tenants.Suspend, audit.EventTypeAdminTenantSuspend)
}

// Reactivate moves a suspended tenant back to active
func (h *TenantHandlers) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.tenants.Reactivate, "")
}

// SoftDelete marks the tenant deleted. Rows remain for audit; lookups stop
// returning the tenant.
func (h *TenantHandlers) SoftDelete(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.tenants.SoftDelete, "")
}

// Usage reports current usage against the tier limits
func (h *TenantHandlers) Usage(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.ownTenantID(w, r)
	if !ok {
		return
	}

	usage, err := h.tenants.GetUsage(r.Context(), tenantID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, usage)
}

func (h *TenantHandlers) setStatus(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, int64) error, eventType audit.EventType) {

	tenantID, ok := h.ownTenantID(w, r)
	if !ok {
		return
	}

	if err := fn(r.Context(), tenantID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if eventType != "" {
		id := policy.IdentityFromContext(r.Context())
		event := audit.NewEvent(r.Context(), eventType, audit.EventStatusSuccess)
		event.UserID = &id.ID
		event.TenantID = &tenantID
		h.emitter.record(r, event)
	}
	httputil.WriteNoContent(w)
}

// ownTenantID parses the path tenant id and re-validates it against the
// caller's tenant. A mismatch is the security event, not a 404.
func (h *TenantHandlers) ownTenantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tenantID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return 0, false
	}
	if err := h.pipeline.CheckTenant(w, r, &tenantID); err != nil {
		return 0, false
	}
	return tenantID, true
}
