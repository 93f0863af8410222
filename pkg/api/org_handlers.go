package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/orgs"
	"github.com/vendorgate/vendorgate/pkg/policy"
	"github.com/vendorgate/vendorgate/pkg/tenants"
	"github.com/vendorgate/vendorgate/pkg/webhooks"
)

// OrgHandlers exposes organizations, company-group hierarchy management,
// and vendor relationships.
type OrgHandlers struct {
	orgs     orgs.Service
	tenants  tenants.Service
	pipeline *policy.Pipeline
	emitter  *eventEmitter
}

// NewOrgHandlers creates the organization handler group
func NewOrgHandlers(orgSvc orgs.Service, tenantSvc tenants.Service, pipeline *policy.Pipeline, emitter *eventEmitter) *OrgHandlers {
	return &OrgHandlers{orgs: orgSvc, tenants: tenantSvc, pipeline: pipeline, emitter: emitter}
}

// RegisterRoutes registers organization, group, and relationship routes
func (h *OrgHandlers) RegisterRoutes(r *mux.Router) {
	adminOnly := h.pipeline.RequireRole(identity.RoleCompanyAdmin)
	companyOnly := h.pipeline.RequireRole(identity.RoleCompanyAdmin, identity.RoleCompanyUser)

	r.Handle("/organizations", adminOnly(http.HandlerFunc(h.CreateOrganization))).Methods("POST")
	r.HandleFunc("/organizations", h.ListOrganizations).Methods("GET")
	r.HandleFunc("/organizations/{id:[0-9]+}", h.GetOrganization).Methods("GET")
	r.Handle("/organizations/{id:[0-9]+}", adminOnly(http.HandlerFunc(h.UpdateOrganization))).Methods("PATCH")

	r.Handle("/company-groups", adminOnly(http.HandlerFunc(h.CreateGroup))).Methods("POST")
	r.HandleFunc("/company-groups", h.ListGroups).Methods("GET")
	r.HandleFunc("/company-groups/{id:[0-9]+}", h.GetGroup).Methods("GET")
	r.Handle("/company-groups/{id:[0-9]+}/parent", adminOnly(http.HandlerFunc(h.MoveGroup))).Methods("PATCH")
	r.Handle("/company-groups/{id:[0-9]+}", companyOnly(http.HandlerFunc(h.DeleteGroup))).Methods("DELETE")

	r.Handle("/relationships", adminOnly(http.HandlerFunc(h.CreateRelationship))).Methods("POST")
	r.HandleFunc("/relationships", h.ListRelationships).Methods("GET")
	r.Handle("/relationships/{id:[0-9]+}/status", adminOnly(http.HandlerFunc(h.SetRelationshipStatus))).Methods("POST")
}

type orgCreateRequest struct {
	Name    string       `json:"name"`
	Kind    orgs.OrgKind `json:"kind,omitempty"`
	GroupID *int64       `json:"group_id,omitempty"`
}

// CreateOrganization provisions a new organization in the caller's tenant,
// subject to the tenant's organization limit.
func (h *OrgHandlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	var req orgCreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := h.tenants.CheckLimit(r.Context(), id.TenantID, tenants.LimitOrganizations); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	org := &orgs.Organization{
		TenantID: id.TenantID,
		Name:     req.Name,
		Kind:     req.Kind,
		GroupID:  req.GroupID,
	}
	if err := h.orgs.CreateOrganization(r.Context(), org); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeAdminOrgCreate, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)

	httputil.WriteCreated(w, r, org)
}

// ListOrganizations lists the tenant's organizations, optionally by kind
func (h *OrgHandlers) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	kind := orgs.OrgKind(r.URL.Query().Get("kind"))
	list, err := h.orgs.ListOrganizations(r.Context(), id.TenantID, kind)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, list)
}

// GetOrganization returns one organization in the caller's tenant
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	orgID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	org, err := h.orgs.GetOrganization(r.Context(), id.TenantID, orgID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, org)
}

type orgUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	GroupID *int64  `json:"group_id,omitempty"`
}

// UpdateOrganization updates mutable organization fields. The tenant id is
// immutable and never taken from the request.
func (h *OrgHandlers) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	orgID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	org, err := h.orgs.GetOrganization(r.Context(), id.TenantID, orgID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	var req orgUpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.Name != nil {
		org.Name = *req.Name
	}
	if req.GroupID != nil {
		org.GroupID = req.GroupID
	}

	if err := h.orgs.UpdateOrganization(r.Context(), org); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, org)
}

type groupCreateRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// CreateGroup adds a node to the company-group hierarchy
func (h *OrgHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	var req groupCreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	group := &orgs.CompanyGroup{
		TenantID: id.TenantID,
		Name:     req.Name,
		ParentID: req.ParentID,
	}
	if err := h.orgs.CreateGroup(r.Context(), group); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeAdminGroupCreate, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)

	httputil.WriteCreated(w, r, group)
}

// ListGroups lists the tenant's company groups
func (h *OrgHandlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	groups, err := h.orgs.ListGroups(r.Context(), id.TenantID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, groups)
}

// GetGroup returns one company group
func (h *OrgHandlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	groupID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	group, err := h.orgs.GetGroup(r.Context(), id.TenantID, groupID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, group)
}

type groupMoveRequest struct {
	ParentID *int64 `json:"parent_id"`
}

// MoveGroup re-parents a group. Moves that would introduce a cycle are
// rejected.
func (h *OrgHandlers) MoveGroup(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	groupID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	var req groupMoveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := h.orgs.UpdateGroupParent(r.Context(), id.TenantID, groupID, req.ParentID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// DeleteGroup removes an empty group. A group still referenced by
// organizations or child groups is rejected with COMPANY_GROUP_IN_USE.
func (h *OrgHandlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	groupID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := h.orgs.DeleteGroup(r.Context(), id.TenantID, groupID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeAdminGroupDelete, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)

	httputil.WriteNoContent(w)
}

type relationshipCreateRequest struct {
	VendorID    int64                        `json:"vendor_id"`
	CompanyID   int64                        `json:"company_id"`
	Permissions orgs.RelationshipPermissions `json:"permissions"`
}

// CreateRelationship connects a vendor organization to a company
func (h *OrgHandlers) CreateRelationship(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	var req relationshipCreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	rel := &orgs.VendorRelationship{
		TenantID:    id.TenantID,
		VendorID:    req.VendorID,
		CompanyID:   req.CompanyID,
		Permissions: req.Permissions,
	}
	if err := h.orgs.CreateRelationship(r.Context(), rel); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeAdminRelationshipChange, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)
	h.emitter.emit(r, id.TenantID, webhooks.EventRelationshipChanged, map[string]interface{}{
		"relationship_id": rel.ID,
		"vendor_id":       rel.VendorID,
		"company_id":      rel.CompanyID,
		"status":          string(rel.Status),
	})

	httputil.WriteCreated(w, r, rel)
}

// ListRelationships lists the relationships for a vendor organization.
// Vendors see their own; company callers pass ?vendor_id.
func (h *OrgHandlers) ListRelationships(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	vendorID := id.OrganizationID
	if id.Role.IsCompanyRole() {
		v, err := httputil.QueryInt64(r, "vendor_id", 0)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		if v == 0 {
			httputil.WriteValidationError(w, r, "vendor_id is required")
			return
		}
		vendorID = v
	}

	rels, err := h.orgs.ListRelationshipsForVendor(r.Context(), id.TenantID, vendorID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, rels)
}

type relationshipStatusRequest struct {
	Status orgs.RelationshipStatus `json:"status"`
}

// SetRelationshipStatus moves a relationship through its lifecycle
func (h *OrgHandlers) SetRelationshipStatus(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	relID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	var req relationshipStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := h.orgs.SetRelationshipStatus(r.Context(), id.TenantID, relID, req.Status); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	h.emitter.emit(r, id.TenantID, webhooks.EventRelationshipChanged, map[string]interface{}{
		"relationship_id": relID,
		"status":          string(req.Status),
	})
	httputil.WriteNoContent(w)
}
