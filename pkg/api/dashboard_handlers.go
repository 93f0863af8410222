package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/policy"
	"github.com/vendorgate/vendorgate/pkg/resources"
)

// DashboardHandlers serves the caller's aggregate dashboard counts
type DashboardHandlers struct {
	dashboard *resources.DashboardService
}

// NewDashboardHandlers creates the dashboard handler group
func NewDashboardHandlers(dashboard *resources.DashboardService) *DashboardHandlers {
	return &DashboardHandlers{dashboard: dashboard}
}

// RegisterRoutes registers the dashboard route on the protected router
func (h *DashboardHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/dashboard", h.Get).Methods("GET")
}

// Get loads the dashboard aggregates for the caller's organization
func (h *DashboardHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	dash, err := h.dashboard.Load(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, dash)
}
