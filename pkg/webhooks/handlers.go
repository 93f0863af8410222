package webhooks

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/policy"
)

// Handlers exposes webhook subscription management. Routes are mounted
// behind the authorization pipeline with a company_admin role gate.
type Handlers struct {
	store    Store
	tokens   *identity.TokenGenerator
	recorder audit.Recorder
}

// NewHandlers creates webhook admin handlers
func NewHandlers(store Store, recorder audit.Recorder) *Handlers {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Handlers{store: store, tokens: identity.NewTokenGenerator(), recorder: recorder}
}

// RegisterRoutes registers the webhook admin routes
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/webhooks", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/webhooks", h.List).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/{id:[0-9]+}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/webhooks/{id:[0-9]+}/active", h.SetActive).Methods(http.MethodPut)
	r.HandleFunc("/webhooks/{id:[0-9]+}/deliveries", h.Deliveries).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/{id:[0-9]+}/stats", h.Stats).Methods(http.MethodGet)
}

type createRequest struct {
	URL    string      `json:"url"`
	Events []EventType `json:"events"`
}

type createResponse struct {
	*Subscription
	// Secret is returned exactly once, at creation.
	Secret string `json:"secret"`
}

// Create registers a webhook endpoint and returns the signing secret
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	var req createRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.URL == "" {
		httputil.WriteValidationError(w, r, "url is required")
		return
	}
	if len(req.Events) == 0 {
		httputil.WriteValidationError(w, r, "at least one event type is required")
		return
	}

	secret, _, _, err := h.tokens.GenerateToken()
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	sub := &Subscription{
		TenantID:  id.TenantID,
		URL:       req.URL,
		Events:    req.Events,
		Secret:    secret,
		CreatedBy: id.ID,
	}
	if err := h.store.CreateSubscription(r.Context(), sub); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeConfigWebhookCreate, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	event.ResourceType = audit.ResourceTypeWebhook
	h.recorder.Record(r.Context(), event)

	httputil.WriteCreated(w, r, createResponse{Subscription: sub, Secret: secret})
}

// List returns the tenant's webhook subscriptions
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())
	subs, err := h.store.ListSubscriptions(r.Context(), id.TenantID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, subs)
}

// Get returns one subscription
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())
	subID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	sub, err := h.store.GetSubscription(r.Context(), id.TenantID, subID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, sub)
}

// Delete removes a subscription
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())
	subID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := h.store.DeleteSubscription(r.Context(), id.TenantID, subID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeConfigWebhookDelete, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	event.ResourceType = audit.ResourceTypeWebhook
	h.recorder.Record(r.Context(), event)

	httputil.WriteNoContent(w)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive enables or disables a subscription
func (h *Handlers) SetActive(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())
	subID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	var req setActiveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := h.store.SetSubscriptionActive(r.Context(), id.TenantID, subID, req.Active); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Deliveries lists recent deliveries for a subscription
func (h *Handlers) Deliveries(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())
	subID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	deliveries, err := h.store.ListDeliveries(r.Context(), id.TenantID, subID, 50)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, deliveries)
}

// Stats summarizes delivery outcomes for a subscription
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())
	subID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	stats, err := h.store.GetStats(r.Context(), id.TenantID, subID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, stats)
}
