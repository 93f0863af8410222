package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/policy"
	"github.com/vendorgate/vendorgate/pkg/resources"
	"github.com/vendorgate/vendorgate/pkg/webhooks"
)

// PaymentHandlers exposes the payment lifecycle: creation by company users,
// guarded status transitions, vendor-visible listing.
type PaymentHandlers struct {
	payments *resources.PaymentService
	pipeline *policy.Pipeline
	emitter  *eventEmitter
}

// NewPaymentHandlers creates the payment handler group
func NewPaymentHandlers(payments *resources.PaymentService, pipeline *policy.Pipeline, emitter *eventEmitter) *PaymentHandlers {
	return &PaymentHandlers{payments: payments, pipeline: pipeline, emitter: emitter}
}

// RegisterRoutes registers the payment routes on the protected router
func (h *PaymentHandlers) RegisterRoutes(r *mux.Router) {
	companyOnly := h.pipeline.RequireRole(identity.RoleCompanyAdmin, identity.RoleCompanyUser)

	r.Handle("/payments", companyOnly(http.HandlerFunc(h.Create))).Methods("POST")
	r.HandleFunc("/payments", h.List).Methods("GET")
	r.HandleFunc("/payments/{id:[0-9]+}", h.Get).Methods("GET")
	r.Handle("/payments/{id:[0-9]+}/status", companyOnly(http.HandlerFunc(h.SetStatus))).Methods("POST")
}

type paymentCreateRequest struct {
	VendorID    *int64     `json:"vendor_id,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Reference   string     `json:"reference,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Create records a new pending payment from the caller's organization
func (h *PaymentHandlers) Create(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	var req paymentCreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	payment := &resources.Payment{
		TenantID:       id.TenantID,
		OrganizationID: id.OrganizationID,
		VendorID:       req.VendorID,
		CreatedBy:      id.ID,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Reference:      req.Reference,
		DueDate:        req.DueDate,
	}
	if err := h.payments.Create(r.Context(), payment); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeDataPaymentCreate, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)
	h.emitter.emit(r, id.TenantID, webhooks.EventPaymentCreated, map[string]interface{}{
		"payment_id":   payment.ID,
		"amount_cents": payment.AmountCents,
		"currency":     payment.Currency,
	})

	httputil.WriteCreated(w, r, payment)
}

// List returns payments visible to the caller
func (h *PaymentHandlers) List(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	p, err := httputil.ParsePagination(r, 50, 200)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	payments, err := h.payments.ListVisible(r.Context(), id, p)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, payments)
}

// Get returns one payment after the read predicate passes
func (h *PaymentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	payment, ok := h.load(w, r, false)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, r, payment)
}

type paymentStatusRequest struct {
	Status resources.PaymentStatus `json:"status"`
}

// SetStatus advances the payment through its state machine. A concurrent
// transition surfaces as CONFLICT rather than silently overwriting.
func (h *PaymentHandlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	payment, ok := h.load(w, r, true)
	if !ok {
		return
	}

	var req paymentStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	from := payment.Status
	if err := h.payments.SetStatus(r.Context(), payment, req.Status); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	id := policy.IdentityFromContext(r.Context())
	event := audit.NewEvent(r.Context(), audit.EventTypeDataPaymentUpdate, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)
	h.emitter.emit(r, payment.TenantID, webhooks.EventPaymentStatusChanged, map[string]interface{}{
		"payment_id": payment.ID,
		"from":       string(from),
		"to":         string(payment.Status),
	})

	httputil.WriteSuccess(w, r, payment)
}

func (h *PaymentHandlers) load(w http.ResponseWriter, r *http.Request, write bool) (*resources.Payment, bool) {
	id := policy.IdentityFromContext(r.Context())

	paymentID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}

	payment, err := h.payments.Get(r.Context(), id.TenantID, paymentID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}

	if err := h.pipeline.Authorize(w, r, payment.PolicyResource(), write); err != nil {
		return nil, false
	}
	return payment, true
}
