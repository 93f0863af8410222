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

// StatementHandlers exposes period statements and their transaction lines
type StatementHandlers struct {
	statements *resources.StatementService
	pipeline   *policy.Pipeline
	emitter    *eventEmitter
}

// NewStatementHandlers creates the statement handler group
func NewStatementHandlers(statements *resources.StatementService, pipeline *policy.Pipeline, emitter *eventEmitter) *StatementHandlers {
	return &StatementHandlers{statements: statements, pipeline: pipeline, emitter: emitter}
}

// RegisterRoutes registers the statement routes on the protected router
func (h *StatementHandlers) RegisterRoutes(r *mux.Router) {
	companyOnly := h.pipeline.RequireRole(identity.RoleCompanyAdmin, identity.RoleCompanyUser)

	r.Handle("/statements", companyOnly(http.HandlerFunc(h.Create))).Methods("POST")
	r.HandleFunc("/statements", h.List).Methods("GET")
	r.HandleFunc("/statements/{id:[0-9]+}", h.Get).Methods("GET")
	r.HandleFunc("/statements/{id:[0-9]+}/transactions", h.ListTransactions).Methods("GET")
	r.Handle("/statements/{id:[0-9]+}/transactions", companyOnly(http.HandlerFunc(h.AddTransaction))).Methods("POST")
	r.Handle("/statements/{id:[0-9]+}/finalize", companyOnly(http.HandlerFunc(h.Finalize))).Methods("POST")
}

type statementCreateRequest struct {
	VendorID    *int64    `json:"vendor_id,omitempty"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Currency    string    `json:"currency"`
}

// Create opens a new statement for a period
func (h *StatementHandlers) Create(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	var req statementCreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	st := &resources.Statement{
		TenantID:       id.TenantID,
		OrganizationID: id.OrganizationID,
		VendorID:       req.VendorID,
		CreatedBy:      id.ID,
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		Currency:       req.Currency,
	}
	if err := h.statements.Create(r.Context(), st); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeDataStatementCreate, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)

	httputil.WriteCreated(w, r, st)
}

// List returns statements visible to the caller
func (h *StatementHandlers) List(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	p, err := httputil.ParsePagination(r, 50, 200)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	statements, err := h.statements.ListVisible(r.Context(), id, p)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, statements)
}

// Get returns one statement after the read predicate passes
func (h *StatementHandlers) Get(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r, false)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, r, st)
}

type transactionRequest struct {
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// AddTransaction appends a line to an open statement and recomputes the
// stored total.
func (h *StatementHandlers) AddTransaction(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r, true)
	if !ok {
		return
	}

	var req transactionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	tx := &resources.Transaction{
		StatementID: st.ID,
		Description: req.Description,
		AmountCents: req.AmountCents,
		OccurredAt:  req.OccurredAt,
	}
	if err := h.statements.AddTransaction(r.Context(), st, tx); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, tx)
}

// ListTransactions returns the lines of a statement
func (h *StatementHandlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r, false)
	if !ok {
		return
	}

	txs, err := h.statements.ListTransactions(r.Context(), st.ID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, txs)
}

// Finalize closes the statement; further transactions are rejected
func (h *StatementHandlers) Finalize(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r, true)
	if !ok {
		return
	}

	if err := h.statements.Finalize(r.Context(), st); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	h.emitter.emit(r, st.TenantID, webhooks.EventStatementFinalized, map[string]interface{}{
		"statement_id": st.ID,
		"total_cents":  st.TotalCents,
		"currency":     st.Currency,
	})
	httputil.WriteSuccess(w, r, st)
}

func (h *StatementHandlers) load(w http.ResponseWriter, r *http.Request, write bool) (*resources.Statement, bool) {
	id := policy.IdentityFromContext(r.Context())

	statementID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}

	st, err := h.statements.Get(r.Context(), id.TenantID, statementID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}

	if err := h.pipeline.Authorize(w, r, st.PolicyResource(), write); err != nil {
		return nil, false
	}
	return st, true
}
