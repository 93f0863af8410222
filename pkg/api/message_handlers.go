package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/policy"
	"github.com/vendorgate/vendorgate/pkg/resources"
	"github.com/vendorgate/vendorgate/pkg/webhooks"
)

// MessageHandlers exposes organization-to-organization portal messages
type MessageHandlers struct {
	messages *resources.MessageService
	pipeline *policy.Pipeline
	emitter  *eventEmitter
}

// NewMessageHandlers creates the message handler group
func NewMessageHandlers(messages *resources.MessageService, pipeline *policy.Pipeline, emitter *eventEmitter) *MessageHandlers {
	return &MessageHandlers{messages: messages, pipeline: pipeline, emitter: emitter}
}

// RegisterRoutes registers the message routes on the protected router
func (h *MessageHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/messages", h.Send).Methods("POST")
	r.HandleFunc("/messages", h.List).Methods("GET")
	r.HandleFunc("/messages/{id:[0-9]+}", h.Get).Methods("GET")
	r.HandleFunc("/messages/{id:[0-9]+}/read", h.MarkRead).Methods("POST")
}

type messageSendRequest struct {
	ToOrgID int64  `json:"to_org_id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send delivers a message from the caller's organization
func (h *MessageHandlers) Send(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	var req messageSendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	msg := &resources.Message{
		TenantID:   id.TenantID,
		FromOrgID:  id.OrganizationID,
		ToOrgID:    req.ToOrgID,
		FromUserID: id.ID,
		Subject:    req.Subject,
		Body:       req.Body,
	}
	if err := h.messages.Send(r.Context(), msg); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeDataMessageSend, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)
	h.emitter.emit(r, id.TenantID, webhooks.EventMessageSent, map[string]interface{}{
		"message_id": msg.ID,
		"from_org":   msg.FromOrgID,
		"to_org":     msg.ToOrgID,
	})

	httputil.WriteCreated(w, r, msg)
}

// List returns the caller organization's sent and received messages
func (h *MessageHandlers) List(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	p, err := httputil.ParsePagination(r, 50, 200)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	messages, err := h.messages.ListForOrganization(r.Context(), id, p)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, messages)
}

// Get returns one message after the read predicate passes
func (h *MessageHandlers) Get(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, r, msg)
}

// MarkRead marks a received message as read. Idempotent.
func (h *MessageHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.load(w, r)
	if !ok {
		return
	}

	// Only the recipient organization marks a message read.
	id := policy.IdentityFromContext(r.Context())
	if msg.ToOrgID != id.OrganizationID {
		httputil.WriteForbidden(w, r)
		return
	}

	if err := h.messages.MarkRead(r.Context(), msg); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, msg)
}

func (h *MessageHandlers) load(w http.ResponseWriter, r *http.Request) (*resources.Message, bool) {
	id := policy.IdentityFromContext(r.Context())

	msgID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}

	msg, err := h.messages.Get(r.Context(), id.TenantID, msgID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}

	if err := h.pipeline.Authorize(w, r, msg.PolicyResource(), false); err != nil {
		return nil, false
	}
	return msg, true
}
