package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/policy"
)

// DefaultSessionTTL is how long an issued opaque session stays valid
const DefaultSessionTTL = 30 * 24 * time.Hour

// credentialInvalidator drops memoized credentials after revocation.
// Satisfied by *identity.Service.
type credentialInvalidator interface {
	Invalidate(credential string)
}

// AuthHandlers issues and revokes opaque API sessions. Callers authenticate
// with an OIDC id token from the hosted auth provider, then exchange it here
// for a long-lived opaque session usable by non-browser clients.
type AuthHandlers struct {
	sessions   *identity.PostgresStore
	tokens     *identity.TokenGenerator
	resolver   credentialInvalidator
	recorder   audit.Recorder
	sessionTTL time.Duration
}

// NewAuthHandlers creates the auth handler group. The resolver is consulted
// on revocation to evict the memoized identity; a resolver that does not
// memoize may be nil.
func NewAuthHandlers(sessions *identity.PostgresStore, resolver identity.Resolver, recorder audit.Recorder) *AuthHandlers {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	invalidator, _ := resolver.(credentialInvalidator)
	return &AuthHandlers{
		sessions:   sessions,
		tokens:     identity.NewTokenGenerator(),
		resolver:   invalidator,
		recorder:   recorder,
		sessionTTL: DefaultSessionTTL,
	}
}

// RegisterRoutes registers the auth routes on the protected router
func (h *AuthHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/me", h.Me).Methods("GET")
	r.HandleFunc("/auth/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/auth/sessions/current", h.RevokeSession).Methods("DELETE")
}

// Me returns the resolved caller identity
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, r, policy.IdentityFromContext(r.Context()))
}

type sessionResponse struct {
	*identity.Session
	// Token is returned exactly once at creation time.
	Token string `json:"token"`
}

// CreateSession issues a new opaque session for the authenticated caller
func (h *AuthHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	session, token, err := h.sessions.CreateSession(r.Context(), id.ID, h.sessionTTL)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeAuthLogin, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.recorder.Record(r.Context(), event)

	httputil.WriteCreated(w, r, sessionResponse{Session: session, Token: token})
}

// RevokeSession revokes the session token presented on this request
func (h *AuthHandlers) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	token := presentedBearer(r)
	if err := h.tokens.ValidateTokenFormat(token); err != nil {
		// OIDC-authenticated callers have no opaque session to revoke.
		httputil.WriteValidationError(w, r, "no opaque session token presented")
		return
	}

	if err := h.sessions.RevokeSession(r.Context(), h.tokens.HashToken(token)); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if h.resolver != nil {
		h.resolver.Invalidate(token)
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeAuthTokenRevoke, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.recorder.Record(r.Context(), event)

	httputil.WriteNoContent(w)
}

func presentedBearer(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
