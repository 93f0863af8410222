package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/contextkeys"
	"github.com/vendorgate/vendorgate/pkg/identity"
)

// revocationSpyResolver records credentials evicted after revocation
type revocationSpyResolver struct {
	invalidated []string
}

func (r *revocationSpyResolver) Resolve(ctx context.Context, credential string) (*identity.Identity, error) {
	return nil, identity.ErrUnauthenticated
}

func (r *revocationSpyResolver) Invalidate(credential string) {
	r.invalidated = append(r.invalidated, credential)
}

func revokeRequest(token string) *http.Request {
	req := httptest.NewRequest("DELETE", "/api/v1/auth/sessions/current", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	id := &identity.Identity{ID: 1, TenantID: 3}
	return req.WithContext(contextkeys.WithIdentity(req.Context(), id))
}

func TestRevokeSessionEvictsResolvedCredential(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens := identity.NewTokenGenerator()
	token, hash, _, err := tokens.GenerateToken()
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE sessions SET revoked_at`).
		WithArgs(hash).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resolver := &revocationSpyResolver{}
	h := NewAuthHandlers(identity.NewPostgresStore(db), resolver, audit.NopRecorder{})

	rec := httptest.NewRecorder()
	h.RevokeSession(rec, revokeRequest(token))

	// The memoized identity must be evicted with the store revocation so
	// the token stops resolving immediately.
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, resolver.invalidated, 1)
	assert.Equal(t, token, resolver.invalidated[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeSessionRejectsNonOpaqueCredential(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	resolver := &revocationSpyResolver{}
	h := NewAuthHandlers(identity.NewPostgresStore(db), resolver, audit.NopRecorder{})

	rec := httptest.NewRecorder()
	h.RevokeSession(rec, revokeRequest("eyJhbGciOiJSUzI1NiJ9.oidc.token"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, resolver.invalidated)
}
