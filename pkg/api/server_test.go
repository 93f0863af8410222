package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/observability"
	"github.com/vendorgate/vendorgate/pkg/orgs"
	"github.com/vendorgate/vendorgate/pkg/policy"
	"github.com/vendorgate/vendorgate/pkg/resources"
	"github.com/vendorgate/vendorgate/pkg/storage"
	"github.com/vendorgate/vendorgate/pkg/storage/postgres"
	"github.com/vendorgate/vendorgate/pkg/tenants"
)

// stubResolver resolves fixed tokens to fixed identities
type stubResolver struct {
	identities map[string]*identity.Identity
}

func (s *stubResolver) Resolve(ctx context.Context, credential string) (*identity.Identity, error) {
	if id, ok := s.identities[credential]; ok {
		return id, nil
	}
	return nil, identity.ErrUnauthenticated
}

// stubObjectStore is an in-memory ObjectStore
type stubObjectStore struct{}

func (s *stubObjectStore) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	io.Copy(io.Discard, content)
	return "checksum", nil
}

func (s *stubObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("content")), nil
}

func (s *stubObjectStore) Delete(ctx context.Context, key string) error { return nil }

func (s *stubObjectStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://files.example.com/" + key, nil
}

const (
	vendorToken = "vendor-token"
	adminToken  = "admin-token"
	userToken   = "user-token"
)

func newTestServer(t *testing.T, mutate ...func(*Deps)) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	taskLogger := logrus.New()
	taskLogger.SetOutput(io.Discard)
	cache := postgres.NewTagCache(nil, storage.Config{}, nil, nil)

	deps := Deps{
		Resolver: &stubResolver{identities: map[string]*identity.Identity{
			vendorToken: {ID: 42, Role: identity.RoleVendor, OrganizationID: 7, TenantID: 3},
			adminToken:  {ID: 1, Role: identity.RoleCompanyAdmin, OrganizationID: 5, TenantID: 3},
			userToken:   {ID: 2, Role: identity.RoleCompanyUser, OrganizationID: 5, TenantID: 3},
		}},
		Recorder:       audit.NopRecorder{},
		Metrics:        observability.NewMetrics(prometheus.NewRegistry()),
		Logger:         logger,
		TaskLogger:     taskLogger,
		Tenants:        tenants.NewPostgresService(db),
		Orgs:           orgs.NewPostgresService(db),
		Documents:      resources.NewDocumentService(db, &stubObjectStore{}, cache, logger),
		Payments:       resources.NewPaymentService(db, cache),
		Statements:     resources.NewStatementService(db, cache),
		Messages:       resources.NewMessageService(db),
		Dashboard:      resources.NewDashboardService(db),
		MaxUploadBytes: 1 << 20,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	return NewServer(deps), mock
}

type testEnvelope struct {
	OK   bool            `json:"ok"`
	Data json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func doRequest(t *testing.T, s *Server, method, path, token string, body io.Reader) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env testEnvelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestMissingCredentialRejected(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doRequest(t, s, "GET", "/api/v1/documents", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.OK)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHENTICATED", env.Error.Code)
	// Rejection carries no hint about what exists behind the route.
	assert.NotContains(t, env.Error.Message, "document")
}

func TestUnknownTokenRejected(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doRequest(t, s, "GET", "/api/v1/dashboard", "bogus", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHENTICATED", env.Error.Code)
}

func TestTenantMismatchRejected(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doRequest(t, s, "GET", "/api/v1/documents?tenant_id=9", vendorToken, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "TENANT_MISMATCH", env.Error.Code)
}

func TestTenantPathIDMismatchRejected(t *testing.T) {
	s, _ := newTestServer(t)

	// Path-carried tenant ids go through the same validation as query ids.
	rec, env := doRequest(t, s, "GET", "/api/v1/tenants/9", adminToken, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "TENANT_MISMATCH", env.Error.Code)
}

func TestVendorDocumentListUsesVisibilityPredicate(t *testing.T) {
	s, mock := newTestServer(t)

	now := time.Now()
	cols := []string{"id", "tenant_id", "organization_id", "vendor_id", "created_by", "title",
		"file_name", "file_key", "content_type", "size_bytes", "checksum", "shared", "created_at", "updated_at"}
	mock.ExpectQuery(`shared = true AND vendor_id = \$2`).
		WithArgs(int64(3), int64(7), 50, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, 3, 7, nil, 42, "own doc", "a.pdf", "k1", "application/pdf", 10, "c1", false, now, now).
			AddRow(2, 3, 5, 7, 1, "shared doc", "b.pdf", "k2", "application/pdf", 10, "c2", true, now, now))

	rec, env := doRequest(t, s, "GET", "/api/v1/documents", vendorToken, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var docs []*resources.Document
	require.NoError(t, json.Unmarshal(env.Data, &docs))
	require.Len(t, docs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentGetMasksOtherTenants(t *testing.T) {
	s, mock := newTestServer(t)

	// The row exists under another tenant; the tenant-scoped query finds
	// nothing and the caller sees a plain not-found.
	mock.ExpectQuery(`FROM documents WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs(int64(3), int64(77)).
		WillReturnError(sql.ErrNoRows)

	rec, env := doRequest(t, s, "GET", "/api/v1/documents/77", vendorToken, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestVendorCannotCreatePayments(t *testing.T) {
	s, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"amount_cents":100,"currency":"USD"}`)
	rec, env := doRequest(t, s, "POST", "/api/v1/payments", vendorToken, body)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
	assert.Equal(t, "access denied", env.Error.Message)
}

func TestUploadRejectedByDeclaredLength(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/documents", bytes.NewReader([]byte("tiny")))
	req.Header.Set("Authorization", "Bearer "+userToken)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	req.ContentLength = 10 << 20

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", env.Error.Code)
}

func TestRouteNotFoundEnvelope(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := doRequest(t, s, "GET", "/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.NotEmpty(t, env.RequestID)
}

func TestRateLimitRunsAgainAfterAuthentication(t *testing.T) {
	var anonStages, userStages int
	recordStage := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.IdentityFromContext(r.Context()) != nil {
				userStages++
			} else {
				anonStages++
			}
			next.ServeHTTP(w, r)
		})
	}

	s, mock := newTestServer(t, func(d *Deps) { d.RateLimit = recordStage })

	cols := []string{"id", "tenant_id", "organization_id", "vendor_id", "created_by", "title",
		"file_name", "file_key", "content_type", "size_bytes", "checksum", "shared", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM documents`).WillReturnRows(sqlmock.NewRows(cols))

	rec, _ := doRequest(t, s, "GET", "/api/v1/documents", vendorToken, nil)

	// The limiter sees the caller twice: once at the edge keyed by IP,
	// once after identity resolution keyed by user.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, anonStages)
	assert.Equal(t, 1, userStages)
}
