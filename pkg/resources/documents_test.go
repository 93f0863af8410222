package resources

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/observability"
	"github.com/vendorgate/vendorgate/pkg/storage"
	"github.com/vendorgate/vendorgate/pkg/storage/postgres"
)

type mockObjectStore struct {
	putFunc    func(ctx context.Context, key string, content io.Reader, contentType string) (string, error)
	getFunc    func(ctx context.Context, key string) (io.ReadCloser, error)
	deleteFunc func(ctx context.Context, key string) error
	signFunc   func(ctx context.Context, key string, expiry time.Duration) (string, error)
}

func (m *mockObjectStore) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	return m.putFunc(ctx, key, content, contentType)
}

func (m *mockObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return m.getFunc(ctx, key)
}

func (m *mockObjectStore) Delete(ctx context.Context, key string) error {
	return m.deleteFunc(ctx, key)
}

func (m *mockObjectStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return m.signFunc(ctx, key, expiry)
}

func disabledCache() *postgres.TagCache {
	return postgres.NewTagCache(nil, storage.Config{}, nil, nil)
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "organization_id", "vendor_id", "created_by", "title",
		"file_name", "file_key", "content_type", "size_bytes", "checksum", "shared",
		"created_at", "updated_at",
	})
}

func newDocumentService(t *testing.T, files ObjectStore) (*DocumentService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDocumentService(db, files, disabledCache(), testLogger()), mock
}

func TestDocumentCreateStoresObjectFirst(t *testing.T) {
	var putKey string
	files := &mockObjectStore{
		putFunc: func(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
			putKey = key
			return "sha256:abc", nil
		},
	}
	svc, mock := newDocumentService(t, files)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO documents`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, now, now))

	doc := &Document{TenantID: 1, OrganizationID: 2, CreatedBy: 3, Title: "invoice", FileName: "invoice.pdf", ContentType: "application/pdf"}
	require.NoError(t, svc.Create(context.Background(), doc, strings.NewReader("content")))

	assert.Equal(t, int64(11), doc.ID)
	assert.Equal(t, putKey, doc.FileKey)
	assert.Contains(t, putKey, "documents/1/2/")
	assert.Equal(t, "sha256:abc", doc.Checksum)
}

func TestDocumentCreateOversizeMapsToConstraint(t *testing.T) {
	files := &mockObjectStore{
		putFunc: func(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
			return "", postgres.ErrObjectTooLarge
		},
	}
	svc, _ := newDocumentService(t, files)

	doc := &Document{TenantID: 1, OrganizationID: 2}
	err := svc.Create(context.Background(), doc, strings.NewReader("big"))
	require.Error(t, err)
	assert.Equal(t, httputil.CodeConstraintViolation, httputil.AsAPIError(err).Code)
}

func TestDocumentCreateCleansUpOnInsertFailure(t *testing.T) {
	deleted := ""
	files := &mockObjectStore{
		putFunc: func(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
			return "sha256:abc", nil
		},
		deleteFunc: func(ctx context.Context, key string) error {
			deleted = key
			return nil
		},
	}
	svc, mock := newDocumentService(t, files)

	mock.ExpectQuery(`INSERT INTO documents`).WillReturnError(assert.AnError)

	doc := &Document{TenantID: 1, OrganizationID: 2}
	err := svc.Create(context.Background(), doc, strings.NewReader("content"))
	require.Error(t, err)
	assert.Equal(t, doc.FileKey, deleted)
}

func TestDocumentDeleteRemovesRowAndObject(t *testing.T) {
	deleted := ""
	files := &mockObjectStore{
		deleteFunc: func(ctx context.Context, key string) error {
			deleted = key
			return nil
		},
	}
	svc, mock := newDocumentService(t, files)

	mock.ExpectExec(`DELETE FROM documents`).
		WithArgs(int64(1), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc := &Document{ID: 11, TenantID: 1, OrganizationID: 2, FileKey: "documents/1/2/key"}
	require.NoError(t, svc.Delete(context.Background(), doc))
	assert.Equal(t, "documents/1/2/key", deleted)
}

func TestDocumentDeleteSurvivesObjectFailure(t *testing.T) {
	files := &mockObjectStore{
		deleteFunc: func(ctx context.Context, key string) error {
			return assert.AnError
		},
	}
	svc, mock := newDocumentService(t, files)

	mock.ExpectExec(`DELETE FROM documents`).
		WithArgs(int64(1), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc := &Document{ID: 11, TenantID: 1, FileKey: "documents/1/2/key"}
	// The metadata delete stands; the orphaned object is logged for cleanup.
	assert.NoError(t, svc.Delete(context.Background(), doc))
}

func TestListVisibleVendorSeesSharedForeignDocs(t *testing.T) {
	svc, mock := newDocumentService(t, &mockObjectStore{})
	now := time.Now()

	// The vendor branch must require a matching vendor designation; a
	// shared document with vendor_id NULL stays org-private.
	mock.ExpectQuery(`shared = true AND vendor_id = \$2`).
		WithArgs(int64(1), int64(10), 20, 0).
		WillReturnRows(documentRows().
			AddRow(1, 1, 10, nil, 5, "own", "own.pdf", "k1", "application/pdf", 10, "", false, now, now).
			AddRow(2, 1, 11, 10, 6, "shared", "shared.pdf", "k2", "application/pdf", 10, "", true, now, now))

	vendor := &identity.Identity{ID: 5, Role: identity.RoleVendor, TenantID: 1, OrganizationID: 10}
	docs, err := svc.ListVisible(context.Background(), vendor, httputil.Pagination{Limit: 20})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Every returned document must pass the read predicate.
	for _, doc := range docs {
		assert.True(t, policyCanRead(doc, vendor), "document %d leaked past the visibility filter", doc.ID)
	}
}

func TestListVisibleCompanyQueryShape(t *testing.T) {
	svc, mock := newDocumentService(t, &mockObjectStore{})

	mock.ExpectQuery(`organization_id = \$2 OR vendor_id = \$2`).
		WithArgs(int64(1), int64(10), 20, 0).
		WillReturnRows(documentRows())

	company := &identity.Identity{ID: 5, Role: identity.RoleCompanyUser, TenantID: 1, OrganizationID: 10}
	_, err := svc.ListVisible(context.Background(), company, httputil.Pagination{Limit: 20})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
