package resources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/observability"
	"github.com/vendorgate/vendorgate/pkg/storage/postgres"
)

// ObjectStore is the object storage surface documents need. Satisfied by
// postgres.FileStore.
type ObjectStore interface {
	Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// DocumentService manages document metadata plus the backing object storage.
// Reads go through the tag cache; every mutation invalidates the document
// tags for the affected tenant, organization, and id.
type DocumentService struct {
	db     *sql.DB
	files  ObjectStore
	cache  *postgres.TagCache
	logger *observability.Logger
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(db *sql.DB, files ObjectStore, cache *postgres.TagCache, logger *observability.Logger) *DocumentService {
	return &DocumentService{db: db, files: files, cache: cache, logger: logger}
}

const documentColumns = `id, tenant_id, organization_id, vendor_id, created_by, title,
	file_name, file_key, content_type, size_bytes, checksum, shared, created_at, updated_at`

// Create stores the file content and inserts the metadata row. When the
// insert fails the just-written object is removed so storage does not leak.
func (s *DocumentService) Create(ctx context.Context, doc *Document, content io.Reader) error {
	key := fmt.Sprintf("documents/%d/%d/%s", doc.TenantID, doc.OrganizationID, uuid.New().String())
	checksum, err := s.files.Put(ctx, key, content, doc.ContentType)
	if err != nil {
		if errors.Is(err, postgres.ErrObjectTooLarge) {
			return httputil.NewError(httputil.CodeConstraintViolation, "document exceeds the maximum file size")
		}
		return fmt.Errorf("failed to store document content: %w", err)
	}
	doc.FileKey = key
	doc.Checksum = checksum

	query := `
		INSERT INTO documents (tenant_id, organization_id, vendor_id, created_by, title,
			file_name, file_key, content_type, size_bytes, checksum, shared)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, doc.TenantID, doc.OrganizationID, doc.VendorID,
		doc.CreatedBy, doc.Title, doc.FileName, doc.FileKey, doc.ContentType, doc.SizeBytes,
		doc.Checksum, doc.Shared).
		Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if delErr := s.files.Delete(ctx, key); delErr != nil {
			s.logger.WithError(delErr).WithField("file_key", key).Error("failed to clean up orphaned document object")
		}
		return fmt.Errorf("failed to create document: %w", err)
	}

	s.invalidate(ctx, doc)
	return nil
}

// Get retrieves a document by id within a tenant
func (s *DocumentService) Get(ctx context.Context, tenantID, id int64) (*Document, error) {
	cacheKey := fmt.Sprintf("document:%d:%d", tenantID, id)
	doc := &Document{}
	if s.cache.Get(ctx, cacheKey, doc) {
		return doc, nil
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE tenant_id = $1 AND id = $2`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, httputil.ErrNotFound("document")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	vendorID := int64(0)
	if doc.VendorID != nil {
		vendorID = *doc.VendorID
	}
	s.cache.Set(ctx, cacheKey, doc,
		postgres.TenantTag("document", doc.TenantID),
		postgres.OrgTag("document", doc.OrganizationID),
		postgres.OrgTag("document", vendorID),
		postgres.IDTag("document", doc.ID))
	return doc, nil
}

// ListVisible returns the documents the caller may see, filtered in SQL by
// the same rules the read predicate applies: own organization, shared
// documents directed at the caller as vendor, and documents directed at the
// caller's organization.
func (s *DocumentService) ListVisible(ctx context.Context, caller *identity.Identity, p httputil.Pagination) ([]*Document, error) {
	var query string
	args := []interface{}{caller.TenantID, caller.OrganizationID, p.Limit, p.Offset}

	if caller.Role == identity.RoleVendor {
		query = `SELECT ` + documentColumns + ` FROM documents
			WHERE tenant_id = $1
			  AND (organization_id = $2
			       OR (shared = true AND vendor_id = $2))
			ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	} else {
		query = `SELECT ` + documentColumns + ` FROM documents
			WHERE tenant_id = $1 AND (organization_id = $2 OR vendor_id = $2)
			ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Update applies mutable metadata fields
func (s *DocumentService) Update(ctx context.Context, doc *Document) error {
	query := `
		UPDATE documents SET title = $1, shared = $2, vendor_id = $3, updated_at = now()
		WHERE tenant_id = $4 AND id = $5
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query, doc.Title, doc.Shared, doc.VendorID,
		doc.TenantID, doc.ID).Scan(&doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return httputil.ErrNotFound("document")
	}
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	s.invalidate(ctx, doc)
	return nil
}

// Delete removes the metadata row and the stored object. The row goes
// first; a failed object delete is logged and left for a cleanup sweep
// rather than resurrecting the document.
func (s *DocumentService) Delete(ctx context.Context, doc *Document) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE tenant_id = $1 AND id = $2`, doc.TenantID, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return httputil.ErrNotFound("document")
	}

	if doc.FileKey != "" {
		if err := s.files.Delete(ctx, doc.FileKey); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"document_id": doc.ID,
				"file_key":    doc.FileKey,
			}).Error("failed to delete document object, leaving for cleanup")
		}
	}

	s.invalidate(ctx, doc)
	return nil
}

// Download streams the document content from object storage
func (s *DocumentService) Download(ctx context.Context, doc *Document) (io.ReadCloser, error) {
	return s.files.Get(ctx, doc.FileKey)
}

// DownloadURL returns a time-limited signed URL for the document
func (s *DocumentService) DownloadURL(ctx context.Context, doc *Document) (string, error) {
	return s.files.SignedURL(ctx, doc.FileKey, postgres.SignedURLTTL)
}

func (s *DocumentService) invalidate(ctx context.Context, doc *Document) {
	s.cache.InvalidateMutation(ctx, "document", doc.TenantID, doc.OrganizationID, doc.ID)
	if doc.VendorID != nil {
		s.cache.Invalidate(ctx, postgres.OrgTag("document", *doc.VendorID))
	}
}

func scanDocument(row rowScanner) (*Document, error) {
	doc := &Document{}
	var vendorID sql.NullInt64
	err := row.Scan(&doc.ID, &doc.TenantID, &doc.OrganizationID, &vendorID, &doc.CreatedBy,
		&doc.Title, &doc.FileName, &doc.FileKey, &doc.ContentType, &doc.SizeBytes,
		&doc.Checksum, &doc.Shared, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if vendorID.Valid {
		v := vendorID.Int64
		doc.VendorID = &v
	}
	return doc, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
