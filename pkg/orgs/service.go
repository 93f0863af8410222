package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/vendorgate/vendorgate/pkg/httputil"
)

// Service is the interface for organization management
type Service interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, tenantID, id int64) (*Organization, error)
	ListOrganizations(ctx context.Context, tenantID int64, kind OrgKind) ([]*Organization, error)
	UpdateOrganization(ctx context.Context, org *Organization) error

	CreateGroup(ctx context.Context, group *CompanyGroup) error
	GetGroup(ctx context.Context, tenantID, id int64) (*CompanyGroup, error)
	ListGroups(ctx context.Context, tenantID int64) ([]*CompanyGroup, error)
	UpdateGroupParent(ctx context.Context, tenantID, groupID int64, parentID *int64) error
	DeleteGroup(ctx context.Context, tenantID, id int64) error

	CreateRelationship(ctx context.Context, rel *VendorRelationship) error
	GetRelationship(ctx context.Context, tenantID, vendorID, companyID int64) (*VendorRelationship, error)
	ListRelationshipsForVendor(ctx context.Context, tenantID, vendorID int64) ([]*VendorRelationship, error)
	SetRelationshipStatus(ctx context.Context, tenantID, id int64, status RelationshipStatus) error
}

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// CreateOrganization creates a new organization inside its tenant
func (s *PostgresService) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.TenantID == 0 {
		return httputil.NewError(httputil.CodeValidation, "tenant_id is required")
	}
	if org.Slug == "" {
		org.Slug = generateSlug(org.Name)
	}
	if org.Kind == "" {
		org.Kind = KindCompany
	}
	org.Status = OrgStatusActive

	settingsJSON, err := json.Marshal(org.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO organizations (tenant_id, name, slug, kind, status, group_id, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, org.TenantID, org.Name, org.Slug, org.Kind,
		org.Status, org.GroupID, settingsJSON).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return httputil.NewError(httputil.CodeConflict, "an organization with this slug already exists")
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

const orgColumns = `id, tenant_id, name, slug, kind, status, group_id, settings, created_at, updated_at`

// GetOrganization retrieves an organization. Lookups are always tenant
// scoped at the row level.
func (s *PostgresService) GetOrganization(ctx context.Context, tenantID, id int64) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE tenant_id = $1 AND id = $2`
	org, err := scanOrg(s.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, httputil.ErrNotFound("organization")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// ListOrganizations lists a tenant's organizations, optionally by kind
func (s *PostgresService) ListOrganizations(ctx context.Context, tenantID int64, kind OrgKind) ([]*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, kind)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var out []*Organization
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

// UpdateOrganization applies mutable fields. TenantID is immutable and is
// used only as the row filter, never as an assignment.
func (s *PostgresService) UpdateOrganization(ctx context.Context, org *Organization) error {
	settingsJSON, err := json.Marshal(org.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		UPDATE organizations
		SET name = $1, status = $2, group_id = $3, settings = $4, updated_at = now()
		WHERE tenant_id = $5 AND id = $6
		RETURNING updated_at
	`
	err = s.db.QueryRowContext(ctx, query, org.Name, org.Status, org.GroupID, settingsJSON,
		org.TenantID, org.ID).Scan(&org.UpdatedAt)
	if err == sql.ErrNoRows {
		return httputil.ErrNotFound("organization")
	}
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrg(row rowScanner) (*Organization, error) {
	org := &Organization{}
	var settingsJSON []byte
	var groupID sql.NullInt64
	err := row.Scan(&org.ID, &org.TenantID, &org.Name, &org.Slug, &org.Kind, &org.Status,
		&groupID, &settingsJSON, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if groupID.Valid {
		v := groupID.Int64
		org.GroupID = &v
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &org.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return org, nil
}

func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
