package tenants

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

// Service is the interface for tenant management
type Service interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context, includeDeleted bool) ([]*Tenant, error)
	Update(ctx context.Context, id int64, req *UpdateRequest) (*Tenant, error)
	Suspend(ctx context.Context, id int64) error
	Reactivate(ctx context.Context, id int64) error
	SoftDelete(ctx context.Context, id int64) error
	GetUsage(ctx context.Context, id int64) (*Usage, error)
	CheckLimit(ctx context.Context, id int64, kind LimitKind) error
}

// LimitKind names a usage limit for CheckLimit
type LimitKind string

const (
	LimitUsers         LimitKind = "users"
	LimitOrganizations LimitKind = "organizations"
)

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// Create creates a new tenant
func (s *PostgresService) Create(ctx context.Context, tenant *Tenant) error {
	if tenant.Slug == "" {
		tenant.Slug = generateSlug(tenant.Name)
	}
	if tenant.Tier == "" {
		tenant.Tier = TierStandard
	}
	tenant.Status = StatusActive

	settingsJSON, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO tenants (name, slug, tier, status, settings)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, tenant.Name, tenant.Slug, tenant.Tier, tenant.Status, settingsJSON).
		Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return httputil.NewError(httputil.CodeConflict, "a tenant with this slug already exists")
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

const tenantColumns = `id, name, slug, tier, status, settings, created_at, updated_at, deleted_at`

// GetByID retrieves a tenant by id. Soft-deleted tenants are not returned.
func (s *PostgresService) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1 AND status != 'deleted'`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetBySlug retrieves a tenant by slug
func (s *PostgresService) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1 AND status != 'deleted'`
	return s.scanOne(s.db.QueryRowContext(ctx, query, slug))
}

// List returns all tenants, newest first
func (s *PostgresService) List(ctx context.Context, includeDeleted bool) ([]*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants`
	if !includeDeleted {
		query += ` WHERE status != 'deleted'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}

// Update applies the mutable fields. The tenant id and slug never change.
func (s *PostgresService) Update(ctx context.Context, id int64, req *UpdateRequest) (*Tenant, error) {
	tenant, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		tenant.Name = *req.Name
	}
	if req.Tier != nil {
		tenant.Tier = *req.Tier
	}
	if req.Settings != nil {
		tenant.Settings = req.Settings
	}

	settingsJSON, err := json.Marshal(tenant.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		UPDATE tenants SET name = $1, tier = $2, settings = $3, updated_at = now()
		WHERE id = $4 AND status != 'deleted'
		RETURNING updated_at
	`
	err = s.db.QueryRowContext(ctx, query, tenant.Name, tenant.Tier, settingsJSON, id).Scan(&tenant.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, httputil.ErrNotFound("tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}
	return tenant, nil
}

// Suspend marks a tenant suspended; its users can no longer authenticate
func (s *PostgresService) Suspend(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusSuspended, StatusActive)
}

// Reactivate returns a suspended tenant to active
func (s *PostgresService) Reactivate(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusActive, StatusSuspended)
}

func (s *PostgresService) setStatus(ctx context.Context, id int64, to, from Status) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return httputil.ErrNotFound("tenant")
	}
	return nil
}

// SoftDelete marks a tenant deleted. Rows are retained for audit history;
// the tenant stops resolving for all lookups.
func (s *PostgresService) SoftDelete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET status = 'deleted', deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND status != 'deleted'`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return httputil.ErrNotFound("tenant")
	}
	return nil
}

// GetUsage returns current consumption against the tenant's limits
func (s *PostgresService) GetUsage(ctx context.Context, id int64) (*Usage, error) {
	usage := &Usage{TenantID: id}
	query := `
		SELECT
			(SELECT COUNT(*) FROM users WHERE tenant_id = $1),
			(SELECT COUNT(*) FROM organizations WHERE tenant_id = $1)
	`
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&usage.Users, &usage.Organizations); err != nil {
		return nil, fmt.Errorf("failed to get tenant usage: %w", err)
	}
	return usage, nil
}

// CheckLimit returns CONSTRAINT_VIOLATION when adding one more of the given
// kind would exceed the tenant's tier limits.
func (s *PostgresService) CheckLimit(ctx context.Context, id int64, kind LimitKind) error {
	tenant, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	usage, err := s.GetUsage(ctx, id)
	if err != nil {
		return err
	}

	limits := LimitsForTier(tenant.Tier)
	switch kind {
	case LimitUsers:
		if usage.Users >= limits.MaxUsers {
			return httputil.NewError(httputil.CodeConstraintViolation,
				fmt.Sprintf("tenant user limit reached (%d)", limits.MaxUsers))
		}
	case LimitOrganizations:
		if usage.Organizations >= limits.MaxOrganizations {
			return httputil.NewError(httputil.CodeConstraintViolation,
				fmt.Sprintf("tenant organization limit reached (%d)", limits.MaxOrganizations))
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresService) scanOne(row *sql.Row) (*Tenant, error) {
	tenant, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, httputil.ErrNotFound("tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

func scanTenant(row rowScanner) (*Tenant, error) {
	tenant := &Tenant{}
	var settingsJSON []byte
	var deletedAt sql.NullTime
	err := row.Scan(&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.Tier, &tenant.Status,
		&settingsJSON, &tenant.CreatedAt, &tenant.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		tenant.DeletedAt = &t
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &tenant.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return tenant, nil
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
