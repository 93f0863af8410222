package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vendorgate/vendorgate/pkg/httputil"
)

// CreateRelationship connects a vendor organization to a company
// organization. Both must already exist in the same tenant, and the pair
// must hold the expected kinds.
func (s *PostgresService) CreateRelationship(ctx context.Context, rel *VendorRelationship) error {
	vendor, err := s.GetOrganization(ctx, rel.TenantID, rel.VendorID)
	if err != nil {
		return err
	}
	if vendor.Kind != KindVendor {
		return httputil.NewError(httputil.CodeValidation, "vendor_id must reference a vendor organization")
	}
	company, err := s.GetOrganization(ctx, rel.TenantID, rel.CompanyID)
	if err != nil {
		return err
	}
	if company.Kind != KindCompany {
		return httputil.NewError(httputil.CodeValidation, "company_id must reference a company organization")
	}

	if rel.Status == "" {
		rel.Status = RelationshipPending
	}
	permsJSON, err := json.Marshal(rel.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO vendor_relationships (tenant_id, vendor_id, company_id, status, permissions)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, rel.TenantID, rel.VendorID, rel.CompanyID,
		rel.Status, permsJSON).Scan(&rel.ID, &rel.CreatedAt, &rel.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return httputil.NewError(httputil.CodeConflict, "relationship already exists")
		}
		return fmt.Errorf("failed to create relationship: %w", err)
	}
	return nil
}

const relationshipColumns = `id, tenant_id, vendor_id, company_id, status, permissions, created_at, updated_at`

// GetRelationship retrieves the relationship between a vendor and a company
func (s *PostgresService) GetRelationship(ctx context.Context, tenantID, vendorID, companyID int64) (*VendorRelationship, error) {
	query := `SELECT ` + relationshipColumns + `
		FROM vendor_relationships WHERE tenant_id = $1 AND vendor_id = $2 AND company_id = $3`
	rel, err := scanRelationship(s.db.QueryRowContext(ctx, query, tenantID, vendorID, companyID))
	if err == sql.ErrNoRows {
		return nil, httputil.ErrNotFound("vendor relationship")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return rel, nil
}

// ListRelationshipsForVendor lists all relationships a vendor holds
func (s *PostgresService) ListRelationshipsForVendor(ctx context.Context, tenantID, vendorID int64) ([]*VendorRelationship, error) {
	query := `SELECT ` + relationshipColumns + `
		FROM vendor_relationships WHERE tenant_id = $1 AND vendor_id = $2 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, tenantID, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	var out []*VendorRelationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// SetRelationshipStatus moves a relationship through its lifecycle
func (s *PostgresService) SetRelationshipStatus(ctx context.Context, tenantID, id int64, status RelationshipStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE vendor_relationships SET status = $1, updated_at = now() WHERE tenant_id = $2 AND id = $3`,
		status, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to update relationship: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return httputil.ErrNotFound("vendor relationship")
	}
	return nil
}

func scanRelationship(row rowScanner) (*VendorRelationship, error) {
	rel := &VendorRelationship{}
	var permsJSON []byte
	err := row.Scan(&rel.ID, &rel.TenantID, &rel.VendorID, &rel.CompanyID, &rel.Status,
		&permsJSON, &rel.CreatedAt, &rel.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(permsJSON) > 0 {
		if err := json.Unmarshal(permsJSON, &rel.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}
	return rel, nil
}
