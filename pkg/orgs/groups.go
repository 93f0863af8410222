package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vendorgate/vendorgate/pkg/httputil"
)

// CreateGroup creates a company group node. A parent, when given, must
// exist in the same tenant; the resulting hierarchy must stay acyclic.
func (s *PostgresService) CreateGroup(ctx context.Context, group *CompanyGroup) error {
	if group.TenantID == 0 {
		return httputil.NewError(httputil.CodeValidation, "tenant_id is required")
	}
	if group.ParentID != nil {
		if _, err := s.GetGroup(ctx, group.TenantID, *group.ParentID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO company_groups (tenant_id, name, parent_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, group.TenantID, group.Name, group.ParentID).
		Scan(&group.ID, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create company group: %w", err)
	}
	return nil
}

// GetGroup retrieves a company group within a tenant
func (s *PostgresService) GetGroup(ctx context.Context, tenantID, id int64) (*CompanyGroup, error) {
	query := `
		SELECT id, tenant_id, name, parent_id, created_at, updated_at
		FROM company_groups WHERE tenant_id = $1 AND id = $2
	`
	group := &CompanyGroup{}
	var parentID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, tenantID, id).Scan(
		&group.ID, &group.TenantID, &group.Name, &parentID, &group.CreatedAt, &group.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, httputil.ErrNotFound("company group")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company group: %w", err)
	}
	if parentID.Valid {
		v := parentID.Int64
		group.ParentID = &v
	}
	return group, nil
}

// ListGroups lists all company groups in a tenant
func (s *PostgresService) ListGroups(ctx context.Context, tenantID int64) ([]*CompanyGroup, error) {
	query := `
		SELECT id, tenant_id, name, parent_id, created_at, updated_at
		FROM company_groups WHERE tenant_id = $1 ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list company groups: %w", err)
	}
	defer rows.Close()

	var out []*CompanyGroup
	for rows.Next() {
		group := &CompanyGroup{}
		var parentID sql.NullInt64
		if err := rows.Scan(&group.ID, &group.TenantID, &group.Name, &parentID,
			&group.CreatedAt, &group.UpdatedAt); err != nil {
			return nil, err
		}
		if parentID.Valid {
			v := parentID.Int64
			group.ParentID = &v
		}
		out = append(out, group)
	}
	return out, rows.Err()
}

// UpdateGroupParent re-parents a group after verifying the move keeps the
// hierarchy acyclic: the new parent chain must not pass through the group
// being moved.
func (s *PostgresService) UpdateGroupParent(ctx context.Context, tenantID, groupID int64, parentID *int64) error {
	if parentID != nil {
		if *parentID == groupID {
			return httputil.NewError(httputil.CodeValidation, "a group cannot be its own parent")
		}
		if err := s.checkAcyclic(ctx, tenantID, groupID, *parentID); err != nil {
			return err
		}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE company_groups SET parent_id = $1, updated_at = now() WHERE tenant_id = $2 AND id = $3`,
		parentID, tenantID, groupID)
	if err != nil {
		return fmt.Errorf("failed to update company group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return httputil.ErrNotFound("company group")
	}
	return nil
}

// checkAcyclic walks from the proposed parent to the hierarchy root. If the
// walk reaches groupID the move would create a cycle; a visited set bounds
// the walk even against already-corrupt data.
func (s *PostgresService) checkAcyclic(ctx context.Context, tenantID, groupID, parentID int64) error {
	visited := map[int64]bool{groupID: true}
	current := parentID

	for {
		if visited[current] {
			return httputil.NewError(httputil.CodeValidation, "group hierarchy would contain a cycle")
		}
		visited[current] = true

		group, err := s.GetGroup(ctx, tenantID, current)
		if err != nil {
			return err
		}
		if group.ParentID == nil {
			return nil
		}
		current = *group.ParentID
	}
}

// DeleteGroup removes an empty group. Groups with member organizations or
// child groups cannot be deleted; the caller must move the members first.
func (s *PostgresService) DeleteGroup(ctx context.Context, tenantID, id int64) error {
	var orgCount, childCount int
	query := `
		SELECT
			(SELECT COUNT(*) FROM organizations WHERE tenant_id = $1 AND group_id = $2),
			(SELECT COUNT(*) FROM company_groups WHERE tenant_id = $1 AND parent_id = $2)
	`
	if err := s.db.QueryRowContext(ctx, query, tenantID, id).Scan(&orgCount, &childCount); err != nil {
		return fmt.Errorf("failed to check company group usage: %w", err)
	}
	if orgCount > 0 || childCount > 0 {
		return httputil.NewError(httputil.CodeCompanyGroupInUse,
			fmt.Sprintf("company group has %d organizations and %d child groups", orgCount, childCount))
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM company_groups WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete company group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return httputil.ErrNotFound("company group")
	}
	return nil
}
