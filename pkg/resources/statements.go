package resources

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/storage/postgres"
)

// StatementService manages period statements and their transaction lines.
// Statement totals are recomputed from the lines after every change; a
// reader may briefly observe a total that trails the lines.
type StatementService struct {
	db    *sql.DB
	cache *postgres.TagCache
}

// NewStatementService creates a new StatementService
func NewStatementService(db *sql.DB, cache *postgres.TagCache) *StatementService {
	return &StatementService{db: db, cache: cache}
}

const statementColumns = `id, tenant_id, organization_id, vendor_id, created_by,
	period_start, period_end, total_cents, currency, finalized_at, created_at, updated_at`

// Create inserts a new open statement for a period
func (s *StatementService) Create(ctx context.Context, st *Statement) error {
	if !st.PeriodEnd.After(st.PeriodStart) {
		return httputil.NewError(httputil.CodeValidation, "period_end must be after period_start")
	}
	if st.Currency == "" {
		return httputil.NewError(httputil.CodeValidation, "currency is required")
	}

	query := `
		INSERT INTO statements (tenant_id, organization_id, vendor_id, created_by,
			period_start, period_end, total_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, st.TenantID, st.OrganizationID, st.VendorID,
		st.CreatedBy, st.PeriodStart, st.PeriodEnd, st.Currency).
		Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create statement: %w", err)
	}

	s.cache.InvalidateMutation(ctx, "statement", st.TenantID, st.OrganizationID, st.ID)
	return nil
}

// Get retrieves a statement by id within a tenant
func (s *StatementService) Get(ctx context.Context, tenantID, id int64) (*Statement, error) {
	query := `SELECT ` + statementColumns + ` FROM statements WHERE tenant_id = $1 AND id = $2`
	st, err := scanStatement(s.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, httputil.ErrNotFound("statement")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}
	return st, nil
}

// ListVisible lists statements visible to the caller
func (s *StatementService) ListVisible(ctx context.Context, caller *identity.Identity, p httputil.Pagination) ([]*Statement, error) {
	query := `SELECT ` + statementColumns + ` FROM statements
		WHERE tenant_id = $1 AND (organization_id = $2 OR vendor_id = $2)
		ORDER BY period_start DESC LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, caller.TenantID, caller.OrganizationID, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	defer rows.Close()

	var out []*Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// AddTransaction appends a line to an open statement and recomputes the
// stored total.
func (s *StatementService) AddTransaction(ctx context.Context, st *Statement, tx *Transaction) error {
	if st.IsFinalized() {
		return httputil.NewError(httputil.CodeConflict, "statement is finalized")
	}

	query := `
		INSERT INTO statement_transactions (statement_id, description, amount_cents, occurred_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	tx.StatementID = st.ID
	err := s.db.QueryRowContext(ctx, query, tx.StatementID, tx.Description, tx.AmountCents, tx.OccurredAt).
		Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add transaction: %w", err)
	}

	return s.recomputeTotal(ctx, st)
}

// ListTransactions returns a statement's lines, oldest first
func (s *StatementService) ListTransactions(ctx context.Context, statementID int64) ([]*Transaction, error) {
	query := `
		SELECT id, statement_id, description, amount_cents, occurred_at, created_at
		FROM statement_transactions WHERE statement_id = $1 ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		tx := &Transaction{}
		if err := rows.Scan(&tx.ID, &tx.StatementID, &tx.Description, &tx.AmountCents,
			&tx.OccurredAt, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Finalize closes a statement after a last total recompute. Finalized
// statements accept no further transactions.
func (s *StatementService) Finalize(ctx context.Context, st *Statement) error {
	if st.IsFinalized() {
		return httputil.NewError(httputil.CodeConflict, "statement is already finalized")
	}
	if err := s.recomputeTotal(ctx, st); err != nil {
		return err
	}

	query := `
		UPDATE statements SET finalized_at = now(), updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND finalized_at IS NULL
		RETURNING finalized_at
	`
	var finalizedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, st.TenantID, st.ID).Scan(&finalizedAt)
	if err == sql.ErrNoRows {
		return httputil.NewError(httputil.CodeConflict, "statement was finalized concurrently")
	}
	if err != nil {
		return fmt.Errorf("failed to finalize statement: %w", err)
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		st.FinalizedAt = &t
	}

	s.cache.InvalidateMutation(ctx, "statement", st.TenantID, st.OrganizationID, st.ID)
	return nil
}

// recomputeTotal derives the stored total from the lines
func (s *StatementService) recomputeTotal(ctx context.Context, st *Statement) error {
	query := `
		UPDATE statements
		SET total_cents = (SELECT COALESCE(SUM(amount_cents), 0) FROM statement_transactions WHERE statement_id = $1),
		    updated_at = now()
		WHERE id = $1
		RETURNING total_cents
	`
	if err := s.db.QueryRowContext(ctx, query, st.ID).Scan(&st.TotalCents); err != nil {
		return fmt.Errorf("failed to recompute statement total: %w", err)
	}

	s.cache.InvalidateMutation(ctx, "statement", st.TenantID, st.OrganizationID, st.ID)
	return nil
}

func scanStatement(row rowScanner) (*Statement, error) {
	st := &Statement{}
	var vendorID sql.NullInt64
	var finalizedAt sql.NullTime
	err := row.Scan(&st.ID, &st.TenantID, &st.OrganizationID, &vendorID, &st.CreatedBy,
		&st.PeriodStart, &st.PeriodEnd, &st.TotalCents, &st.Currency, &finalizedAt,
		&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if vendorID.Valid {
		v := vendorID.Int64
		st.VendorID = &v
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		st.FinalizedAt = &t
	}
	return st, nil
}
