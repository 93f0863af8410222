package resources

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vendorgate/vendorgate/pkg/identity"
)

// Dashboard is the per-organization summary shown on the portal landing
// page.
type Dashboard struct {
	Documents       int   `json:"documents"`
	UnreadMessages  int   `json:"unread_messages"`
	PendingPayments int   `json:"pending_payments"`
	OpenStatements  int   `json:"open_statements"`
	PaidCentsTotal  int64 `json:"paid_cents_total"`
}

// DashboardService aggregates counts across the resource tables
type DashboardService struct {
	db *sql.DB
}

// NewDashboardService creates a new DashboardService
func NewDashboardService(db *sql.DB) *DashboardService {
	return &DashboardService{db: db}
}

// Load gathers the dashboard counts concurrently. Each count is a simple
// aggregate scoped to the caller's tenant and organization; the first
// failing query cancels the rest.
func (s *DashboardService) Load(ctx context.Context, caller *identity.Identity) (*Dashboard, error) {
	d := &Dashboard{}
	g, ctx := errgroup.WithContext(ctx)

	count := func(query string, dst *int) func() error {
		return func() error {
			return s.db.QueryRowContext(ctx, query, caller.TenantID, caller.OrganizationID).Scan(dst)
		}
	}

	g.Go(count(`SELECT COUNT(*) FROM documents
		WHERE tenant_id = $1 AND (organization_id = $2 OR vendor_id = $2)`, &d.Documents))
	g.Go(count(`SELECT COUNT(*) FROM messages
		WHERE tenant_id = $1 AND to_org_id = $2 AND read_at IS NULL`, &d.UnreadMessages))
	g.Go(count(`SELECT COUNT(*) FROM payments
		WHERE tenant_id = $1 AND (organization_id = $2 OR vendor_id = $2) AND status = 'pending'`, &d.PendingPayments))
	g.Go(count(`SELECT COUNT(*) FROM statements
		WHERE tenant_id = $1 AND (organization_id = $2 OR vendor_id = $2) AND finalized_at IS NULL`, &d.OpenStatements))
	g.Go(func() error {
		return s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM payments
			WHERE tenant_id = $1 AND (organization_id = $2 OR vendor_id = $2) AND status = 'paid'`,
			caller.TenantID, caller.OrganizationID).Scan(&d.PaidCentsTotal)
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load dashboard: %w", err)
	}
	return d, nil
}
