package resources

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/storage/postgres"
)

// PaymentService manages payment records
type PaymentService struct {
	db    *sql.DB
	cache *postgres.TagCache
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(db *sql.DB, cache *postgres.TagCache) *PaymentService {
	return &PaymentService{db: db, cache: cache}
}

const paymentColumns = `id, tenant_id, organization_id, vendor_id, created_by, amount_cents,
	currency, status, reference, due_date, created_at, updated_at`

// validTransitions is the payment state machine. Terminal states have no
// outgoing edges.
var validTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentApproved, PaymentRejected},
	PaymentApproved: {PaymentPaid, PaymentRejected},
}

func canTransition(from, to PaymentStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Create inserts a new payment in pending status
func (s *PaymentService) Create(ctx context.Context, payment *Payment) error {
	if payment.AmountCents <= 0 {
		return httputil.NewError(httputil.CodeValidation, "amount_cents must be positive")
	}
	if payment.Currency == "" {
		return httputil.NewError(httputil.CodeValidation, "currency is required")
	}
	payment.Status = PaymentPending

	query := `
		INSERT INTO payments (tenant_id, organization_id, vendor_id, created_by,
			amount_cents, currency, status, reference, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, payment.TenantID, payment.OrganizationID,
		payment.VendorID, payment.CreatedBy, payment.AmountCents, payment.Currency,
		payment.Status, payment.Reference, payment.DueDate).
		Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	s.cache.InvalidateMutation(ctx, "payment", payment.TenantID, payment.OrganizationID, payment.ID)
	return nil
}

// Get retrieves a payment by id within a tenant
func (s *PaymentService) Get(ctx context.Context, tenantID, id int64) (*Payment, error) {
	cacheKey := fmt.Sprintf("payment:%d:%d", tenantID, id)
	payment := &Payment{}
	if s.cache.Get(ctx, cacheKey, payment) {
		return payment, nil
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tenant_id = $1 AND id = $2`
	payment, err := scanPayment(s.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, httputil.ErrNotFound("payment")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	s.cache.Set(ctx, cacheKey, payment,
		postgres.TenantTag("payment", payment.TenantID),
		postgres.OrgTag("payment", payment.OrganizationID),
		postgres.IDTag("payment", payment.ID))
	return payment, nil
}

// ListVisible lists payments visible to the caller: payments of the
// caller's own organization, or payments directed at the caller's vendor
// organization.
func (s *PaymentService) ListVisible(ctx context.Context, caller *identity.Identity, p httputil.Pagination) ([]*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE tenant_id = $1 AND (organization_id = $2 OR vendor_id = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, caller.TenantID, caller.OrganizationID, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, payment)
	}
	return out, rows.Err()
}

// SetStatus moves a payment through its lifecycle, rejecting transitions
// the state machine does not allow.
func (s *PaymentService) SetStatus(ctx context.Context, payment *Payment, to PaymentStatus) error {
	if !canTransition(payment.Status, to) {
		return httputil.NewError(httputil.CodeConflict,
			fmt.Sprintf("cannot move payment from %s to %s", payment.Status, to))
	}

	query := `
		UPDATE payments SET status = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND status = $4
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query, to, payment.TenantID, payment.ID, payment.Status).
		Scan(&payment.UpdatedAt)
	if err == sql.ErrNoRows {
		// Row changed underneath us; the caller's view is stale.
		return httputil.NewError(httputil.CodeConflict, "payment was modified concurrently")
	}
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	payment.Status = to

	s.cache.InvalidateMutation(ctx, "payment", payment.TenantID, payment.OrganizationID, payment.ID)
	return nil
}

func scanPayment(row rowScanner) (*Payment, error) {
	payment := &Payment{}
	var vendorID sql.NullInt64
	var dueDate sql.NullTime
	err := row.Scan(&payment.ID, &payment.TenantID, &payment.OrganizationID, &vendorID,
		&payment.CreatedBy, &payment.AmountCents, &payment.Currency, &payment.Status,
		&payment.Reference, &dueDate, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if vendorID.Valid {
		v := vendorID.Int64
		payment.VendorID = &v
	}
	if dueDate.Valid {
		t := dueDate.Time
		payment.DueDate = &t
	}
	return payment, nil
}
