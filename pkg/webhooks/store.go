package webhooks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vendorgate/vendorgate/pkg/httputil"
)

// Store persists subscriptions and delivery logs
type Store interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, tenantID, id int64) (*Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID int64) ([]*Subscription, error)
	ListActiveForEvent(ctx context.Context, tenantID int64, eventType EventType) ([]*Subscription, error)
	SetSubscriptionActive(ctx context.Context, tenantID, id int64, active bool) error
	DeleteSubscription(ctx context.Context, tenantID, id int64) error

	CreateDelivery(ctx context.Context, d *Delivery) error
	UpdateDelivery(ctx context.Context, d *Delivery) error
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*Delivery, error)
	ListDeliveries(ctx context.Context, tenantID, subscriptionID int64, limit int) ([]*Delivery, error)
	GetStats(ctx context.Context, tenantID, subscriptionID int64) (*DeliveryStats, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateSubscription registers a new endpoint
func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	sub.Active = true
	events := make([]string, len(sub.Events))
	for i, e := range sub.Events {
		events[i] = string(e)
	}

	query := `
		INSERT INTO webhook_subscriptions (tenant_id, url, events, secret, active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, sub.TenantID, sub.URL, pq.Array(events),
		sub.Secret, sub.Active, sub.CreatedBy).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook subscription: %w", err)
	}
	return nil
}

const subscriptionColumns = `id, tenant_id, url, events, secret, active, created_by, created_at, updated_at`

// GetSubscription retrieves a subscription within a tenant
func (s *PostgresStore) GetSubscription(ctx context.Context, tenantID, id int64) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE tenant_id = $1 AND id = $2`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, httputil.ErrNotFound("webhook subscription")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions lists a tenant's subscriptions
func (s *PostgresStore) ListSubscriptions(ctx context.Context, tenantID int64) ([]*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE tenant_id = $1 ORDER BY created_at`
	return s.querySubscriptions(ctx, query, tenantID)
}

// ListActiveForEvent lists the active subscriptions interested in an event
func (s *PostgresStore) ListActiveForEvent(ctx context.Context, tenantID int64, eventType EventType) ([]*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions
		WHERE tenant_id = $1 AND active = true AND $2 = ANY(events)`
	return s.querySubscriptions(ctx, query, tenantID, string(eventType))
}

func (s *PostgresStore) querySubscriptions(ctx context.Context, query string, args ...interface{}) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// SetSubscriptionActive enables or disables a subscription
func (s *PostgresStore) SetSubscriptionActive(ctx context.Context, tenantID, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE webhook_subscriptions SET active = $1, updated_at = now() WHERE tenant_id = $2 AND id = $3`,
		active, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to update webhook subscription: %w", err)
	}
	return requireAffected(result, "webhook subscription")
}

// DeleteSubscription removes a subscription and its delivery history
func (s *PostgresStore) DeleteSubscription(ctx context.Context, tenantID, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM webhook_subscriptions WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	return requireAffected(result, "webhook subscription")
}

// CreateDelivery records a new delivery attempt
func (s *PostgresStore) CreateDelivery(ctx context.Context, d *Delivery) error {
	query := `
		INSERT INTO webhook_deliveries (subscription_id, tenant_id, event_id, event_type,
			payload, url, status, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, d.SubscriptionID, d.TenantID, d.EventID,
		d.EventType, d.Payload, d.URL, d.Status, d.Attempts).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return nil
}

// UpdateDelivery persists the outcome of a delivery attempt
func (s *PostgresStore) UpdateDelivery(ctx context.Context, d *Delivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, status_code = $2, error_message = $3, attempts = $4,
		    next_retry_at = $5, completed_at = $6
		WHERE id = $7
	`
	_, err := s.db.ExecContext(ctx, query, d.Status, d.StatusCode, d.ErrorMessage,
		d.Attempts, d.NextRetryAt, d.CompletedAt, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery: %w", err)
	}
	return nil
}

const deliveryColumns = `id, subscription_id, tenant_id, event_id, event_type, payload,
	url, status, status_code, error_message, attempts, next_retry_at, created_at, completed_at`

// ListDueRetries returns retrying deliveries whose next attempt is due
func (s *PostgresStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		WHERE status = 'retrying' AND next_retry_at <= $1
		ORDER BY next_retry_at LIMIT $2`
	return s.queryDeliveries(ctx, query, now, limit)
}

// ListDeliveries lists recent deliveries for a subscription, newest first
func (s *PostgresStore) ListDeliveries(ctx context.Context, tenantID, subscriptionID int64, limit int) ([]*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		WHERE tenant_id = $1 AND subscription_id = $2
		ORDER BY created_at DESC LIMIT $3`
	return s.queryDeliveries(ctx, query, tenantID, subscriptionID, limit)
}

func (s *PostgresStore) queryDeliveries(ctx context.Context, query string, args ...interface{}) ([]*Delivery, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetStats summarizes delivery outcomes for a subscription
func (s *PostgresStore) GetStats(ctx context.Context, tenantID, subscriptionID int64) (*DeliveryStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'success'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'retrying')
		FROM webhook_deliveries WHERE tenant_id = $1 AND subscription_id = $2
	`
	stats := &DeliveryStats{}
	err := s.db.QueryRowContext(ctx, query, tenantID, subscriptionID).
		Scan(&stats.Total, &stats.Success, &stats.Failed, &stats.Retrying)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	sub := &Subscription{}
	var events pq.StringArray
	err := row.Scan(&sub.ID, &sub.TenantID, &sub.URL, &events, &sub.Secret, &sub.Active,
		&sub.CreatedBy, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.Events = make([]EventType, len(events))
	for i, e := range events {
		sub.Events[i] = EventType(e)
	}
	return sub, nil
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	d := &Delivery{}
	var statusCode sql.NullInt64
	var errMsg sql.NullString
	var nextRetry, completed sql.NullTime
	err := row.Scan(&d.ID, &d.SubscriptionID, &d.TenantID, &d.EventID, &d.EventType,
		&d.Payload, &d.URL, &d.Status, &statusCode, &errMsg, &d.Attempts,
		&nextRetry, &d.CreatedAt, &completed)
	if err != nil {
		return nil, err
	}
	d.StatusCode = int(statusCode.Int64)
	d.ErrorMessage = errMsg.String
	if nextRetry.Valid {
		t := nextRetry.Time
		d.NextRetryAt = &t
	}
	if completed.Valid {
		t := completed.Time
		d.CompletedAt = &t
	}
	return d, nil
}

func requireAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return httputil.ErrNotFound(what)
	}
	return nil
}
