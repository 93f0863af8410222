package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PostgresStore persists audit events to the audit_events table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Record inserts an audit event
func (s *PostgresStore) Record(ctx context.Context, event *Event) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			timestamp, event_type, status, user_id, organization_id, tenant_id,
			requested_tenant_id, resource_type, resource_id, request_id,
			ip_address, method, path, message, error_message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status, event.UserID,
		event.OrganizationID, event.TenantID, event.RequestedTenantID,
		event.ResourceType, event.ResourceID, event.RequestID,
		event.IPAddress, event.Method, event.Path, event.Message,
		event.ErrorMessage, metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the store does not own the connection pool
func (s *PostgresStore) Close() error {
	return nil
}

// Search queries audit events with filters, newest first
func (s *PostgresStore) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= "+arg(*filter.StartTime))
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= "+arg(*filter.EndTime))
	}
	if filter.UserID != nil {
		conditions = append(conditions, "user_id = "+arg(*filter.UserID))
	}
	if filter.TenantID != nil {
		conditions = append(conditions, "tenant_id = "+arg(*filter.TenantID))
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			placeholders[i] = arg(string(et))
		}
		conditions = append(conditions, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = "+arg(string(*filter.Status)))
	}
	if filter.ResourceType != "" {
		conditions = append(conditions, "resource_type = "+arg(string(filter.ResourceType)))
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, "resource_id = "+arg(filter.ResourceID))
	}

	query := `
		SELECT id, timestamp, event_type, status, user_id, organization_id, tenant_id,
		       requested_tenant_id, resource_type, resource_id, request_id,
		       ip_address, method, path, message, error_message, metadata
		FROM audit_events
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	event := &Event{}
	var userID, orgID, tenantID, requestedTenantID sql.NullInt64
	var resourceType, resourceID, requestID, ipAddress, method, path sql.NullString
	var message, errorMessage sql.NullString
	var metadataJSON []byte

	err := rows.Scan(&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&userID, &orgID, &tenantID, &requestedTenantID,
		&resourceType, &resourceID, &requestID,
		&ipAddress, &method, &path, &message, &errorMessage, &metadataJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}

	if userID.Valid {
		event.UserID = &userID.Int64
	}
	if orgID.Valid {
		event.OrganizationID = &orgID.Int64
	}
	if tenantID.Valid {
		event.TenantID = &tenantID.Int64
	}
	if requestedTenantID.Valid {
		event.RequestedTenantID = &requestedTenantID.Int64
	}
	event.ResourceType = ResourceType(resourceType.String)
	event.ResourceID = resourceID.String
	event.RequestID = requestID.String
	event.IPAddress = ipAddress.String
	event.Method = method.String
	event.Path = path.String
	event.Message = message.String
	event.ErrorMessage = errorMessage.String
	if len(metadataJSON) > 0 {
		json.Unmarshal(metadataJSON, &event.Metadata)
	}
	return event, nil
}
