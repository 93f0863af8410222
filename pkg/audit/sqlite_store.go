package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // embedded audit store driver
)

// SQLiteStore is an embedded audit store for single-node deployments where
// no shared Postgres is available. Schema matches the Postgres store.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	event_type TEXT NOT NULL,
	status TEXT NOT NULL,
	user_id INTEGER,
	organization_id INTEGER,
	tenant_id INTEGER,
	requested_tenant_id INTEGER,
	resource_type TEXT,
	resource_id TEXT,
	request_id TEXT,
	ip_address TEXT,
	method TEXT,
	path TEXT,
	message TEXT,
	error_message TEXT,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events (timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events (event_type);
`

// NewSQLiteStore opens (or creates) an audit database at path.
// Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite audit store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite audit schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record inserts an audit event
func (s *SQLiteStore) Record(ctx context.Context, event *Event) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			timestamp, event_type, status, user_id, organization_id, tenant_id,
			requested_tenant_id, resource_type, resource_id, request_id,
			ip_address, method, path, message, error_message, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		event.Timestamp, event.EventType, event.Status, event.UserID,
		event.OrganizationID, event.TenantID, event.RequestedTenantID,
		event.ResourceType, event.ResourceID, event.RequestID,
		event.IPAddress, event.Method, event.Path, event.Message,
		event.ErrorMessage, string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	event.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns the newest events up to limit
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, timestamp, event_type, status, user_id, organization_id, tenant_id,
		       requested_tenant_id, resource_type, resource_id, request_id,
		       ip_address, method, path, message, error_message, metadata
		FROM audit_events
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
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

// Close closes the embedded database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
