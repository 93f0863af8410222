package resources

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
)

// MessageService manages portal messages between organizations
type MessageService struct {
	db *sql.DB
}

// NewMessageService creates a new MessageService
func NewMessageService(db *sql.DB) *MessageService {
	return &MessageService{db: db}
}

const messageColumns = `id, tenant_id, from_org_id, to_org_id, from_user_id,
	subject, body, read_at, created_at`

// Send inserts a new message
func (s *MessageService) Send(ctx context.Context, msg *Message) error {
	if msg.Subject == "" {
		return httputil.NewError(httputil.CodeValidation, "subject is required")
	}
	if msg.FromOrgID == msg.ToOrgID {
		return httputil.NewError(httputil.CodeValidation, "cannot send a message to the sending organization")
	}

	query := `
		INSERT INTO messages (tenant_id, from_org_id, to_org_id, from_user_id, subject, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, msg.TenantID, msg.FromOrgID, msg.ToOrgID,
		msg.FromUserID, msg.Subject, msg.Body).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Get retrieves a message by id within a tenant
func (s *MessageService) Get(ctx context.Context, tenantID, id int64) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE tenant_id = $1 AND id = $2`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, httputil.ErrNotFound("message")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListForOrganization lists messages sent to or from the caller's
// organization, newest first.
func (s *MessageService) ListForOrganization(ctx context.Context, caller *identity.Identity, p httputil.Pagination) ([]*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE tenant_id = $1 AND (from_org_id = $2 OR to_org_id = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, caller.TenantID, caller.OrganizationID, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// MarkRead stamps the message read. Only the recipient organization may
// mark a message read; the handler checks that through the read predicate.
func (s *MessageService) MarkRead(ctx context.Context, msg *Message) error {
	query := `
		UPDATE messages SET read_at = now()
		WHERE tenant_id = $1 AND id = $2 AND read_at IS NULL
		RETURNING read_at
	`
	var readAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, msg.TenantID, msg.ID).Scan(&readAt)
	if err == sql.ErrNoRows {
		// Already read; idempotent.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	if readAt.Valid {
		t := readAt.Time
		msg.ReadAt = &t
	}
	return nil
}

func scanMessage(row rowScanner) (*Message, error) {
	msg := &Message{}
	var readAt sql.NullTime
	err := row.Scan(&msg.ID, &msg.TenantID, &msg.FromOrgID, &msg.ToOrgID, &msg.FromUserID,
		&msg.Subject, &msg.Body, &readAt, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	if readAt.Valid {
		t := readAt.Time
		msg.ReadAt = &t
	}
	return msg, nil
}
