package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store over the users and sessions tables
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetUserBySessionHash resolves a session token hash to its user
func (s *PostgresStore) GetUserBySessionHash(ctx context.Context, tokenHash string) (*User, error) {
	query := `
		SELECT u.id, u.email, u.role, u.organization_id, u.tenant_id, u.company_group_id,
		       u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1
		  AND s.revoked_at IS NULL
		  AND s.expires_at > now()
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, tokenHash))
}

// GetUserByEmail resolves an email to its user row
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, role, organization_id, tenant_id, company_group_id,
		       created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var groupID sql.NullInt64
	err := row.Scan(&user.ID, &user.Email, &user.Role, &user.OrganizationID,
		&user.TenantID, &groupID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if groupID.Valid {
		user.CompanyGroupID = &groupID.Int64
	}
	return user, nil
}

// CreateSession issues a new session for a user and returns the raw token.
// The raw token is not persisted and cannot be recovered.
func (s *PostgresStore) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (*Session, string, error) {
	token, tokenHash, prefix, err := NewTokenGenerator().GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &Session{
		UserID:    userID,
		TokenHash: tokenHash,
		Prefix:    prefix,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	query := `
		INSERT INTO sessions (user_id, token_hash, prefix, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query, session.UserID, session.TokenHash,
		session.Prefix, session.ExpiresAt).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	return session, token, nil
}

// RevokeSession marks a session revoked by its token hash
func (s *PostgresStore) RevokeSession(ctx context.Context, tokenHash string) error {
	query := `UPDATE sessions SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
