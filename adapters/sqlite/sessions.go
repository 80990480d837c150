package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/portalis-labs/keygate/core"
)

// PutSession inserts the durable session record.
func (s *Store) PutSession(ctx context.Context, session core.Session) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, identity_id, issued_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		session.TokenHash, session.IdentityID,
		toMillis(session.IssuedAt), toMillis(session.ExpiresAt)); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByHash fetches a session by its token hash.
func (s *Store) GetSessionByHash(ctx context.Context, tokenHash string) (core.Session, error) {
	var (
		session   core.Session
		issuedAt  int64
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, identity_id, issued_at, expires_at
		FROM sessions WHERE token_hash = ?`, tokenHash).
		Scan(&session.TokenHash, &session.IdentityID, &issuedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, core.ErrSessionInvalid
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	session.IssuedAt = fromMillis(issuedAt)
	session.ExpiresAt = fromMillis(expiresAt)
	return session, nil
}

// ExpireSession marks a session expired by pulling its deadline into the
// past. Expiring an unknown or already expired session is a no-op.
func (s *Store) ExpireSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET expires_at = issued_at WHERE token_hash = ?`, tokenHash); err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	return nil
}
