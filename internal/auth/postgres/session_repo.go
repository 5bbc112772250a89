// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftline/driftline/internal/auth"
)

// SessionStore implements auth.SessionStore using PostgreSQL. Records are
// keyed by token hash; plaintext refresh tokens never reach the database.
type SessionStore struct {
	db DB
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create stores a new refresh session.
func (s *SessionStore) Create(ctx context.Context, session *auth.RefreshSession) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_sessions (id, account_id, token_hash, issued_at, expires_at, revoked, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		session.ID.String(),
		session.AccountID.String(),
		session.TokenHash,
		session.IssuedAt,
		session.ExpiresAt,
		session.Revoked,
		session.RevokedAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert refresh_session").
			With("account_id", session.AccountID.String()).
			Wrap(classify(err))
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (s *SessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshSession, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, account_id, token_hash, issued_at, expires_at, revoked, revoked_at
		FROM refresh_sessions
		WHERE token_hash = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(classify(err))
	}
	return session, nil
}

// Rotate atomically revokes the old session and creates the next one in a
// single transaction. The conditional UPDATE is the compare-and-swap: it
// only matches a row that is still unrevoked and unexpired, so of any number
// of concurrent rotations on the same token exactly one commits. Losers get
// auth.ErrRotationConflict and the transaction rolls back with nothing
// persisted.
func (s *SessionStore) Rotate(ctx context.Context, oldTokenHash string, next *auth.RefreshSession) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "begin transaction").
			Wrap(classify(err))
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	result, err := tx.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
	`, oldTokenHash, time.Now())
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "revoke old session").
			Wrap(classify(err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_ROTATE_CONFLICT").Wrap(auth.ErrRotationConflict)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_sessions (id, account_id, token_hash, issued_at, expires_at, revoked, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		next.ID.String(),
		next.AccountID.String(),
		next.TokenHash,
		next.IssuedAt,
		next.ExpiresAt,
		next.Revoked,
		next.RevokedAt,
	)
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "insert successor session").
			Wrap(classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "commit rotation").
			Wrap(classify(err))
	}
	return nil
}

// Revoke marks the session revoked. Idempotent: zero rows affected is not
// an error.
func (s *SessionStore) Revoke(ctx context.Context, tokenHash string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE
	`, tokenHash, time.Now())
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			Wrap(classify(err))
	}
	return nil
}

// RevokeAllForAccount revokes every session owned by the account. Idempotent.
func (s *SessionStore) RevokeAllForAccount(ctx context.Context, accountID ulid.ULID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE, revoked_at = $2
		WHERE account_id = $1 AND revoked = FALSE
	`, accountID.String(), time.Now())
	if err != nil {
		return oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("operation", "revoke sessions by account").
			With("account_id", accountID.String()).
			Wrap(classify(err))
	}
	return nil
}

// PurgeTerminal removes sessions terminal since before the retention window
// and returns the count. A session an in-flight rotation could still commit
// against is unrevoked and unexpired, so it never matches.
func (s *SessionStore) PurgeTerminal(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result, err := s.db.Exec(ctx, `
		DELETE FROM refresh_sessions
		WHERE (revoked = TRUE AND revoked_at < $1) OR expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").
			With("operation", "delete terminal refresh_sessions").
			Wrap(classify(err))
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row into a RefreshSession.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (*auth.RefreshSession, error) {
	var (
		idStr        string
		accountIDStr string
		tokenHash    string
		issuedAt     time.Time
		expiresAt    time.Time
		revoked      bool
		revokedAt    *time.Time
	)

	err := row.Scan(&idStr, &accountIDStr, &tokenHash, &issuedAt, &expiresAt, &revoked, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan refresh_session").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}
	accountID, err := ulid.Parse(accountIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT_ID").
			With("operation", "parse account id").
			With("account_id", accountIDStr).
			Wrap(err)
	}

	return &auth.RefreshSession{
		ID:        id,
		AccountID: accountID,
		TokenHash: tokenHash,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Revoked:   revoked,
		RevokedAt: revokedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionStore)(nil)
