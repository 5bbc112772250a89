// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshSession is one link in a rotation chain. A session starts VALID and
// moves to exactly one terminal state: rotated or revoked (both recorded via
// the Revoked flag) or expired (derived from ExpiresAt). Transitions are
// monotonic and never reversed.
type RefreshSession struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

// NewRefreshSession creates a validated RefreshSession.
func NewRefreshSession(accountID ulid.ULID, tokenHash string, ttl time.Duration) (*RefreshSession, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("SESSION_INVALID_TTL").Errorf("session TTL must be positive")
	}

	now := time.Now()
	return &RefreshSession{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: tokenHash,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Expired returns true if the session TTL has elapsed. Expiry is detected
// lazily on lookup; no background transition is recorded.
func (s *RefreshSession) Expired() bool {
	return s.ExpiredAt(time.Now())
}

// ExpiredAt returns true if the session would be expired at the given time.
// Useful for testing with deterministic time values.
func (s *RefreshSession) ExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// Valid returns true if the session is usable: neither revoked nor expired.
func (s *RefreshSession) Valid() bool {
	return !s.Revoked && !s.Expired()
}

// SessionStore manages refresh-session persistence. Implementations key
// records by token hash; plaintext refresh tokens are never stored.
type SessionStore interface {
	// Create stores a new refresh session.
	Create(ctx context.Context, session *RefreshSession) error

	// GetByTokenHash retrieves a session by its token hash.
	// Returns ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshSession, error)

	// Rotate atomically revokes the session identified by oldTokenHash and
	// creates next, as a single commit point. The revocation is a
	// compare-and-swap on the old record's revoked flag: if the old session
	// is absent, already revoked, or expired, Rotate returns
	// ErrRotationConflict and persists nothing. At most one of any number
	// of concurrent callers rotating the same token succeeds.
	Rotate(ctx context.Context, oldTokenHash string, next *RefreshSession) error

	// Revoke marks the session revoked. Idempotent: revoking an absent or
	// already-revoked session is not an error.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeAllForAccount revokes every session owned by the account.
	// Idempotent, like Revoke.
	RevokeAllForAccount(ctx context.Context, accountID ulid.ULID) error

	// PurgeTerminal removes sessions that reached a terminal state before
	// the retention window, returning the count removed. Safe to run
	// concurrently with every other operation; it never removes a record
	// that an in-flight rotation could still commit against.
	PurgeTerminal(ctx context.Context, retention time.Duration) (int64, error)
}
