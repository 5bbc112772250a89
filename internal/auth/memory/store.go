// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package memory provides in-memory auth persistence for development and
// tests. The rotation compare-and-swap holds under the store mutex, giving
// the same single-winner guarantee as the SQL implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftline/driftline/internal/auth"
)

// AccountRepository implements auth.AccountRepository in memory.
type AccountRepository struct {
	mu      sync.Mutex
	byID    map[ulid.ULID]*auth.Account
	byEmail map[string]ulid.ULID
}

// NewAccountRepository creates an empty AccountRepository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:    make(map[ulid.ULID]*auth.Account),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[account.Email]; ok {
		return auth.ErrDuplicateEmail
	}
	clone := *account
	r.byID[account.ID] = &clone
	r.byEmail[account.Email] = account.ID
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

// GetByEmail retrieves an account by normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *r.byID[id]
	return &clone, nil
}

// Update updates an existing account.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[account.ID]; !ok {
		return auth.ErrNotFound
	}
	clone := *account
	r.byID[account.ID] = &clone
	return nil
}

// UpdatePassword updates only the password hash for an account.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	account.PasswordHash = passwordHash
	return nil
}

// SessionStore implements auth.SessionStore in memory, keyed by token hash.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*auth.RefreshSession
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*auth.RefreshSession)}
}

// Create stores a new refresh session.
func (s *SessionStore) Create(ctx context.Context, session *auth.RefreshSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *session
	s.sessions[session.TokenHash] = &clone
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (s *SessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *session
	return &clone, nil
}

// Rotate atomically revokes the old session and creates the next one. The
// compare-and-swap on the old record's revoked flag happens under the store
// mutex: exactly one of any number of concurrent callers wins.
func (s *SessionStore) Rotate(ctx context.Context, oldTokenHash string, next *auth.RefreshSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sessions[oldTokenHash]
	if !ok {
		return auth.ErrNotFound
	}
	if old.Revoked || old.Expired() {
		return auth.ErrRotationConflict
	}

	now := time.Now()
	old.Revoked = true
	old.RevokedAt = &now

	clone := *next
	s.sessions[next.TokenHash] = &clone
	return nil
}

// Revoke marks the session revoked. Idempotent.
func (s *SessionStore) Revoke(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[tokenHash]
	if !ok || session.Revoked {
		return nil
	}
	now := time.Now()
	session.Revoked = true
	session.RevokedAt = &now
	return nil
}

// RevokeAllForAccount revokes every session owned by the account. Idempotent.
func (s *SessionStore) RevokeAllForAccount(ctx context.Context, accountID ulid.ULID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, session := range s.sessions {
		if session.AccountID == accountID && !session.Revoked {
			session.Revoked = true
			session.RevokedAt = &now
		}
	}
	return nil
}

// PurgeTerminal removes sessions terminal since before the retention window.
func (s *SessionStore) PurgeTerminal(ctx context.Context, retention time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	var purged int64
	for hash, session := range s.sessions {
		revokedPast := session.Revoked && session.RevokedAt != nil && session.RevokedAt.Before(cutoff)
		expiredPast := session.ExpiresAt.Before(cutoff)
		if revokedPast || expiredPast {
			delete(s.sessions, hash)
			purged++
		}
	}
	return purged, nil
}

// Compile-time interface checks.
var (
	_ auth.AccountRepository = (*AccountRepository)(nil)
	_ auth.SessionStore      = (*SessionStore)(nil)
)
