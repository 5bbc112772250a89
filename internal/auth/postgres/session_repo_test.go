// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/internal/auth"
)

func testSession(t *testing.T, tokenHash string) *auth.RefreshSession {
	t.Helper()
	session, err := auth.NewRefreshSession(ulid.Make(), tokenHash, time.Hour)
	require.NoError(t, err)
	return session
}

func TestSessionStoreCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("successful insert", func(t *testing.T) {
		mock := newMockPool(t)
		session := testSession(t, "hash-1")

		mock.ExpectExec(`INSERT INTO refresh_sessions`).
			WithArgs(
				session.ID.String(),
				session.AccountID.String(),
				session.TokenHash,
				session.IssuedAt,
				session.ExpiresAt,
				session.Revoked,
				session.RevokedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		store := NewSessionStore(mock)
		require.NoError(t, store.Create(ctx, session))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("timeout maps to unavailable", func(t *testing.T) {
		mock := newMockPool(t)
		session := testSession(t, "hash-1")

		mock.ExpectExec(`INSERT INTO refresh_sessions`).
			WillReturnError(context.DeadlineExceeded)

		store := NewSessionStore(mock)
		err := store.Create(ctx, session)
		assert.ErrorIs(t, err, auth.ErrUnavailable)
	})
}

func TestSessionStoreGetByTokenHash(t *testing.T) {
	ctx := context.Background()
	columns := []string{"id", "account_id", "token_hash", "issued_at", "expires_at", "revoked", "revoked_at"}

	t.Run("round trip", func(t *testing.T) {
		mock := newMockPool(t)
		session := testSession(t, "hash-1")

		mock.ExpectQuery(`SELECT .+ FROM refresh_sessions`).
			WithArgs("hash-1").
			WillReturnRows(pgxmock.NewRows(columns).AddRow(
				session.ID.String(), session.AccountID.String(), session.TokenHash,
				session.IssuedAt, session.ExpiresAt, false, (*time.Time)(nil),
			))

		store := NewSessionStore(mock)
		got, err := store.GetByTokenHash(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, session.AccountID, got.AccountID)
		assert.True(t, got.Valid())
	})

	t.Run("missing hash maps to not found", func(t *testing.T) {
		mock := newMockPool(t)

		mock.ExpectQuery(`SELECT .+ FROM refresh_sessions`).
			WithArgs("absent").
			WillReturnError(pgx.ErrNoRows)

		store := NewSessionStore(mock)
		_, err := store.GetByTokenHash(ctx, "absent")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionStoreRotate(t *testing.T) {
	ctx := context.Background()

	t.Run("winner commits revoke plus insert", func(t *testing.T) {
		mock := newMockPool(t)
		next := testSession(t, "next-hash")

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE refresh_sessions`).
			WithArgs("old-hash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO refresh_sessions`).
			WithArgs(
				next.ID.String(),
				next.AccountID.String(),
				next.TokenHash,
				next.IssuedAt,
				next.ExpiresAt,
				next.Revoked,
				next.RevokedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		store := NewSessionStore(mock)
		require.NoError(t, store.Rotate(ctx, "old-hash", next))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows on the compare-and-swap is a conflict", func(t *testing.T) {
		mock := newMockPool(t)
		next := testSession(t, "next-hash")

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE refresh_sessions`).
			WithArgs("old-hash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		store := NewSessionStore(mock)
		err := store.Rotate(ctx, "old-hash", next)
		assert.ErrorIs(t, err, auth.ErrRotationConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		mock := newMockPool(t)
		next := testSession(t, "next-hash")

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE refresh_sessions`).
			WithArgs("old-hash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO refresh_sessions`).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		store := NewSessionStore(mock)
		err := store.Rotate(ctx, "old-hash", next)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrRotationConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure maps connectivity to unavailable", func(t *testing.T) {
		mock := newMockPool(t)
		next := testSession(t, "next-hash")

		mock.ExpectBegin().WillReturnError(context.DeadlineExceeded)

		store := NewSessionStore(mock)
		err := store.Rotate(ctx, "old-hash", next)
		assert.ErrorIs(t, err, auth.ErrUnavailable)
	})
}

func TestSessionStoreRevoke(t *testing.T) {
	ctx := context.Background()

	t.Run("revoke succeeds", func(t *testing.T) {
		mock := newMockPool(t)

		mock.ExpectExec(`UPDATE refresh_sessions`).
			WithArgs("hash-1", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		store := NewSessionStore(mock)
		assert.NoError(t, store.Revoke(ctx, "hash-1"))
	})

	t.Run("revoking an absent session is not an error", func(t *testing.T) {
		mock := newMockPool(t)

		mock.ExpectExec(`UPDATE refresh_sessions`).
			WithArgs("absent", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		store := NewSessionStore(mock)
		assert.NoError(t, store.Revoke(ctx, "absent"))
	})

	t.Run("revoke all for account", func(t *testing.T) {
		mock := newMockPool(t)
		accountID := ulid.Make()

		mock.ExpectExec(`UPDATE refresh_sessions`).
			WithArgs(accountID.String(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))

		store := NewSessionStore(mock)
		assert.NoError(t, store.RevokeAllForAccount(ctx, accountID))
	})
}

func TestSessionStorePurgeTerminal(t *testing.T) {
	ctx := context.Background()

	t.Run("returns purge count", func(t *testing.T) {
		mock := newMockPool(t)

		mock.ExpectExec(`DELETE FROM refresh_sessions`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("DELETE", 4))

		store := NewSessionStore(mock)
		purged, err := store.PurgeTerminal(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(4), purged)
	})

	t.Run("timeout maps to unavailable", func(t *testing.T) {
		mock := newMockPool(t)

		mock.ExpectExec(`DELETE FROM refresh_sessions`).
			WillReturnError(context.DeadlineExceeded)

		store := NewSessionStore(mock)
		_, err := store.PurgeTerminal(ctx, 24*time.Hour)
		assert.ErrorIs(t, err, auth.ErrUnavailable)
	})
}
