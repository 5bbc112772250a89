// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/internal/auth"
)

func TestNewRefreshSession(t *testing.T) {
	accountID := ulid.Make()

	t.Run("creates valid session", func(t *testing.T) {
		session, err := auth.NewRefreshSession(accountID, "hash", time.Hour)
		require.NoError(t, err)

		assert.Equal(t, accountID, session.AccountID)
		assert.Equal(t, "hash", session.TokenHash)
		assert.False(t, session.Revoked)
		assert.True(t, session.Valid())
		assert.WithinDuration(t, session.IssuedAt.Add(time.Hour), session.ExpiresAt, time.Second)
	})

	t.Run("rejects zero account ID", func(t *testing.T) {
		_, err := auth.NewRefreshSession(ulid.ULID{}, "hash", time.Hour)
		assert.Error(t, err)
	})

	t.Run("rejects empty token hash", func(t *testing.T) {
		_, err := auth.NewRefreshSession(accountID, "", time.Hour)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive TTL", func(t *testing.T) {
		_, err := auth.NewRefreshSession(accountID, "hash", 0)
		assert.Error(t, err)
	})
}

func TestRefreshSessionStates(t *testing.T) {
	accountID := ulid.Make()

	t.Run("revoked session is not valid", func(t *testing.T) {
		session, err := auth.NewRefreshSession(accountID, "hash", time.Hour)
		require.NoError(t, err)

		session.Revoked = true
		assert.False(t, session.Valid())
		assert.False(t, session.Expired(), "revocation does not imply expiry")
	})

	t.Run("expiry is evaluated lazily", func(t *testing.T) {
		session, err := auth.NewRefreshSession(accountID, "hash", time.Hour)
		require.NoError(t, err)

		assert.False(t, session.ExpiredAt(session.ExpiresAt), "boundary instant is not yet expired")
		assert.True(t, session.ExpiredAt(session.ExpiresAt.Add(time.Nanosecond)))
		assert.True(t, session.ExpiredAt(session.ExpiresAt.Add(24*time.Hour)))
	})

	t.Run("expired session is not valid", func(t *testing.T) {
		session, err := auth.NewRefreshSession(accountID, "hash", time.Nanosecond)
		require.NoError(t, err)

		time.Sleep(time.Millisecond)
		assert.True(t, session.Expired())
		assert.False(t, session.Valid())
	})
}
