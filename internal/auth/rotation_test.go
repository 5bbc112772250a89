// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/internal/auth"
	"github.com/driftline/driftline/internal/auth/memory"
)

type rotatorFixture struct {
	rotator  *auth.Rotator
	accounts *memory.AccountRepository
	sessions *memory.SessionStore
	account  *auth.Account
}

func newRotatorFixture(t *testing.T) *rotatorFixture {
	t.Helper()

	accounts := memory.NewAccountRepository()
	sessions := memory.NewSessionStore()
	tokens := newTestTokenManager(t, 15*time.Minute)

	rotator, err := auth.NewRotator(sessions, accounts, tokens, time.Hour, time.Second, nil)
	require.NoError(t, err)

	account, err := auth.NewAccount("user@example.com", "hash", "User")
	require.NoError(t, err)
	require.NoError(t, accounts.Create(context.Background(), account))

	return &rotatorFixture{
		rotator:  rotator,
		accounts: accounts,
		sessions: sessions,
		account:  account,
	}
}

// issueRefresh seeds a session and returns the plaintext refresh token.
func (f *rotatorFixture) issueRefresh(t *testing.T, ttl time.Duration) string {
	t.Helper()

	token, hash, err := auth.GenerateRefreshToken()
	require.NoError(t, err)
	session, err := auth.NewRefreshSession(f.account.ID, hash, ttl)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Create(context.Background(), session))
	return token
}

func TestRotate(t *testing.T) {
	ctx := context.Background()

	t.Run("exchanges valid token for a fresh pair", func(t *testing.T) {
		f := newRotatorFixture(t)
		token := f.issueRefresh(t, time.Hour)

		pair, err := f.rotator.Rotate(ctx, token)
		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.NotEqual(t, token, pair.RefreshToken)
	})

	t.Run("chain walks forward and old links die", func(t *testing.T) {
		f := newRotatorFixture(t)
		t0 := f.issueRefresh(t, time.Hour)

		pair1, err := f.rotator.Rotate(ctx, t0)
		require.NoError(t, err)

		// t0 is terminal: replaying it fails.
		_, err = f.rotator.Rotate(ctx, t0)
		assert.ErrorIs(t, err, auth.ErrSessionInvalid)

		// The successor is unaffected by the replay attempt.
		pair2, err := f.rotator.Rotate(ctx, pair1.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, pair1.RefreshToken, pair2.RefreshToken)
	})

	t.Run("empty token fails", func(t *testing.T) {
		f := newRotatorFixture(t)
		_, err := f.rotator.Rotate(ctx, "")
		assert.ErrorIs(t, err, auth.ErrSessionInvalid)
	})

	t.Run("unknown token fails", func(t *testing.T) {
		f := newRotatorFixture(t)
		unknown, _, err := auth.GenerateRefreshToken()
		require.NoError(t, err)

		_, err = f.rotator.Rotate(ctx, unknown)
		assert.ErrorIs(t, err, auth.ErrSessionInvalid)
	})

	t.Run("revoked session fails", func(t *testing.T) {
		f := newRotatorFixture(t)
		token := f.issueRefresh(t, time.Hour)
		require.NoError(t, f.sessions.Revoke(ctx, auth.HashRefreshToken(token)))

		_, err := f.rotator.Rotate(ctx, token)
		assert.ErrorIs(t, err, auth.ErrSessionInvalid)
	})

	t.Run("expired session fails", func(t *testing.T) {
		f := newRotatorFixture(t)
		token := f.issueRefresh(t, time.Nanosecond)
		time.Sleep(time.Millisecond)

		_, err := f.rotator.Rotate(ctx, token)
		assert.ErrorIs(t, err, auth.ErrSessionInvalid)
	})

	t.Run("deactivated account fails like a replay", func(t *testing.T) {
		f := newRotatorFixture(t)
		token := f.issueRefresh(t, time.Hour)

		f.account.Active = false
		require.NoError(t, f.accounts.Update(ctx, f.account))

		_, err := f.rotator.Rotate(ctx, token)
		assert.ErrorIs(t, err, auth.ErrSessionInvalid)
	})

	t.Run("failure outcomes are indistinguishable", func(t *testing.T) {
		f := newRotatorFixture(t)

		unknown, _, err := auth.GenerateRefreshToken()
		require.NoError(t, err)
		_, errUnknown := f.rotator.Rotate(ctx, unknown)

		revoked := f.issueRefresh(t, time.Hour)
		require.NoError(t, f.sessions.Revoke(ctx, auth.HashRefreshToken(revoked)))
		_, errRevoked := f.rotator.Rotate(ctx, revoked)

		assert.Equal(t, errUnknown, errRevoked)
		assert.Equal(t, errUnknown.Error(), errRevoked.Error())
	})
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	f := newRotatorFixture(t)
	token := f.issueRefresh(t, time.Hour)
	ctx := context.Background()

	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []*auth.TokenPair
		failures int
	)

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pair, err := f.rotator.Rotate(ctx, token)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, pair)
				return
			}
			assert.ErrorIs(t, err, auth.ErrSessionInvalid)
			failures++
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1, "exactly one concurrent rotation must win")
	assert.Equal(t, callers-1, failures)

	// The winner's successor is the single live link in the chain.
	_, err := f.rotator.Rotate(ctx, winners[0].RefreshToken)
	assert.NoError(t, err)
}
