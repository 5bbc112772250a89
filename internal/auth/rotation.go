// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// TokenPair is the result of session issuance: a signed access token plus
// the opaque refresh token that replaces it when it expires.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Rotator is the refresh-token state machine. Rotation atomically retires
// the presented session and creates its successor, so at most one VALID link
// exists per chain at any instant.
type Rotator struct {
	sessions SessionStore
	accounts AccountRepository
	tokens   *TokenManager

	refreshTTL   time.Duration
	storeTimeout time.Duration
	metrics      *Metrics
}

// NewRotator creates a Rotator.
func NewRotator(
	sessions SessionStore,
	accounts AccountRepository,
	tokens *TokenManager,
	refreshTTL, storeTimeout time.Duration,
	metrics *Metrics,
) (*Rotator, error) {
	if sessions == nil {
		return nil, oops.Code("ROTATOR_CONFIG_INVALID").Errorf("session store is required")
	}
	if accounts == nil {
		return nil, oops.Code("ROTATOR_CONFIG_INVALID").Errorf("account repository is required")
	}
	if tokens == nil {
		return nil, oops.Code("ROTATOR_CONFIG_INVALID").Errorf("token manager is required")
	}
	if refreshTTL <= 0 || storeTimeout <= 0 {
		return nil, oops.Code("ROTATOR_CONFIG_INVALID").Errorf("refresh TTL and store timeout must be positive")
	}
	return &Rotator{
		sessions:     sessions,
		accounts:     accounts,
		tokens:       tokens,
		refreshTTL:   refreshTTL,
		storeTimeout: storeTimeout,
		metrics:      metrics,
	}, nil
}

// Rotate exchanges a valid refresh token for a fresh token pair.
//
// An absent, revoked, expired, or already-rotated token, and a deactivated
// owning account, all fail with the same SESSION_INVALID value: callers must
// not be able to tell replay from expiry. The commit point is the store's
// compare-and-swap; of any number of concurrent calls on the same token,
// exactly one proceeds to mint tokens. A failure before the commit leaves
// the old session exactly as it was.
func (r *Rotator) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrSessionInvalid
	}
	oldHash := HashRefreshToken(refreshToken)

	session, err := r.getSession(ctx, oldHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.metrics.rotationObserved(OutcomeInvalid)
			return nil, ErrSessionInvalid
		}
		r.metrics.rotationObserved(OutcomeFailure)
		return nil, storeError(err)
	}
	if !session.Valid() {
		r.metrics.rotationObserved(OutcomeInvalid)
		r.metrics.replayObserved()
		slog.Debug("refresh attempt on terminal session",
			"session_id", session.ID.String(),
			"account_id", session.AccountID.String(),
		)
		return nil, ErrSessionInvalid
	}

	account, err := r.getAccount(ctx, session)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.metrics.rotationObserved(OutcomeInvalid)
			return nil, ErrSessionInvalid
		}
		r.metrics.rotationObserved(OutcomeFailure)
		return nil, storeError(err)
	}
	if !account.Active {
		// Uniform with the replay case: no deactivation oracle.
		r.metrics.rotationObserved(OutcomeInvalid)
		return nil, ErrSessionInvalid
	}

	newToken, newHash, err := GenerateRefreshToken()
	if err != nil {
		r.metrics.rotationObserved(OutcomeFailure)
		return nil, internalError(err)
	}
	next, err := NewRefreshSession(account.ID, newHash, r.refreshTTL)
	if err != nil {
		r.metrics.rotationObserved(OutcomeFailure)
		return nil, internalError(err)
	}

	if err := r.rotateSession(ctx, oldHash, next); err != nil {
		if errors.Is(err, ErrRotationConflict) || errors.Is(err, ErrNotFound) {
			// Lost the CAS: a concurrent call already rotated or revoked
			// the old session.
			r.metrics.rotationObserved(OutcomeInvalid)
			r.metrics.replayObserved()
			return nil, ErrSessionInvalid
		}
		r.metrics.rotationObserved(OutcomeFailure)
		return nil, storeError(err)
	}

	access, err := r.tokens.IssueAccess(account.ID, account.Email)
	if err != nil {
		r.metrics.rotationObserved(OutcomeFailure)
		return nil, internalError(err)
	}

	r.metrics.rotationObserved(OutcomeSuccess)
	return &TokenPair{AccessToken: access, RefreshToken: newToken}, nil
}

func (r *Rotator) getSession(ctx context.Context, tokenHash string) (*RefreshSession, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.sessions.GetByTokenHash(ctx, tokenHash)
}

func (r *Rotator) getAccount(ctx context.Context, session *RefreshSession) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.accounts.GetByID(ctx, session.AccountID)
}

func (r *Rotator) rotateSession(ctx context.Context, oldHash string, next *RefreshSession) error {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.sessions.Rotate(ctx, oldHash, next)
}
