// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Principal is the authenticated identity attached after successful
// authorization. Derived output, never stored.
type Principal struct {
	AccountID ulid.ULID
	Email     string
	Active    bool
}

// dummyPasswordHash is verified when the email is unknown so unknown-email
// and wrong-password take the same time. This is NOT a real credential; no
// pre-hashed password ever matches it.
//
//nolint:gosec // G101: intentionally fake hash for timing equalization, not a credential.
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// GatewayConfig holds the Gateway's session parameters.
type GatewayConfig struct {
	RefreshTTL   time.Duration
	StoreTimeout time.Duration
}

// Gateway is the authentication facade. The HTTP layer and the
// persistent-connection handshake both call it through the same methods, so
// the two transports can never diverge in trust boundary.
type Gateway struct {
	accounts AccountRepository
	sessions SessionStore
	hasher   PasswordHasher
	tokens   *TokenManager
	rotator  *Rotator
	cfg      GatewayConfig
	metrics  *Metrics
}

// NewGateway creates a Gateway.
func NewGateway(
	accounts AccountRepository,
	sessions SessionStore,
	hasher PasswordHasher,
	tokens *TokenManager,
	rotator *Rotator,
	cfg GatewayConfig,
	metrics *Metrics,
) (*Gateway, error) {
	if accounts == nil {
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("account repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("token manager is required")
	}
	if rotator == nil {
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("rotator is required")
	}
	if cfg.RefreshTTL <= 0 || cfg.StoreTimeout <= 0 {
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("refresh TTL and store timeout must be positive")
	}
	return &Gateway{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		rotator:  rotator,
		cfg:      cfg,
		metrics:  metrics,
	}, nil
}

// Register creates an account and issues its first session. The password
// must satisfy the strength policy; a duplicate email fails with
// EMAIL_TAKEN.
func (g *Gateway) Register(ctx context.Context, email, password, displayName string) (*Principal, *TokenPair, error) {
	if result := ValidatePasswordStrength(password); !result.Valid {
		return nil, nil, WeakPasswordError(result.Violations)
	}

	hash, err := g.hasher.Hash(password)
	if err != nil {
		return nil, nil, internalError(err)
	}
	account, err := NewAccount(email, hash, displayName)
	if err != nil {
		return nil, nil, internalError(err)
	}

	if err := g.withTimeout(ctx, func(ctx context.Context) error {
		return g.accounts.Create(ctx, account)
	}); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, storeError(err)
	}

	pair, err := g.issueSession(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return principalFor(account), pair, nil
}

// Authenticate verifies credentials and issues a session. Unknown email and
// wrong password fail with the identical INVALID_CREDENTIALS value; a dummy
// verification keeps the two paths close in timing as well.
func (g *Gateway) Authenticate(ctx context.Context, email, password string) (*Principal, *TokenPair, error) {
	var account *Account
	err := g.withTimeout(ctx, func(ctx context.Context) error {
		var lookupErr error
		account, lookupErr = g.accounts.GetByEmail(ctx, NormalizeEmail(email))
		return lookupErr
	})

	targetHash := dummyPasswordHash
	exists := false
	switch {
	case err == nil:
		targetHash = account.PasswordHash
		exists = true
	case errors.Is(err, ErrNotFound):
		// Verify against the dummy hash below.
	default:
		g.metrics.loginObserved(OutcomeFailure)
		return nil, nil, storeError(err)
	}

	valid, verifyErr := g.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !exists {
			g.metrics.loginObserved(OutcomeFailure)
			return nil, nil, ErrInvalidCredentials
		}
		g.metrics.loginObserved(OutcomeFailure)
		return nil, nil, internalError(verifyErr)
	}

	if !exists || !valid {
		if exists {
			account.RecordFailure()
			g.bestEffortUpdate(ctx, account)
		}
		g.metrics.loginObserved(OutcomeFailure)
		return nil, nil, ErrInvalidCredentials
	}

	// Lockout and deactivation checks come after verification: they are
	// surfaced only for credentials already proven valid.
	if account.IsLocked() {
		g.metrics.loginObserved(OutcomeFailure)
		return nil, nil, ErrAccountLocked
	}
	if !account.Active {
		g.metrics.loginObserved(OutcomeFailure)
		return nil, nil, ErrAccountDeactivated
	}

	account.RecordSuccess()
	g.bestEffortUpdate(ctx, account)

	pair, err := g.issueSession(ctx, account)
	if err != nil {
		g.metrics.loginObserved(OutcomeFailure)
		return nil, nil, err
	}
	g.metrics.loginObserved(OutcomeSuccess)
	return principalFor(account), pair, nil
}

// Authorize verifies an access token and performs the live account-active
// check the stateless token cannot. Both transports use this exact path.
func (g *Gateway) Authorize(ctx context.Context, rawToken string) (*Principal, error) {
	if rawToken == "" {
		return nil, ErrTokenMissing
	}

	claims, err := g.tokens.VerifyAccess(rawToken)
	if err != nil {
		// Malformed, bad signature, and expired collapse into one value.
		return nil, &Error{Code: CodeTokenInvalid, Message: ErrTokenInvalid.Message, cause: err}
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, &Error{Code: CodeTokenInvalid, Message: ErrTokenInvalid.Message, cause: err}
	}

	var account *Account
	err = g.withTimeout(ctx, func(ctx context.Context) error {
		var lookupErr error
		account, lookupErr = g.accounts.GetByID(ctx, accountID)
		return lookupErr
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// A deleted account authorizes like a deactivated one.
			return nil, ErrAccountDeactivated
		}
		return nil, storeError(err)
	}
	if !account.Active {
		return nil, ErrAccountDeactivated
	}

	return principalFor(account), nil
}

// Refresh rotates a refresh token into a fresh token pair.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return g.rotator.Rotate(ctx, refreshToken)
}

// Logout revokes the session for the refresh token. It never fails
// observably: revoking an absent, expired, or already-revoked token succeeds
// from the caller's perspective, and store failures are only logged.
func (g *Gateway) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	err := g.withTimeout(ctx, func(ctx context.Context) error {
		return g.sessions.Revoke(ctx, HashRefreshToken(refreshToken))
	})
	if err != nil {
		slog.Warn("logout revocation failed", "error", err)
	}
}

// LogoutAll revokes every session owned by the account.
func (g *Gateway) LogoutAll(ctx context.Context, accountID ulid.ULID) error {
	err := g.withTimeout(ctx, func(ctx context.Context) error {
		return g.sessions.RevokeAllForAccount(ctx, accountID)
	})
	if err != nil {
		return storeError(err)
	}
	return nil
}

// ChangePassword verifies the current password, applies the strength policy
// to the new one, updates the hash, and revokes every existing session.
// Success implies all refresh tokens issued before the call are invalid.
func (g *Gateway) ChangePassword(ctx context.Context, accountID ulid.ULID, currentPassword, newPassword string) error {
	var account *Account
	err := g.withTimeout(ctx, func(ctx context.Context) error {
		var lookupErr error
		account, lookupErr = g.accounts.GetByID(ctx, accountID)
		return lookupErr
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return storeError(err)
	}

	valid, verifyErr := g.hasher.Verify(currentPassword, account.PasswordHash)
	if verifyErr != nil {
		return internalError(verifyErr)
	}
	if !valid {
		return ErrInvalidCredentials
	}
	if !account.Active {
		return ErrAccountDeactivated
	}

	if result := ValidatePasswordStrength(newPassword); !result.Valid {
		return WeakPasswordError(result.Violations)
	}

	hash, err := g.hasher.Hash(newPassword)
	if err != nil {
		return internalError(err)
	}
	if err := g.withTimeout(ctx, func(ctx context.Context) error {
		return g.accounts.UpdatePassword(ctx, accountID, hash)
	}); err != nil {
		return storeError(err)
	}

	// Mandatory side effect: a password change logs out everywhere. The
	// change does not report success until revocation committed.
	return g.LogoutAll(ctx, accountID)
}

// issueSession creates a refresh session and mints the matching access token.
func (g *Gateway) issueSession(ctx context.Context, account *Account) (*TokenPair, error) {
	refreshToken, tokenHash, err := GenerateRefreshToken()
	if err != nil {
		return nil, internalError(err)
	}
	session, err := NewRefreshSession(account.ID, tokenHash, g.cfg.RefreshTTL)
	if err != nil {
		return nil, internalError(err)
	}

	if err := g.withTimeout(ctx, func(ctx context.Context) error {
		return g.sessions.Create(ctx, session)
	}); err != nil {
		return nil, storeError(err)
	}

	access, err := g.tokens.IssueAccess(account.ID, account.Email)
	if err != nil {
		return nil, internalError(err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// bestEffortUpdate persists account bookkeeping (failure counters, login
// stamps) without affecting the caller's outcome.
func (g *Gateway) bestEffortUpdate(ctx context.Context, account *Account) {
	err := g.withTimeout(ctx, func(ctx context.Context) error {
		return g.accounts.Update(ctx, account)
	})
	if err != nil {
		slog.Warn("account bookkeeping update failed",
			"account_id", account.ID.String(),
			"error", err,
		)
	}
}

// withTimeout bounds a persistence call so no operation blocks unboundedly.
func (g *Gateway) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.StoreTimeout)
	defer cancel()
	return fn(ctx)
}

func principalFor(account *Account) *Principal {
	return &Principal{
		AccountID: account.ID,
		Email:     account.Email,
		Active:    account.Active,
	}
}
