// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Refresh token configuration.
const (
	// RefreshTokenBytes of entropy per refresh token; encodes to 128 hex chars.
	RefreshTokenBytes = 64

	// minSigningSecretLen is the minimum accepted HS256 secret length.
	minSigningSecretLen = 32
)

// Narrow verification failures. The Gateway collapses all three into the
// uniform TOKEN_INVALID public failure.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
)

// AccessClaims are the claims carried by an access token. They are
// ephemeral: verified per call, never persisted.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim.
func (c *AccessClaims) AccountID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID_SUBJECT").
			With("subject", c.Subject).
			Wrap(err)
	}
	return id, nil
}

// TokenConfig holds the signing material and claim constraints. It is built
// once at startup and passed by reference; never mutated afterwards.
type TokenConfig struct {
	SigningSecret []byte
	AccessTTL     time.Duration
	Issuer        string
	Audience      string
}

// TokenManager issues and verifies access tokens and generates opaque
// refresh tokens. Access tokens are self-verifying for low-latency per-call
// checks; refresh tokens carry no claims so a single store mutation revokes
// them instantly.
type TokenManager struct {
	cfg TokenConfig
}

// NewTokenManager validates the configuration and creates a TokenManager.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if len(cfg.SigningSecret) < minSigningSecretLen {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			Errorf("signing secret must be at least %d bytes", minSigningSecretLen)
	}
	if cfg.AccessTTL <= 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("access token TTL must be positive")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("issuer and audience are required")
	}
	return &TokenManager{cfg: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *TokenManager) AccessTTL() time.Duration {
	return m.cfg.AccessTTL
}

// IssueAccess mints a signed access token for the account. Expiry is always
// issuance time plus the configured TTL; tokens are replaced via rotation,
// never extended in place.
func (m *TokenManager) IssueAccess(accountID ulid.ULID, email string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.SigningSecret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// VerifyAccess checks signature, issuer, audience, and expiry with zero
// clock-skew grace, returning the claims on success. Verification is
// stateless: account-active status is the Gateway's responsibility, because
// claims alone cannot reflect deactivation after issuance.
func (m *TokenManager) VerifyAccess(token string) (*AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithAudience(m.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	parsed, err := parser.ParseWithClaims(token, &AccessClaims{}, func(_ *jwt.Token) (any, error) {
		return m.cfg.SigningSecret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// GenerateRefreshToken creates an opaque refresh token and its storage hash.
// The plaintext goes to the client; only the hash is persisted.
func GenerateRefreshToken() (token, hash string, err error) {
	buf := make([]byte, RefreshTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(buf)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken computes the SHA-256 hex digest used to store and look up
// refresh tokens.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
