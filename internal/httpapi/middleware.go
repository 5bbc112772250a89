// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package httpapi adapts the auth Gateway to HTTP. The same
// extract-then-authorize path serves ordinary requests and the
// persistent-connection handshake, so the two transports share one trust
// boundary.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/driftline/driftline/internal/auth"
)

// contextKey is a private type for context values.
type contextKey struct{}

var principalKey contextKey

// PrincipalFromContext returns the Principal attached by RequireAuth.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(*auth.Principal)
	return principal, ok
}

// Authorizer is the slice of the Gateway the middleware needs.
type Authorizer interface {
	Authorize(ctx context.Context, rawToken string) (*auth.Principal, error)
}

// AuthorizeRequest extracts the token from the request and authorizes it.
// Both the HTTP middleware and the connection handshake call this; nothing
// else may extract or validate tokens.
func AuthorizeRequest(ctx context.Context, authorizer Authorizer, r *http.Request) (*auth.Principal, error) {
	return authorizer.Authorize(ctx, auth.TokenFromRequest(r))
}

// RequireAuth wraps a handler, rejecting requests that do not authorize and
// attaching the Principal to the request context otherwise.
func RequireAuth(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := AuthorizeRequest(r.Context(), authorizer, r)
			if err != nil {
				WriteError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// errorBody is the wire shape of a failure: a stable machine-readable code
// and a generic message. Internal causes never leave the boundary.
type errorBody struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Violations []string `json:"violations,omitempty"`
}

// WriteError renders a failure as JSON with its mapped status.
func WriteError(w http.ResponseWriter, err error) {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		authErr = auth.ErrInternal
		slog.Error("unclassified error reached the HTTP boundary", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(authErr.HTTPStatus())
	if encodeErr := json.NewEncoder(w).Encode(errorBody{
		Code:       string(authErr.Code),
		Message:    authErr.Message,
		Violations: authErr.Violations,
	}); encodeErr != nil {
		slog.Debug("failed to write error response", "error", encodeErr)
	}
}
