// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"net/http"
	"strings"
)

// Token transport locations, in priority order.
const (
	// TokenQueryParam is the query parameter checked after the header.
	TokenQueryParam = "access_token"

	// TokenCookieName is the cookie checked last.
	TokenCookieName = "access_token"

	bearerPrefix = "Bearer "
)

// TokenFromRequest extracts the access token from a request: Authorization
// bearer header first, then the query parameter, then the cookie. Returns ""
// when no token is present.
//
// The HTTP middleware and the persistent-connection handshake both extract
// through this function; the two transports share one trust boundary.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, bearerPrefix); ok {
			return strings.TrimSpace(token)
		}
	}

	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token
	}

	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return ""
}
