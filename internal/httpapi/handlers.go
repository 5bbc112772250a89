// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/driftline/driftline/internal/auth"
)

// Handler exposes the Gateway over HTTP. Handlers stay thin: decode,
// delegate, encode. All policy lives in the auth package.
type Handler struct {
	gateway *auth.Gateway
}

// NewHandler creates a Handler.
func NewHandler(gateway *auth.Gateway) *Handler {
	return &Handler{gateway: gateway}
}

// Routes mounts the auth endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/register", h.handleRegister)
	mux.HandleFunc("POST /v1/auth/login", h.handleLogin)
	mux.HandleFunc("POST /v1/auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /v1/auth/logout", h.handleLogout)

	protected := RequireAuth(h.gateway)
	mux.Handle("GET /v1/auth/me", protected(http.HandlerFunc(h.handleMe)))
	mux.Handle("POST /v1/auth/logout_all", protected(http.HandlerFunc(h.handleLogoutAll)))
	mux.Handle("POST /v1/auth/password", protected(http.HandlerFunc(h.handleChangePassword)))
	return mux
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type principalBody struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

type sessionResponse struct {
	Account      principalBody `json:"account"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	principal, pair, err := h.gateway.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		Account:      principalBody{AccountID: principal.AccountID.String(), Email: principal.Email},
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	principal, pair, err := h.gateway.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Account:      principalBody{AccountID: principal.AccountID.String(), Email: principal.Email},
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := h.gateway.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// handleLogout always answers 204: logout must appear to succeed
// unconditionally.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	// A malformed body is treated like an absent token.
	_ = json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck // logout never fails observably
	h.gateway.Logout(r.Context(), req.RefreshToken)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		WriteError(w, auth.ErrTokenMissing)
		return
	}
	writeJSON(w, http.StatusOK, principalBody{
		AccountID: principal.AccountID.String(),
		Email:     principal.Email,
	})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		WriteError(w, auth.ErrTokenMissing)
		return
	}
	if err := h.gateway.LogoutAll(r.Context(), principal.AccountID); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		WriteError(w, auth.ErrTokenMissing)
		return
	}
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.gateway.ChangePassword(r.Context(), principal.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body, answering 400 on malformed input.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		//nolint:errcheck // best-effort error body
		json.NewEncoder(w).Encode(errorBody{Code: "BAD_REQUEST", Message: "request body is not valid JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
