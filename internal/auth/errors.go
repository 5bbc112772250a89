// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinels used between repositories and services. They never cross the
// public boundary; the Gateway and Rotator collapse them into *Error values.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an account with the email already exists.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrRotationConflict is returned when the rotation compare-and-swap loses:
	// the old session was already rotated, revoked, or expired.
	ErrRotationConflict = errors.New("rotation conflict")

	// ErrUnavailable is returned when the backing store cannot be reached
	// or a persistence call times out.
	ErrUnavailable = errors.New("store unavailable")
)

// Code identifies a public failure. The set is closed: every failure that
// leaves the subsystem carries exactly one of these codes, and each code maps
// to exactly one HTTP status. Several internal causes deliberately share a
// code to suppress enumeration and replay oracles.
type Code string

// Public failure codes.
const (
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeSessionInvalid     Code = "SESSION_INVALID"
	CodeTokenMissing       Code = "TOKEN_MISSING"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeAccountDeactivated Code = "ACCOUNT_DEACTIVATED"
	CodeAccountLocked      Code = "ACCOUNT_LOCKED"
	CodeWeakPassword       Code = "WEAK_PASSWORD"
	CodeEmailTaken         Code = "EMAIL_TAKEN"
	CodeStoreUnavailable   Code = "STORE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL"
)

// Error is the closed public failure type. Message text is stable and
// generic; internal causes stay wrapped and never leave the boundary.
type Error struct {
	Code       Code
	Message    string
	Violations []string
	cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the internal cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on code identity, so errors.Is(err, ErrSessionInvalid) holds for
// any *Error carrying CodeSessionInvalid regardless of cause or violations.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HTTPStatus maps the code to its response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidCredentials, CodeSessionInvalid, CodeTokenMissing, CodeTokenInvalid:
		return http.StatusUnauthorized
	case CodeAccountDeactivated:
		return http.StatusForbidden
	case CodeAccountLocked:
		return http.StatusLocked
	case CodeWeakPassword:
		return http.StatusBadRequest
	case CodeEmailTaken:
		return http.StatusConflict
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Public failure values. Identical message text for every cause sharing a
// code is part of the contract: unknown email and wrong password, or a
// missing, expired, revoked, and replayed refresh token, must be
// indistinguishable to callers.
var (
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	ErrSessionInvalid     = &Error{Code: CodeSessionInvalid, Message: "session is invalid"}
	ErrTokenMissing       = &Error{Code: CodeTokenMissing, Message: "no access token provided"}
	ErrTokenInvalid       = &Error{Code: CodeTokenInvalid, Message: "access token is invalid or expired"}
	ErrAccountDeactivated = &Error{Code: CodeAccountDeactivated, Message: "account is deactivated"}
	ErrAccountLocked      = &Error{Code: CodeAccountLocked, Message: "account is temporarily locked"}
	ErrEmailTaken         = &Error{Code: CodeEmailTaken, Message: "email is already registered"}
	ErrStoreUnavailable   = &Error{Code: CodeStoreUnavailable, Message: "service temporarily unavailable"}
	ErrInternal           = &Error{Code: CodeInternal, Message: "internal error"}
)

// WeakPasswordError builds a WEAK_PASSWORD failure carrying the full
// violation list.
func WeakPasswordError(violations []string) *Error {
	return &Error{
		Code:       CodeWeakPassword,
		Message:    "password does not meet strength requirements",
		Violations: violations,
	}
}

// internalError wraps a primitive failure without leaking its text.
func internalError(cause error) *Error {
	return &Error{Code: CodeInternal, Message: ErrInternal.Message, cause: cause}
}

// storeError collapses persistence failures: timeouts and connectivity
// problems become retryable STORE_UNAVAILABLE, everything else INTERNAL.
func storeError(cause error) *Error {
	if errors.Is(cause, ErrUnavailable) || errors.Is(cause, context.DeadlineExceeded) {
		return &Error{Code: CodeStoreUnavailable, Message: ErrStoreUnavailable.Message, cause: cause}
	}
	return internalError(cause)
}
