// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package auth implements the credential and session-lifecycle subsystem:
// password hashing and strength policy, access-token issuance and
// verification, refresh-token rotation, and the Gateway facade shared by
// the HTTP layer and the persistent-connection handshake.
//
// Access tokens are short-lived signed JWTs verified statelessly.
// Refresh tokens are long-lived opaque secrets stored hashed; a single
// store mutation revokes them instantly. Rotation retires the old token
// and creates its successor as one atomic commit, so replaying a rotated
// token always fails.
package auth
