// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"fmt"
	"strings"
	"unicode"
)

// Password length constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// weakSubstrings are rejected wherever they appear in a password,
// case-insensitively: common words, numeric runs, and keyboard runs.
var weakSubstrings = []string{
	"password",
	"admin",
	"letmein",
	"welcome",
	"1234",
	"4321",
	"0000",
	"1111",
	"qwerty",
	"qwertz",
	"azerty",
	"asdfgh",
	"zxcvbn",
}

// StrengthResult reports a strength evaluation. Violations lists every
// failed rule, not just the first.
type StrengthResult struct {
	Valid      bool
	Violations []string
}

// ValidatePasswordStrength evaluates all strength rules against the password
// and returns every violation.
//
// Rules: length within [MinPasswordLength, MaxPasswordLength]; at least one
// lowercase letter, uppercase letter, digit, and symbol; no character
// repeated three or more times in a row; no deny-listed weak substring.
func ValidatePasswordStrength(password string) StrengthResult {
	var violations []string

	runes := []rune(password)
	if len(runes) < MinPasswordLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if len(runes) > MaxPasswordLength {
		violations = append(violations, fmt.Sprintf("must be at most %d characters", MaxPasswordLength))
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range runes {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasLower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if !hasUpper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if !hasDigit {
		violations = append(violations, "must contain a digit")
	}
	if !hasSymbol {
		violations = append(violations, "must contain a symbol")
	}

	if hasRepeatRun(runes, 3) {
		violations = append(violations, "must not repeat a character 3 or more times in a row")
	}

	lowered := strings.ToLower(password)
	for _, weak := range weakSubstrings {
		if strings.Contains(lowered, weak) {
			violations = append(violations, fmt.Sprintf("must not contain %q", weak))
		}
	}

	return StrengthResult{Valid: len(violations) == 0, Violations: violations}
}

// hasRepeatRun reports whether any character repeats at least n times
// consecutively.
func hasRepeatRun(runes []rune, n int) bool {
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
