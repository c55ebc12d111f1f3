// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for user-provided
// identifiers. Deal and session ids end up embedded in storage keys and
// log lines, so they are validated before use instead of trusted.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// dealIDPattern matches deal identifiers: lowercase alphanumerics with
// hyphens or underscores, starting alphanumeric. Max 64 characters keeps
// storage keys and log lines bounded.
var dealIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)

// ValidateDealID validates a deal identifier before it is used in a
// storage key.
//
// Valid deal ids:
//   - 1-64 characters
//   - Lowercase letters a-z and digits 0-9
//   - Hyphens and underscores after the first character
//
// Slashes are rejected outright; the store namespaces keys with "/".
func ValidateDealID(dealID string) error {
	if dealID == "" {
		return fmt.Errorf("deal id cannot be empty")
	}
	if !dealIDPattern.MatchString(dealID) {
		return fmt.Errorf("invalid deal id %q (must be 1-64 lowercase alphanumeric chars, hyphens, or underscores)", dealID)
	}
	return nil
}

// SanitizeDealID normalizes and validates a deal identifier. Returns the
// lowercase id if valid.
func SanitizeDealID(dealID string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(dealID))
	if err := ValidateDealID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// sessionIDPattern matches the UUID form the controller assigns.
var sessionIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidateSessionID validates a session identifier before it is used in a
// storage lookup.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if !sessionIDPattern.MatchString(strings.ToLower(sessionID)) {
		return fmt.Errorf("invalid session id %q", sessionID)
	}
	return nil
}
