// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDealID(t *testing.T) {
	valid := []string{"demo-deal", "acme_2025", "d", "deal-1", strings.Repeat("a", 64)}
	for _, id := range valid {
		assert.NoError(t, ValidateDealID(id), "id %q", id)
	}

	invalid := []string{
		"",
		"Demo-Deal",
		"-leading-hyphen",
		"has space",
		"path/traversal",
		"board/session/evil",
		"dots.not.allowed",
		strings.Repeat("a", 65),
	}
	for _, id := range invalid {
		assert.Error(t, ValidateDealID(id), "id %q", id)
	}
}

func TestSanitizeDealID(t *testing.T) {
	id, err := SanitizeDealID("  Demo-Deal \n")
	require.NoError(t, err)
	assert.Equal(t, "demo-deal", id)

	_, err = SanitizeDealID("../escape")
	assert.Error(t, err)
}

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("7b9e6a52-08f1-4e6e-90d2-1f4a33c0bb8d"))
	assert.NoError(t, ValidateSessionID("7B9E6A52-08F1-4E6E-90D2-1F4A33C0BB8D"))

	for _, id := range []string{"", "not-a-uuid", "board/session/x", "7b9e6a52"} {
		assert.Error(t, ValidateSessionID(id), "id %q", id)
	}
}
