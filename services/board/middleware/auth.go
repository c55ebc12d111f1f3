// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the board service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it with the configured AuthProvider, and stores the
// resulting user identity in the Gin context for downstream handlers.
// Admission control (the credit gate) keys off this identity.
//
// # Open Source Behavior
//
// With NopAuthProvider (the default), every request authenticates as
// "local-user", which lets a single-tenant deployment run without any
// identity infrastructure. Hosted deployments plug in a real provider.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// userIDKey is the Gin context key for the authenticated user id. A typed
// constant prevents collisions with other context values.
const userIDKey = "boardroom_user_id"

// LocalUserID is the identity assigned by NopAuthProvider.
const LocalUserID = "local-user"

// ErrInvalidToken is returned by providers for tokens that fail validation.
var ErrInvalidToken = errors.New("invalid bearer token")

// AuthProvider validates a bearer token and resolves the user identity.
type AuthProvider interface {
	Validate(ctx context.Context, token string) (userID string, err error)
}

// NopAuthProvider accepts every request as LocalUserID, token or not.
type NopAuthProvider struct{}

func (NopAuthProvider) Validate(ctx context.Context, token string) (string, error) {
	return LocalUserID, nil
}

// AuthMiddleware resolves the caller's identity and aborts with 401 when
// the provider rejects the token.
func AuthMiddleware(provider AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		header := c.GetHeader("Authorization")
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = strings.TrimSpace(after)
		}

		userID, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id stored by AuthMiddleware,
// falling back to LocalUserID when the middleware did not run (tests).
func UserID(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return LocalUserID
}
