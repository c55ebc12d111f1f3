// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP surface of the board service. The
// orchestrator itself is transport-agnostic: it writes to an ordered
// progress feed, and these handlers adapt that feed to SSE or websocket.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealdesk/boardroom/pkg/validation"
	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/board/middleware"
	"github.com/dealdesk/boardroom/services/board/session"
)

// heartbeatInterval is how often the SSE stream sends keepalive comments
// while the board is thinking. Model calls routinely exceed the 60s idle
// timeouts of common load balancers.
const heartbeatInterval = 15 * time.Second

// StartBoard runs a full board deliberation for a deal and streams progress
// events until the terminal event.
//
// POST /v1/board/:dealId/start
//
// Admission happens before the stream opens, so rejections map onto real
// status codes: 402 for an empty credit balance, 429 for the concurrency or
// rolling-period cap, 404 for an unknown deal. Once streaming begins the
// caller always receives either a verdict_reached or a single error event —
// never a silently truncated stream.
func StartBoard(ctrl *session.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		dealID, err := validation.SanitizeDealID(c.Param("dealId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_deal_id", "detail": err.Error()})
			return
		}
		userID := middleware.UserID(c)

		run, err := ctrl.StartBoard(c.Request.Context(), dealID, userID)
		if err != nil {
			writeStartError(c, dealID, err)
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			slog.Error("SSE unsupported by response writer", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming_unsupported"})
			return
		}

		// Client disconnect cancels this context; the controller still
		// performs the compensating refund before winding down.
		ctx := c.Request.Context()
		go func() {
			if _, err := run.Execute(ctx); err != nil {
				slog.Warn("Board run ended in failure", "sessionId", run.Session().Id, "error", err)
			}
		}()

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-run.Events():
				if !ok {
					return
				}
				if err := writer.WriteProgressEvent(ev); err != nil {
					slog.Debug("Client dropped SSE stream", "sessionId", run.Session().Id, "error", err)
					// Keep draining so the run can finish its bookkeeping.
					for range run.Events() {
					}
					return
				}
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					slog.Debug("Keepalive write failed", "sessionId", run.Session().Id, "error", err)
				}
			case <-ctx.Done():
				// The run sees the same cancellation; drain its remaining
				// events (terminal error included) and exit.
				for range run.Events() {
				}
				return
			}
		}
	}
}

// writeStartError maps admission and lookup failures onto the error surface.
func writeStartError(c *gin.Context, dealID string, err error) {
	switch {
	case errors.Is(err, datatypes.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":  "insufficient_credits",
			"detail": err.Error(),
		})
	case errors.Is(err, datatypes.ErrSessionLimit):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":  "session_limit",
			"detail": err.Error(),
		})
	case errors.Is(err, datatypes.ErrDealNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "deal_not_found",
			"detail": "no analysis context for deal " + dealID,
		})
	default:
		slog.Error("Board start failed", "dealId", dealID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "board_start_failed",
		})
	}
}
