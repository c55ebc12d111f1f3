// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dealdesk/boardroom/pkg/validation"
	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/board/middleware"
	"github.com/dealdesk/boardroom/services/board/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsError is the single error frame sent when admission fails over
// websocket, mirroring the SSE error surface.
type wsError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// BoardWebSocket streams the same progress feed as StartBoard over a
// websocket connection, for clients that cannot consume SSE. One message
// per ProgressEvent, JSON-encoded; the connection closes after the terminal
// event.
//
// GET /v1/board/:dealId/ws
func BoardWebSocket(ctrl *session.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		dealID, err := validation.SanitizeDealID(c.Param("dealId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_deal_id", "detail": err.Error()})
			return
		}
		userID := middleware.UserID(c)

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		// The request context dies with the HTTP handshake; tie the run to
		// the socket instead.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		run, err := ctrl.StartBoard(ctx, dealID, userID)
		if err != nil {
			_ = ws.WriteJSON(wsError{Error: startErrorCode(err), Detail: err.Error()})
			return
		}

		// A read pump only to detect the peer going away.
		go func() {
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		go func() {
			if _, err := run.Execute(ctx); err != nil {
				slog.Warn("Board run ended in failure", "sessionId", run.Session().Id, "error", err)
			}
		}()

		for ev := range run.Events() {
			if err := ws.WriteJSON(ev); err != nil {
				slog.Debug("Client dropped websocket stream", "sessionId", run.Session().Id, "error", err)
				cancel()
				for range run.Events() {
				}
				return
			}
		}
	}
}

func startErrorCode(err error) string {
	switch {
	case errors.Is(err, datatypes.ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, datatypes.ErrSessionLimit):
		return "session_limit"
	case errors.Is(err, datatypes.ErrDealNotFound):
		return "deal_not_found"
	}
	return "board_start_failed"
}
