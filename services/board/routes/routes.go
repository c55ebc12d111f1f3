// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dealdesk/boardroom/services/board/handlers"
	"github.com/dealdesk/boardroom/services/board/middleware"
	"github.com/dealdesk/boardroom/services/board/session"
	"github.com/dealdesk/boardroom/services/board/storage"
)

// SetupRoutes registers the board service's HTTP surface.
func SetupRoutes(router *gin.Engine, ctrl *session.Controller, store *storage.Store,
	authProvider middleware.AuthProvider) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(authProvider))
	{
		board := v1.Group("/board")
		{
			board.POST("/:dealId/start", handlers.StartBoard(ctrl))
			board.GET("/:dealId/ws", handlers.BoardWebSocket(ctrl))
			// Session administration routes
			board.GET("/sessions", handlers.ListBoardSessions(store))
			board.GET("/sessions/:sessionId", handlers.GetBoardSession(store))
		}
	}
}
