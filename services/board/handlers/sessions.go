// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealdesk/boardroom/pkg/validation"
	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/board/storage"
)

// sessionSummary is the list view of a stored deliberation: the session
// metadata and headline verdict, without the full event log.
type sessionSummary struct {
	Session        datatypes.Session        `json:"session"`
	FinalChoice    datatypes.VoteChoice     `json:"final_choice"`
	ConsensusLevel datatypes.ConsensusLevel `json:"consensus_level"`
}

// ListBoardSessions returns every stored completed deliberation.
//
// GET /v1/board/sessions
func ListBoardSessions(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.Info("Received request to list board sessions")
		records, err := store.ListSessions(c.Request.Context())
		if err != nil {
			slog.Error("failed to list board sessions", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list board sessions"})
			return
		}
		summaries := make([]sessionSummary, 0, len(records))
		for _, record := range records {
			summaries = append(summaries, sessionSummary{
				Session:        record.Session,
				FinalChoice:    record.Verdict.FinalChoice,
				ConsensusLevel: record.Verdict.ConsensusLevel,
			})
		}
		c.JSON(http.StatusOK, gin.H{"sessions": summaries})
	}
}

// GetBoardSession returns one stored deliberation in full: session,
// verdict, and the ordered event log for replay.
//
// GET /v1/board/sessions/:sessionId
func GetBoardSession(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		if err := validation.ValidateSessionID(sessionID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		record, err := store.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, datatypes.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("failed to load board session", "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load board session"})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}
