// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/session"
)

// ListSessions handles GET /v1/sessions. Identifiers come back in session
// creation order.
func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.sessions.List()})
}

// SessionHistory handles GET /v1/sessions/:sessionId/history.
//
// Returns the full transcript in append order, or 404 for an identifier
// that was never created or has been deleted.
func (h *Handler) SessionHistory(c *gin.Context) {
	sessionID := c.Param("sessionId")

	messages, err := h.sessions.History(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, datatypes.HistoryResponse{
		SessionID: sessionID,
		Messages:  messages,
	})
}

// DeleteSession handles DELETE /v1/sessions/:sessionId.
//
// Removes all session state. A repeated delete returns 404: the first call
// removed the identifier, so the second sees an unknown session.
func (h *Handler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.sessions.Delete(sessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "deleted"})
}
