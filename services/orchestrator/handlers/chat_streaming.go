// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartbot-labs/smartbot/services/orchestrator/conversation"
	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/observability"
)

// ChatStream handles POST /v1/chat/stream.
//
// # Description
//
// Runs one full conversation turn and streams its events back as
// Server-Sent Events. The response carries the engine's event sequence
// verbatim: content_delta, tool_call/tool_result pairs, then one terminal
// done or error event.
//
// Validation failures are returned as a plain 400 JSON body before any SSE
// bytes are written. Once streaming has begun, failures surface as an
// in-stream error event, not an HTTP status.
func (h *Handler) ChatStream(c *gin.Context) {
	var req datatypes.ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	turn := conversation.TurnRequest{
		SessionID:    req.SessionID,
		Message:      req.Message,
		UseKnowledge: req.UseKnowledge,
	}

	// A failed SSE write means the client went away; the engine aborts the
	// turn on the first emit error and persists nothing.
	err = h.runTurn(c.Request.Context(), turn, observability.TransportSSE, writer.WriteEvent)
	if err != nil {
		slog.Info("Chat turn ended with error",
			"session_id", req.SessionID, "error", err)
	}
}
