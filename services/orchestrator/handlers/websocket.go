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
	"github.com/gorilla/websocket"

	"github.com/smartbot-labs/smartbot/services/orchestrator/conversation"
	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from the UI origin; CORS policy is enforced
	// at the edge, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatWebSocket handles GET /v1/chat/ws.
//
// # Description
//
// Mirrors the SSE stream over a WebSocket: the client sends one JSON
// ChatStreamRequest per turn and receives the same event sequence as JSON
// messages. The connection stays open across turns until the client closes
// it or a request fails to parse.
//
// Unlike SSE, validation failures after the upgrade are delivered as an
// in-stream error event, since the HTTP status line is already spent.
func (h *Handler) ChatWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req datatypes.ChatStreamRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket closed unexpectedly", "error", err)
			}
			return
		}
		if err := req.Validate(); err != nil {
			if writeErr := conn.WriteJSON(datatypes.NewStreamEvent(datatypes.EventError).
				WithError("validation", err.Error())); writeErr != nil {
				return
			}
			continue
		}

		turn := conversation.TurnRequest{
			SessionID:    req.SessionID,
			Message:      req.Message,
			UseKnowledge: req.UseKnowledge,
		}
		err := h.runTurn(c.Request.Context(), turn, observability.TransportWebSocket,
			func(event datatypes.StreamEvent) error {
				return conn.WriteJSON(event)
			})
		if err != nil {
			slog.Info("WebSocket turn ended with error",
				"session_id", req.SessionID, "error", err)
		}
	}
}
