// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartbot-labs/smartbot/services/orchestrator/handlers"
	"github.com/smartbot-labs/smartbot/services/orchestrator/middleware"
)

// SetupRoutes registers the full HTTP surface on router.
//
// The rate limiter guards only the streaming chat endpoints; session,
// knowledge, and listing endpoints are cheap reads and stay unthrottled.
func SetupRoutes(router *gin.Engine, h *handlers.Handler, limiter *middleware.RateLimiter) {
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		chat := v1.Group("/chat")
		if limiter != nil {
			chat.Use(middleware.RateLimitMiddleware(limiter))
		}
		{
			chat.POST("/stream", h.ChatStream)
			chat.GET("/ws", h.ChatWebSocket)
		}

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", h.ListSessions)
			sessions.GET("/:sessionId/history", h.SessionHistory)
			sessions.DELETE("/:sessionId", h.DeleteSession)
		}

		// Knowledge base routes
		knowledge := v1.Group("/knowledge")
		{
			knowledge.POST("/upload", h.UploadKnowledge)
			knowledge.GET("/stats", h.KnowledgeStats)
		}

		v1.GET("/tools", h.ListTools)
		v1.GET("/prompts", h.ListPrompts)
	}
}
