// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListTools handles GET /v1/tools, returning the registered tool
// descriptors in registration order.
func (h *Handler) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.registry.List()})
}

// ListPrompts handles GET /v1/prompts, returning the active prompt version
// and the versions available on disk.
func (h *Handler) ListPrompts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"current":  h.prompts.CurrentVersion(),
		"versions": h.prompts.ListVersions(),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "smartbot-orchestrator"})
}
