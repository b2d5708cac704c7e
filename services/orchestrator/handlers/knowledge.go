// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/knowledge"
)

// maxUploadBytes bounds a single knowledge document upload.
const maxUploadBytes = 4 << 20 // 4 MiB

// UploadKnowledge handles POST /v1/knowledge/upload.
//
// # Description
//
// Accepts one multipart file field named "file", ingests it into the
// knowledge index, and reports the resulting chunk count. Only plain-text
// formats (.txt, .md) are supported.
//
// Status codes: 409 for a filename already indexed, 422 for unsupported
// formats and documents with no extractable content, 400 for a malformed
// multipart body.
func (h *Handler) UploadKnowledge(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing multipart field \"file\""})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document exceeds upload size limit"})
		return
	}

	filename := filepath.Base(fileHeader.Filename)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "unsupported file format, expected .txt or .md",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}

	chunks, err := h.index.Ingest(filename, string(content))
	if err != nil {
		switch {
		case errors.Is(err, knowledge.ErrDuplicateDocument):
			c.JSON(http.StatusConflict, gin.H{"error": "document already indexed"})
		case errors.Is(err, knowledge.ErrEmptyDocument):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "document has no extractable content"})
		default:
			slog.Error("Knowledge ingest failed", "filename", filename, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to index document"})
		}
		return
	}

	c.JSON(http.StatusOK, datatypes.UploadResponse{
		Filename: filename,
		Chunks:   chunks,
		Status:   "indexed",
	})
}

// KnowledgeStats handles GET /v1/knowledge/stats.
func (h *Handler) KnowledgeStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.index.Stats())
}
