// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/knowledge"
)

func uploadDocument(t *testing.T, stack *testStack, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/knowledge/upload", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	stack.router.ServeHTTP(rec, req)
	return rec
}

func TestUploadKnowledge(t *testing.T) {
	t.Run("indexes a text document", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "x"})
		rec := uploadDocument(t, stack, "faq.txt", "Refunds are issued within 30 days.")
		require.Equal(t, http.StatusOK, rec.Code)

		var payload datatypes.UploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, "faq.txt", payload.Filename)
		assert.Equal(t, 1, payload.Chunks)
		assert.Equal(t, "indexed", payload.Status)
	})

	t.Run("duplicate filename is 409", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "x"})
		require.Equal(t, http.StatusOK,
			uploadDocument(t, stack, "faq.txt", "First version.").Code)
		assert.Equal(t, http.StatusConflict,
			uploadDocument(t, stack, "faq.txt", "Second version.").Code)
	})

	t.Run("unsupported format is 422", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "x"})
		rec := uploadDocument(t, stack, "report.pdf", "binary-ish")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("whitespace-only document is 422", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "x"})
		rec := uploadDocument(t, stack, "blank.txt", "   \n\n  ")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing multipart field is 400", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "x"})
		req := httptest.NewRequest(http.MethodPost, "/v1/knowledge/upload", nil)
		rec := httptest.NewRecorder()
		stack.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestKnowledgeStats(t *testing.T) {
	stack := newTestStack(t, &echoClient{answer: "x"})
	uploadDocument(t, stack, "a.txt", "alpha content")
	uploadDocument(t, stack, "b.md", "beta content")

	rec := doRequest(stack, http.MethodGet, "/v1/knowledge/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats knowledge.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, []string{"a.txt", "b.md"}, stats.Filenames)
}
