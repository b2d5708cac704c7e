// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
)

func postChat(t *testing.T, stack *testStack, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	stack.router.ServeHTTP(rec, req)
	return rec
}

func TestChatStream(t *testing.T) {
	t.Run("streams deltas and a terminal done event", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "Hello there"})

		rec := postChat(t, stack, `{"session_id":"s1","message":"hi"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		events := parseSSE(t, rec.Body.String())
		require.Len(t, events, 2)
		assert.Equal(t, datatypes.EventContentDelta, events[0].Type)
		assert.Equal(t, "Hello there", events[0].Text)
		assert.Equal(t, datatypes.EventDone, events[1].Type)
		assert.Equal(t, "s1", events[1].SessionId)

		// The turn persisted.
		history, err := stack.sessions.History("s1")
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	t.Run("rejects a malformed body before streaming", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "x"})
		rec := postChat(t, stack, `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotContains(t, rec.Body.String(), "event:")
	})

	t.Run("rejects a missing session id", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "x"})
		rec := postChat(t, stack, `{"message":"hi"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects an empty message", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "x"})
		rec := postChat(t, stack, `{"session_id":"s1","message":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects an oversized message", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "x"})
		big := strings.Repeat("a", datatypes.MaxMessageContentBytes+1)
		rec := postChat(t, stack, `{"session_id":"s1","message":"`+big+`"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("events carry a verifiable hash chain", func(t *testing.T) {
		stack := newTestStack(t, &echoClient{answer: "chained"})
		rec := postChat(t, stack, `{"session_id":"s1","message":"hi"}`)

		events := parseSSE(t, rec.Body.String())
		require.GreaterOrEqual(t, len(events), 2)
		for i := 1; i < len(events); i++ {
			assert.Equal(t, events[i-1].Hash, events[i].PrevHash)
		}
	})
}
