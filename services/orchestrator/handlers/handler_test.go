// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/smartbot-labs/smartbot/services/llm"
	"github.com/smartbot-labs/smartbot/services/orchestrator/conversation"
	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/knowledge"
	"github.com/smartbot-labs/smartbot/services/orchestrator/prompt"
	"github.com/smartbot-labs/smartbot/services/orchestrator/session"
	"github.com/smartbot-labs/smartbot/services/orchestrator/tools"
)

// echoClient streams a canned answer for any input.
type echoClient struct {
	answer string
}

func (e *echoClient) Chat(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams) (string, error) {
	return e.answer, nil
}

func (e *echoClient) ChatStream(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams, callback llm.StreamCallback) (*llm.ChatResult, error) {
	if err := callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: e.answer}); err != nil {
		return nil, fmt.Errorf("stream aborted by callback: %w", err)
	}
	return &llm.ChatResult{StopReason: llm.StopEndTurn, Text: e.answer}, nil
}

// testStack bundles the wired collaborators behind a test router.
type testStack struct {
	router   *gin.Engine
	sessions *session.Store
	index    *knowledge.Index
}

// newTestStack wires a full handler stack over the given model client,
// registering routes the same way the service does (without middleware).
func newTestStack(t *testing.T, client llm.LLMClient) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := session.NewStore()
	index := knowledge.NewIndex(0, 0)
	registry := tools.NewBuiltinRegistry()
	prompts := prompt.NewManager(t.TempDir(), "v1_default")
	t.Cleanup(prompts.Close)

	engine := conversation.NewEngine(client, sessions, index, registry, prompts)
	h := NewHandler(engine, sessions, index, registry, prompts, nil)

	router := gin.New()
	router.POST("/v1/chat/stream", h.ChatStream)
	router.GET("/v1/chat/ws", h.ChatWebSocket)
	router.GET("/v1/sessions", h.ListSessions)
	router.GET("/v1/sessions/:sessionId/history", h.SessionHistory)
	router.DELETE("/v1/sessions/:sessionId", h.DeleteSession)
	router.POST("/v1/knowledge/upload", h.UploadKnowledge)
	router.GET("/v1/knowledge/stats", h.KnowledgeStats)
	router.GET("/v1/tools", h.ListTools)
	router.GET("/v1/prompts", h.ListPrompts)
	router.GET("/health", h.HealthCheck)

	return &testStack{router: router, sessions: sessions, index: index}
}
