// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP surface of the orchestrator: the
// streaming chat endpoints (SSE and WebSocket), session management,
// knowledge uploads, and the read-only tool and prompt listings.
//
// Handlers bind and validate requests, translate domain errors to HTTP
// status codes, and forward the engine's event stream verbatim; all turn
// semantics live in the conversation package.
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/smartbot-labs/smartbot/services/orchestrator/conversation"
	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/knowledge"
	"github.com/smartbot-labs/smartbot/services/orchestrator/observability"
	"github.com/smartbot-labs/smartbot/services/orchestrator/prompt"
	"github.com/smartbot-labs/smartbot/services/orchestrator/session"
	"github.com/smartbot-labs/smartbot/services/orchestrator/tools"
)

// Handler carries the service collaborators shared by all endpoints.
type Handler struct {
	engine   *conversation.Engine
	sessions *session.Store
	index    *knowledge.Index
	registry *tools.Registry
	prompts  *prompt.Manager
	metrics  *observability.ChatMetrics
}

// NewHandler wires the HTTP surface. Metrics may be nil (tests); every
// other collaborator is required.
func NewHandler(engine *conversation.Engine, sessions *session.Store, index *knowledge.Index,
	registry *tools.Registry, prompts *prompt.Manager, metrics *observability.ChatMetrics) *Handler {
	if engine == nil || sessions == nil || index == nil || registry == nil || prompts == nil {
		panic("handlers.NewHandler: nil collaborator")
	}
	return &Handler{
		engine:   engine,
		sessions: sessions,
		index:    index,
		registry: registry,
		prompts:  prompts,
		metrics:  metrics,
	}
}

// runTurn executes one turn with metrics instrumentation around the emit
// path: active stream gauge, per-tool counters, duration, and the error
// kind taxonomy. The transport supplies emit; events pass through
// unchanged.
func (h *Handler) runTurn(ctx context.Context, req conversation.TurnRequest,
	transport observability.Transport, emit conversation.EventCallback) error {
	start := time.Now()
	if h.metrics != nil {
		h.metrics.StreamStarted(transport)
		defer h.metrics.StreamEnded(transport)
	}

	instrumented := emit
	if h.metrics != nil {
		instrumented = func(event datatypes.StreamEvent) error {
			if event.Type == datatypes.EventToolCall {
				h.metrics.RecordToolInvocation(event.Name)
			}
			return emit(event)
		}
	}

	err := h.engine.RunTurn(ctx, req, instrumented)

	if h.metrics != nil {
		h.metrics.RecordRequest(transport, err == nil)
		h.metrics.RecordStreamDuration(transport, time.Since(start).Seconds(), err == nil)
		switch {
		case err == nil:
		case errors.Is(err, conversation.ErrToolLoopExceeded):
			h.metrics.RecordError(transport, datatypes.ErrorKindToolLoopExceeded)
		case errors.Is(err, conversation.ErrModelCall):
			h.metrics.RecordError(transport, datatypes.ErrorKindModelCallFailure)
		default:
			h.metrics.RecordError(transport, observability.ErrorKindClientDisconnect)
		}
	}
	return err
}
