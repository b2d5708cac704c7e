// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation drives a single chat turn through its state machine:
// compose the model input, call the model, execute any requested tools, and
// repeat until the model finishes or the tool budget runs out.
//
// The engine owns the turn's atomicity guarantee: new transcript messages
// (user, tool, assistant) are buffered during the turn and appended to the
// session store only after the model produces its final answer. A failed or
// aborted turn leaves the session transcript exactly as it was.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartbot-labs/smartbot/services/llm"
	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/knowledge"
	"github.com/smartbot-labs/smartbot/services/orchestrator/observability"
	"github.com/smartbot-labs/smartbot/services/orchestrator/prompt"
	"github.com/smartbot-labs/smartbot/services/orchestrator/session"
	"github.com/smartbot-labs/smartbot/services/orchestrator/tools"
)

const (
	// DefaultMaxToolRounds bounds tool execution rounds per turn. When the
	// model requests tools after the budget is spent, the turn fails with
	// ErrToolLoopExceeded instead of looping forever.
	DefaultMaxToolRounds = 3

	// DefaultTopChunks is how many knowledge chunks are injected into the
	// system prompt when retrieval is enabled.
	DefaultTopChunks = 3
)

var (
	// ErrToolLoopExceeded means the model kept requesting tools past the
	// per-turn budget. The session transcript is left unchanged.
	ErrToolLoopExceeded = errors.New("tool loop budget exceeded")

	// ErrModelCall wraps a model backend failure mid-turn.
	ErrModelCall = errors.New("model call failed")
)

var tracer = otel.Tracer("smartbot/orchestrator/conversation")

// TurnRequest is one validated user turn.
type TurnRequest struct {
	SessionID    string
	Message      string
	UseKnowledge bool
}

// EventCallback receives stream events in emission order. Returning a
// non-nil error aborts the turn (typically: the client disconnected); the
// engine stops the model stream and persists nothing.
type EventCallback func(event datatypes.StreamEvent) error

// Engine orchestrates turns against a model backend, a session store, the
// knowledge index, the tool registry, and the prompt manager.
//
// # Thread Safety
//
// Safe for concurrent use: all per-turn state is local to RunTurn, and the
// collaborators are concurrency-safe themselves. Concurrent turns against
// the same session are not serialized here; the transport layer is expected
// to run one turn per session at a time.
type Engine struct {
	client        llm.LLMClient
	sessions      *session.Store
	index         *knowledge.Index
	registry      *tools.Registry
	prompts       *prompt.Manager
	metrics       *observability.ChatMetrics
	maxToolRounds int
	topChunks     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxToolRounds overrides the per-turn tool round budget.
func WithMaxToolRounds(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxToolRounds = n
		}
	}
}

// WithTopChunks overrides how many retrieved chunks go into the prompt.
func WithTopChunks(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topChunks = n
		}
	}
}

// WithMetrics attaches chat metrics so the engine can record retrieval
// latency. Without it the engine runs unobserved, which tests rely on.
func WithMetrics(m *observability.ChatMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a turn engine. All collaborators are required; a nil
// collaborator is a wiring bug and panics at startup rather than surfacing
// as a nil dereference mid-turn.
func NewEngine(client llm.LLMClient, sessions *session.Store, index *knowledge.Index,
	registry *tools.Registry, prompts *prompt.Manager, opts ...Option) *Engine {
	if client == nil || sessions == nil || index == nil || registry == nil || prompts == nil {
		panic("conversation.NewEngine: nil collaborator")
	}
	e := &Engine{
		client:        client,
		sessions:      sessions,
		index:         index,
		registry:      registry,
		prompts:       prompts,
		maxToolRounds: DefaultMaxToolRounds,
		topChunks:     DefaultTopChunks,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunTurn executes one full turn and emits its event stream through emit.
//
// # Description
//
// The turn proceeds compose -> model call -> (done | tool execution ->
// model call) ... until the model finishes. Per event contract the stream
// carries zero or more tool_call/tool_result pairs interleaved with
// content_delta events, then exactly one terminal done or error event.
//
// On success the buffered user, tool, and assistant messages are appended to
// the session transcript in that order. On any failure (model error, tool
// budget, client disconnect) nothing is persisted.
//
// The returned error is nil exactly when a done event was emitted. A client
// disconnect surfaces as the emit callback's own error; model failures wrap
// ErrModelCall; budget exhaustion wraps ErrToolLoopExceeded.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest, emit EventCallback) error {
	ctx, span := tracer.Start(ctx, "conversation.RunTurn", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.Bool("knowledge.enabled", req.UseKnowledge),
	))
	defer span.End()

	messages, err := e.compose(ctx, req)
	if err != nil {
		// compose cannot fail today (History falls back to empty), but the
		// state machine keeps the edge explicit.
		span.RecordError(err)
		return err
	}

	pending := []datatypes.Message{{Role: datatypes.RoleUser, Content: req.Message}}
	params := llm.GenerationParams{Tools: e.toolDefinitions()}

	var answer strings.Builder
	toolRounds := 0

	for {
		result, err := e.streamModelCall(ctx, messages, params, emit)
		if err != nil {
			var emitErr *emitError
			if errors.As(err, &emitErr) {
				// Client is gone; nobody is listening for an error event.
				slog.Info("Turn aborted by client", "session_id", req.SessionID)
				return emitErr.cause
			}
			span.RecordError(err)
			slog.Error("Model call failed", "session_id", req.SessionID, "error", err)
			_ = emit(datatypes.NewStreamEvent(datatypes.EventError).
				WithError(datatypes.ErrorKindModelCallFailure, "the model backend failed to produce a response"))
			return errors.Join(ErrModelCall, err)
		}

		answer.WriteString(result.Text)

		if result.StopReason != llm.StopToolUse {
			break
		}
		if toolRounds >= e.maxToolRounds {
			span.SetAttributes(attribute.Int("tool.rounds", toolRounds))
			slog.Warn("Tool loop budget exceeded", "session_id", req.SessionID, "rounds", toolRounds)
			_ = emit(datatypes.NewStreamEvent(datatypes.EventError).
				WithError(datatypes.ErrorKindToolLoopExceeded,
					fmt.Sprintf("the model exceeded the %d tool rounds allowed per turn", e.maxToolRounds)))
			return ErrToolLoopExceeded
		}
		toolRounds++

		toolMessages, err := e.executeTools(ctx, result.ToolCalls, emit)
		if err != nil {
			var emitErr *emitError
			if errors.As(err, &emitErr) {
				slog.Info("Turn aborted by client during tool execution", "session_id", req.SessionID)
				return emitErr.cause
			}
			return err
		}
		messages = append(messages, toolMessages...)
		pending = append(pending, toolMessages...)
	}

	pending = append(pending, datatypes.Message{Role: datatypes.RoleAssistant, Content: answer.String()})
	for _, msg := range pending {
		e.sessions.Append(req.SessionID, msg)
	}

	span.SetAttributes(attribute.Int("tool.rounds", toolRounds))
	if err := emit(datatypes.NewStreamEvent(datatypes.EventDone).WithSession(req.SessionID)); err != nil {
		// The turn is already persisted; a failed done delivery only means
		// the client will not see the terminal marker.
		slog.Debug("Client gone before done event", "session_id", req.SessionID)
	}
	return nil
}

// compose builds the model input: rendered system prompt, prior transcript,
// and the incoming user message.
func (e *Engine) compose(ctx context.Context, req TurnRequest) ([]datatypes.Message, error) {
	vars := map[string]string{}
	if req.UseKnowledge {
		if block := e.knowledgeBlock(ctx, req.Message); block != "" {
			vars["knowledge_context"] = block
		}
		// An empty retrieval result silently skips the context block; the
		// model answers from the conversation alone.
	}
	system := e.prompts.Render("", vars)

	history, err := e.sessions.History(req.SessionID)
	if err != nil {
		// Unknown session: the first turn creates it on persist.
		history = nil
	}

	messages := make([]datatypes.Message, 0, len(history)+2)
	messages = append(messages, datatypes.Message{Role: datatypes.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, datatypes.Message{Role: datatypes.RoleUser, Content: req.Message})
	return messages, nil
}

// knowledgeBlock retrieves the top chunks for the query and renders them as
// a numbered reference block, or "" when nothing matches.
func (e *Engine) knowledgeBlock(ctx context.Context, query string) string {
	_, span := tracer.Start(ctx, "conversation.retrieve")
	defer span.End()

	start := time.Now()
	scored := e.index.Query(query, e.topChunks)
	if e.metrics != nil {
		e.metrics.RecordRetrievalDuration(time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.Int("knowledge.chunks", len(scored)))
	if len(scored) == 0 {
		return ""
	}

	var b strings.Builder
	for i, sc := range scored {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, sc.Chunk.Text)
	}
	return strings.TrimSpace(b.String())
}

// toolDefinitions renders the registry's descriptors in the schema shape the
// model backends expect.
func (e *Engine) toolDefinitions() []llm.ToolDefinition {
	descriptors := e.registry.List()
	defs := make([]llm.ToolDefinition, 0, len(descriptors))
	for _, d := range descriptors {
		defs = append(defs, llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema(),
		})
	}
	return defs
}

// emitError marks a failure that originated in the emit callback, so RunTurn
// can tell a gone client apart from a model backend failure.
type emitError struct{ cause error }

func (e *emitError) Error() string { return fmt.Sprintf("emit callback failed: %v", e.cause) }
func (e *emitError) Unwrap() error { return e.cause }

// streamModelCall runs one model call, forwarding tokens as content_delta
// events as they arrive.
func (e *Engine) streamModelCall(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams, emit EventCallback) (*llm.ChatResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.modelCall")
	defer span.End()

	var aborted *emitError
	result, err := e.client.ChatStream(ctx, messages, params, func(event llm.StreamEvent) error {
		if event.Type != llm.StreamEventToken || event.Content == "" {
			return nil
		}
		if err := emit(datatypes.NewStreamEvent(datatypes.EventContentDelta).WithText(event.Content)); err != nil {
			aborted = &emitError{cause: err}
			return aborted
		}
		return nil
	})
	if err != nil {
		if aborted != nil {
			return nil, aborted
		}
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// executeTools runs the model's tool requests in order, emitting the
// tool_call/tool_result event pair for each, and returns the tool-role
// messages to feed back to the model.
//
// Tool failures of every kind (unknown name, bad arguments, execution error)
// are recoverable: they are rendered into the tool output text so the model
// can react, and never fail the turn.
func (e *Engine) executeTools(ctx context.Context, calls []llm.ToolCall,
	emit EventCallback) ([]datatypes.Message, error) {
	out := make([]datatypes.Message, 0, len(calls))
	for _, call := range calls {
		if err := emit(datatypes.NewStreamEvent(datatypes.EventToolCall).
			WithTool(call.Name, call.Arguments)); err != nil {
			return nil, &emitError{cause: err}
		}

		var rendered string
		result, err := e.registry.Invoke(ctx, call.Name, call.Arguments)
		if err != nil {
			slog.Warn("Tool invocation failed", "tool", call.Name, "error", err)
			rendered = fmt.Sprintf("Error: %v", err)
		} else {
			rendered = renderOutput(result.Output)
		}

		if err := emit(datatypes.NewStreamEvent(datatypes.EventToolResult).
			WithOutput(call.Name, rendered)); err != nil {
			return nil, &emitError{cause: err}
		}

		out = append(out, datatypes.Message{
			Role:    datatypes.RoleTool,
			Content: rendered,
			ToolCall: &datatypes.ToolCallInfo{
				Name:      call.Name,
				Arguments: call.Arguments,
				Result:    rendered,
			},
		})
	}
	return out, nil
}

// renderOutput serializes a tool's output for the model and the transcript.
// Strings pass through as-is; everything else is compact JSON.
func renderOutput(output any) string {
	if s, ok := output.(string); ok {
		return s
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(encoded)
}
