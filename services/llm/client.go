// Package llm provides pluggable clients for large-language-model backends.
//
// The orchestrator treats the model as a black box: send a message list plus
// tool schemas, receive either a streamed text answer or a request to invoke
// a named tool. Backends implement LLMClient; the active backend is selected
// by configuration (see NewFromEnv).
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
)

// GenerationParams carries optional sampling parameters and the tool schemas
// offered to the model for this call.
type GenerationParams struct {
	Temperature *float32         `json:"temperature,omitempty"`
	TopP        *float32         `json:"top_p,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
}

// ToolDefinition describes a callable tool in the schema shape the model
// APIs expect (name, description, JSON Schema for the input object).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is the model's request to invoke a named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// StopReason indicates how a model call ended.
type StopReason string

const (
	// StopEndTurn means the model produced a finished text answer.
	StopEndTurn StopReason = "end_turn"

	// StopToolUse means the model wants one or more tools invoked before
	// it can finish the turn.
	StopToolUse StopReason = "tool_use"
)

// ChatResult is the terminal outcome of a streaming chat call. Text holds
// the full accumulated answer (the same text already delivered through the
// stream callback token by token).
type ChatResult struct {
	StopReason StopReason
	Text       string
	ToolCalls  []ToolCall
}

// StreamEventType tags events delivered through a StreamCallback.
type StreamEventType string

const (
	StreamEventToken StreamEventType = "token"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is a single streaming event from the model backend.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Err     string
}

// StreamCallback receives model output incrementally, in token order.
// Returning a non-nil error aborts the stream (e.g. on client disconnect).
type StreamCallback func(event StreamEvent) error

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Chat sends a conversation and returns the complete answer text.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)

	// ChatStream sends a conversation and streams the answer through
	// callback as it is generated. The returned ChatResult reports whether
	// the model finished the turn or requested tool use. Emission order
	// equals model token order; no buffering or reordering happens here.
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams,
		callback StreamCallback) (*ChatResult, error)
}

// NewFromEnv constructs the LLM client selected by the backend name,
// typically sourced from configuration ("anthropic" or "openai").
func NewFromEnv(backend string) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "anthropic":
		return NewAnthropicClient()
	case "openai":
		return NewOpenAIClient()
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", backend)
	}
}
