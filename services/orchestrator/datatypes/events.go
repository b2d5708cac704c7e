// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// StreamEventType tags an event in the turn stream.
type StreamEventType string

// Event types emitted during a turn, in the order a client may observe them:
// zero or more tool_call/tool_result pairs, interleaved with content_delta
// events, then exactly one terminal done or error.
const (
	EventContentDelta StreamEventType = "content_delta"
	EventToolCall     StreamEventType = "tool_call"
	EventToolResult   StreamEventType = "tool_result"
	EventError        StreamEventType = "error"
	EventDone         StreamEventType = "done"
)

// Error kinds carried by error events. Tool-level failures never surface
// here; they are absorbed into tool_result content and handed back to the
// model as data.
const (
	ErrorKindToolLoopExceeded = "tool_loop_exceeded"
	ErrorKindModelCallFailure = "model_call_failure"
)

// StreamEvent represents a single event in a turn's output stream.
//
// # Description
//
// The orchestrator produces a finite, forward-only sequence of StreamEvents
// per turn; the transport layer forwards them verbatim (SSE or WebSocket).
// The populated payload fields depend on Type:
//
//   - content_delta: Text
//   - tool_call:     Name, Arguments
//   - tool_result:   Name, Output
//   - error:         Kind, Message
//   - done:          SessionId
//
// The SSE writer stamps each event with an Id (UUID v4), a CreatedAt
// timestamp, and a SHA-256 hash chained to the previous event so a client
// can verify stream integrity.
//
// # Thread Safety
//
// Events are value types; the writer that stamps metadata serializes access
// internally.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Text      string          `json:"text,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments map[string]any  `json:"arguments,omitempty"`
	Output    string          `json:"output,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Message   string          `json:"message,omitempty"`
	SessionId string          `json:"session_id,omitempty"`

	// Metadata stamped by the transport writer.
	Id        string `json:"id,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Hash      string `json:"hash,omitempty"`
	PrevHash  string `json:"prev_hash,omitempty"`
}

// NewStreamEvent creates an event of the given type. Payload fields are set
// with the With* builders.
func NewStreamEvent(eventType StreamEventType) StreamEvent {
	return StreamEvent{Type: eventType}
}

// WithText sets the content delta text.
func (e StreamEvent) WithText(text string) StreamEvent {
	e.Text = text
	return e
}

// WithTool sets the tool name and arguments for a tool_call event.
func (e StreamEvent) WithTool(name string, args map[string]any) StreamEvent {
	e.Name = name
	e.Arguments = args
	return e
}

// WithOutput sets the tool name and rendered output for a tool_result event.
func (e StreamEvent) WithOutput(name, output string) StreamEvent {
	e.Name = name
	e.Output = output
	return e
}

// WithError sets the error kind and client-safe message.
func (e StreamEvent) WithError(kind, message string) StreamEvent {
	e.Kind = kind
	e.Message = message
	return e
}

// WithSession sets the session identifier on a done event.
func (e StreamEvent) WithSession(sessionID string) StreamEvent {
	e.SessionId = sessionID
	return e
}
