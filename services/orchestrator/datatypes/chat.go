// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the conversation message model and the request types
// for the streaming chat endpoint. For the event stream shape, see events.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	// Oversized payloads are rejected at the transport boundary to bound
	// per-turn memory usage.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxSessionIDLength bounds client-supplied session identifiers.
	MaxSessionIDLength = 128
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Checks byte length (not rune count) so that
// multi-byte content cannot slip past the limit.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Message Model
// =============================================================================

// Role values for Message. A message's role is fixed at creation and is
// never reassigned.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a session transcript.
//
// # Description
//
// Messages are immutable once appended to a session. Content may be empty
// while a response is still streaming; the persisted assistant message always
// carries the full answer text. Tool-role messages additionally carry the
// tool invocation metadata that produced them.
//
// # Fields
//
//   - Role: One of "system", "user", "assistant", "tool".
//   - Content: Message text. For tool-role messages this is the rendered
//     tool output fed back to the model.
//   - ToolCall: Optional invocation metadata (tool-role messages only).
type Message struct {
	Role     string        `json:"role" validate:"required,oneof=system user assistant tool"`
	Content  string        `json:"content" validate:"maxbytes"`
	ToolCall *ToolCallInfo `json:"tool_call,omitempty"`
}

// ToolCallInfo records a tool invocation embedded in a transcript message:
// which tool ran, with which arguments, and what it returned. The Result is
// the same rendered text the model saw.
type ToolCallInfo struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
}

// =============================================================================
// Chat Request Types
// =============================================================================

// ChatStreamRequest represents the body of a streaming chat turn.
//
// # Description
//
// One request drives one full turn: the user message is appended to the
// session identified by SessionID, the model is called (with optional
// knowledge retrieval and tool use), and the answer is streamed back as
// Server-Sent Events. The session is created lazily on first use of an
// unseen SessionID.
//
// # Validation
//
// Uses go-playground/validator:
//   - SessionID: required, at most 128 characters
//   - Message: required, at most 32KB
type ChatStreamRequest struct {
	SessionID    string `json:"session_id" validate:"required,max=128"`
	Message      string `json:"message" validate:"required,maxbytes"`
	UseKnowledge bool   `json:"use_knowledge"`
}

// Validate validates the ChatStreamRequest fields.
//
// Call after binding the JSON body; returns a validator error describing
// the first offending field.
func (r *ChatStreamRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Session Response Types
// =============================================================================

// HistoryResponse is the payload for GET /v1/sessions/:sessionId/history.
type HistoryResponse struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// UploadResponse is the payload for a successful knowledge upload.
type UploadResponse struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Status   string `json:"status"`
}
