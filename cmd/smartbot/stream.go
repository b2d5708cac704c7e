// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
)

// StreamResult is the outcome of processing one turn's event stream.
type StreamResult struct {
	Answer    string
	SessionID string
}

// StreamProcessor consumes a turn's SSE stream, rendering events to the
// writer as they arrive.
type StreamProcessor struct {
	writer io.Writer
	color  bool
	answer strings.Builder
}

// NewStreamProcessor creates a processor writing to w. When color is true,
// tool activity is dimmed so the answer text stands out on a terminal.
func NewStreamProcessor(w io.Writer, color bool) *StreamProcessor {
	return &StreamProcessor{writer: w, color: color}
}

// Process reads SSE lines until the terminal done or error event.
//
// content_delta text is echoed immediately; tool_call and tool_result
// events are rendered as single activity lines. An in-stream error event
// ends processing with an error carrying the server's message.
func (p *StreamProcessor) Process(reader io.Reader) (*StreamResult, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var sessionID string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event: ") {
			continue
		}
		line = strings.TrimPrefix(line, "data: ")

		var event datatypes.StreamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		switch event.Type {
		case datatypes.EventContentDelta:
			p.answer.WriteString(event.Text)
			fmt.Fprint(p.writer, event.Text)
		case datatypes.EventToolCall:
			args, _ := json.Marshal(event.Arguments)
			p.activity("⚙ %s(%s)", event.Name, args)
		case datatypes.EventToolResult:
			p.activity("→ %s: %s", event.Name, event.Output)
		case datatypes.EventDone:
			fmt.Fprintln(p.writer)
			return &StreamResult{Answer: p.answer.String(), SessionID: event.SessionId}, nil
		case datatypes.EventError:
			fmt.Fprintln(p.writer)
			return nil, fmt.Errorf("%s: %s", event.Kind, event.Message)
		}
		sessionID = event.SessionId
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Stream ended without an explicit terminal event.
	fmt.Fprintln(p.writer)
	return &StreamResult{Answer: p.answer.String(), SessionID: sessionID}, nil
}

func (p *StreamProcessor) activity(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if p.color {
		fmt.Fprintf(p.writer, "\n\033[2m%s\033[0m\n", line)
	} else {
		fmt.Fprintf(p.writer, "\n%s\n", line)
	}
}

// streamTurn posts one chat turn and processes the SSE response.
func streamTurn(baseURL string, req datatypes.ChatStreamRequest, proc *StreamProcessor) (*StreamResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(baseURL+"/v1/chat/stream", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("contacting orchestrator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	return proc.Process(resp.Body)
}
