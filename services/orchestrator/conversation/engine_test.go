// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbot-labs/smartbot/services/llm"
	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/knowledge"
	"github.com/smartbot-labs/smartbot/services/orchestrator/observability"
	"github.com/smartbot-labs/smartbot/services/orchestrator/prompt"
	"github.com/smartbot-labs/smartbot/services/orchestrator/session"
	"github.com/smartbot-labs/smartbot/services/orchestrator/tools"
)

// scriptedStep describes one model call: the tokens to stream and the
// result to return.
type scriptedStep struct {
	tokens []string
	result *llm.ChatResult
	err    error
}

// scriptedClient plays back a fixed sequence of model call outcomes and
// records the messages it was sent.
type scriptedClient struct {
	steps []scriptedStep
	calls int
	seen  [][]datatypes.Message
}

func (s *scriptedClient) Chat(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams) (string, error) {
	return "", fmt.Errorf("not used")
}

func (s *scriptedClient) ChatStream(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams, callback llm.StreamCallback) (*llm.ChatResult, error) {
	snapshot := make([]datatypes.Message, len(messages))
	copy(snapshot, messages)
	s.seen = append(s.seen, snapshot)

	if s.calls >= len(s.steps) {
		return nil, fmt.Errorf("unexpected model call %d", s.calls)
	}
	step := s.steps[s.calls]
	s.calls++

	if step.err != nil {
		return nil, step.err
	}
	for _, token := range step.tokens {
		if err := callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: token}); err != nil {
			return nil, fmt.Errorf("stream aborted by callback: %w", err)
		}
	}
	return step.result, nil
}

func newTestEngine(t *testing.T, client llm.LLMClient) (*Engine, *session.Store, *knowledge.Index) {
	t.Helper()
	sessions := session.NewStore()
	index := knowledge.NewIndex(0, 0)
	prompts := prompt.NewManager(t.TempDir(), "v1_default")
	t.Cleanup(prompts.Close)
	engine := NewEngine(client, sessions, index, tools.NewBuiltinRegistry(), prompts)
	return engine, sessions, index
}

// collect gathers every emitted event.
func collect(events *[]datatypes.StreamEvent) EventCallback {
	return func(event datatypes.StreamEvent) error {
		*events = append(*events, event)
		return nil
	}
}

func eventTypes(events []datatypes.StreamEvent) []datatypes.StreamEventType {
	out := make([]datatypes.StreamEventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestRunTurnPlainAnswer(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{
		tokens: []string{"Hello", " there"},
		result: &llm.ChatResult{StopReason: llm.StopEndTurn, Text: "Hello there"},
	}}}
	engine, sessions, _ := newTestEngine(t, client)

	var events []datatypes.StreamEvent
	err := engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "hi"}, collect(&events))
	require.NoError(t, err)

	assert.Equal(t, []datatypes.StreamEventType{
		datatypes.EventContentDelta,
		datatypes.EventContentDelta,
		datatypes.EventDone,
	}, eventTypes(events))
	assert.Equal(t, "Hello", events[0].Text)
	assert.Equal(t, "s1", events[2].SessionId)

	history, err := sessions.History("s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, datatypes.RoleUser, history[0].Role)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, datatypes.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello there", history[1].Content)

	// The model saw system + user.
	require.Len(t, client.seen, 1)
	assert.Equal(t, datatypes.RoleSystem, client.seen[0][0].Role)
	assert.Equal(t, datatypes.RoleUser, client.seen[0][1].Role)
}

func TestRunTurnWithToolRound(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		{
			result: &llm.ChatResult{
				StopReason: llm.StopToolUse,
				ToolCalls: []llm.ToolCall{{
					Name:      "get_weather",
					Arguments: map[string]any{"city": "Beijing"},
				}},
			},
		},
		{
			tokens: []string{"Sunny, 22°C."},
			result: &llm.ChatResult{StopReason: llm.StopEndTurn, Text: "Sunny, 22°C."},
		},
	}}
	engine, sessions, _ := newTestEngine(t, client)

	var events []datatypes.StreamEvent
	err := engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "weather in Beijing?"}, collect(&events))
	require.NoError(t, err)

	assert.Equal(t, []datatypes.StreamEventType{
		datatypes.EventToolCall,
		datatypes.EventToolResult,
		datatypes.EventContentDelta,
		datatypes.EventDone,
	}, eventTypes(events))

	assert.Equal(t, "get_weather", events[0].Name)
	assert.Equal(t, map[string]any{"city": "Beijing"}, events[0].Arguments)
	assert.Contains(t, events[1].Output, "22°C")

	// Transcript order: user, tool, assistant.
	history, err := sessions.History("s1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, datatypes.RoleTool, history[1].Role)
	require.NotNil(t, history[1].ToolCall)
	assert.Equal(t, "get_weather", history[1].ToolCall.Name)
	assert.Equal(t, datatypes.RoleAssistant, history[2].Role)

	// The second model call carried the tool output.
	require.Len(t, client.seen, 2)
	last := client.seen[1][len(client.seen[1])-1]
	assert.Equal(t, datatypes.RoleTool, last.Role)
	assert.Contains(t, last.Content, "22°C")
}

func TestRunTurnToolFailureIsRecoverable(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		{
			result: &llm.ChatResult{
				StopReason: llm.StopToolUse,
				ToolCalls: []llm.ToolCall{{
					Name:      "calculator",
					Arguments: map[string]any{"expression": "1/0"},
				}},
			},
		},
		{
			tokens: []string{"That division is undefined."},
			result: &llm.ChatResult{StopReason: llm.StopEndTurn, Text: "That division is undefined."},
		},
	}}
	engine, sessions, _ := newTestEngine(t, client)

	var events []datatypes.StreamEvent
	err := engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "what is 1/0"}, collect(&events))
	require.NoError(t, err, "tool failures must not fail the turn")

	require.Equal(t, datatypes.EventToolResult, events[1].Type)
	assert.Contains(t, events[1].Output, "Error:")

	history, err := sessions.History("s1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestRunTurnToolLoopExceeded(t *testing.T) {
	loop := scriptedStep{result: &llm.ChatResult{
		StopReason: llm.StopToolUse,
		ToolCalls: []llm.ToolCall{{
			Name:      "get_weather",
			Arguments: map[string]any{"city": "Beijing"},
		}},
	}}
	// Budget of 3 rounds: the 4th tool request trips the limit.
	client := &scriptedClient{steps: []scriptedStep{loop, loop, loop, loop}}
	engine, sessions, _ := newTestEngine(t, client)

	var events []datatypes.StreamEvent
	err := engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "loop forever"}, collect(&events))
	assert.True(t, errors.Is(err, ErrToolLoopExceeded))

	last := events[len(events)-1]
	assert.Equal(t, datatypes.EventError, last.Type)
	assert.Equal(t, datatypes.ErrorKindToolLoopExceeded, last.Kind)
	assert.Equal(t, 4, client.calls)

	// Nothing was persisted.
	_, err = sessions.History("s1")
	assert.True(t, errors.Is(err, session.ErrSessionNotFound))
}

func TestRunTurnModelFailure(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{err: fmt.Errorf("backend 500")}}}
	engine, sessions, _ := newTestEngine(t, client)

	var events []datatypes.StreamEvent
	err := engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "hi"}, collect(&events))
	assert.True(t, errors.Is(err, ErrModelCall))

	require.Len(t, events, 1)
	assert.Equal(t, datatypes.EventError, events[0].Type)
	assert.Equal(t, datatypes.ErrorKindModelCallFailure, events[0].Kind)
	assert.NotContains(t, events[0].Message, "500", "internal details stay out of the stream")

	_, err = sessions.History("s1")
	assert.True(t, errors.Is(err, session.ErrSessionNotFound))
}

func TestRunTurnClientDisconnect(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{
		tokens: []string{"Hel", "lo"},
		result: &llm.ChatResult{StopReason: llm.StopEndTurn, Text: "Hello"},
	}}}
	engine, sessions, _ := newTestEngine(t, client)

	clientGone := errors.New("client gone")
	emitted := 0
	err := engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "hi"},
		func(event datatypes.StreamEvent) error {
			emitted++
			if emitted > 1 {
				return clientGone
			}
			return nil
		})

	assert.True(t, errors.Is(err, clientGone))
	assert.False(t, errors.Is(err, ErrModelCall))

	_, err = sessions.History("s1")
	assert.True(t, errors.Is(err, session.ErrSessionNotFound))
}

func TestRunTurnKnowledgeInjection(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{
		tokens: []string{"Answer."},
		result: &llm.ChatResult{StopReason: llm.StopEndTurn, Text: "Answer."},
	}}}
	engine, _, index := newTestEngine(t, client)

	_, err := index.Ingest("policy.txt", "Refunds are issued within 30 days of purchase.")
	require.NoError(t, err)

	var events []datatypes.StreamEvent
	err = engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "refunds policy", UseKnowledge: true}, collect(&events))
	require.NoError(t, err)

	require.NotEmpty(t, client.seen)
	system := client.seen[0][0]
	require.Equal(t, datatypes.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "[1] Refunds are issued")
}

func TestRunTurnRecordsRetrievalLatency(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		{result: &llm.ChatResult{StopReason: llm.StopEndTurn, Text: "Answer."}},
		{result: &llm.ChatResult{StopReason: llm.StopEndTurn, Text: "Answer."}},
	}}
	sessions := session.NewStore()
	index := knowledge.NewIndex(0, 0)
	_, err := index.Ingest("policy.txt", "Refunds are issued within 30 days of purchase.")
	require.NoError(t, err)
	prompts := prompt.NewManager(t.TempDir(), "v1_default")
	t.Cleanup(prompts.Close)

	metrics := &observability.ChatMetrics{
		RetrievalDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "retrieval_duration_seconds",
		}),
	}
	engine := NewEngine(client, sessions, index, tools.NewBuiltinRegistry(), prompts,
		WithMetrics(metrics))

	err = engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "refunds policy", UseKnowledge: true},
		func(datatypes.StreamEvent) error { return nil })
	require.NoError(t, err)

	sampleCount := func() uint64 {
		pb := &dto.Metric{}
		require.NoError(t, metrics.RetrievalDurationSeconds.Write(pb))
		return pb.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, uint64(1), sampleCount())

	// A turn without retrieval leaves the histogram untouched.
	err = engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "hi"},
		func(datatypes.StreamEvent) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sampleCount())
}

func TestRunTurnEmptyRetrievalSkipsSilently(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{
		tokens: []string{"Answer."},
		result: &llm.ChatResult{StopReason: llm.StopEndTurn, Text: "Answer."},
	}}}
	engine, _, _ := newTestEngine(t, client)

	var events []datatypes.StreamEvent
	err := engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "anything", UseKnowledge: true}, collect(&events))
	require.NoError(t, err)

	// No reference block, no error: the turn proceeds as a plain chat.
	system := client.seen[0][0]
	assert.False(t, strings.Contains(system.Content, "[1]"))
	assert.Equal(t, datatypes.EventDone, events[len(events)-1].Type)
}

func TestRunTurnHistoryCarriedForward(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		{tokens: []string{"First."}, result: &llm.ChatResult{StopReason: llm.StopEndTurn, Text: "First."}},
		{tokens: []string{"Second."}, result: &llm.ChatResult{StopReason: llm.StopEndTurn, Text: "Second."}},
	}}
	engine, _, _ := newTestEngine(t, client)

	var events []datatypes.StreamEvent
	require.NoError(t, engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "one"}, collect(&events)))
	require.NoError(t, engine.RunTurn(context.Background(),
		TurnRequest{SessionID: "s1", Message: "two"}, collect(&events)))

	// Second call sees: system, user(one), assistant(First.), user(two).
	require.Len(t, client.seen, 2)
	second := client.seen[1]
	require.Len(t, second, 4)
	assert.Equal(t, "one", second[1].Content)
	assert.Equal(t, "First.", second[2].Content)
	assert.Equal(t, "two", second[3].Content)
}

func TestNewEnginePanicsOnNilCollaborator(t *testing.T) {
	assert.Panics(t, func() {
		NewEngine(nil, session.NewStore(), knowledge.NewIndex(0, 0),
			tools.NewBuiltinRegistry(), nil)
	})
}
