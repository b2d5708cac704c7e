package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
)

const (
	anthropicAPIVersion = "2023-06-01"
	defaultBaseURL      = "https://api.anthropic.com/v1/messages"
	defaultMaxTokens    = 4096
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    []systemBlock      `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Tools     []toolsDefinition  `json:"tools,omitempty"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolsDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	StopReason string             `json:"stop_reason"`
	Content    []anthropicContent `json:"content"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Streaming wire frames. Only the fields we consume are declared.
type anthropicStreamFrame struct {
	Type         string            `json:"type"`
	Index        int               `json:"index"`
	ContentBlock *anthropicContent `json:"content_block,omitempty"`
	Delta        *anthropicDelta   `json:"delta,omitempty"`
	Error        *anthropicError   `json:"error,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// --- Client Implementation ---

type AnthropicClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewAnthropicClient() (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	model := os.Getenv("CLAUDE_MODEL")

	if apiKey == "" {
		secretPath := "/run/secrets/anthropic_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read Anthropic API Key from container secrets")
		}
	}

	if apiKey == "" {
		slog.Warn("Anthropic API Key is missing.")
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is missing")
	}

	if model == "" {
		model = "claude-3-5-sonnet-20240620"
		slog.Info("CLAUDE_MODEL not set, defaulting to", "model", model)
	}

	baseURL := os.Getenv("ANTHROPIC_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}, nil
}

// buildRequest converts generic messages to the Anthropic wire shape.
// System messages become top-level system blocks. Tool-role messages are
// folded into user turns carrying the rendered tool output; this keeps the
// client on flat string content, which is sufficient for the bounded tool
// loop the orchestrator runs.
func (a *AnthropicClient) buildRequest(messages []datatypes.Message,
	params GenerationParams, stream bool) anthropicRequest {

	var apiMessages []anthropicMessage
	var systemBlocks []systemBlock

	for _, msg := range messages {
		switch msg.Role {
		case datatypes.RoleSystem:
			systemBlocks = append(systemBlocks, systemBlock{Type: "text", Text: msg.Content})
		case datatypes.RoleTool:
			apiMessages = append(apiMessages, anthropicMessage{
				Role:    "user",
				Content: msg.Content,
			})
		default:
			apiMessages = append(apiMessages, anthropicMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}

	reqPayload := anthropicRequest{
		Model:     a.model,
		Messages:  apiMessages,
		System:    systemBlocks,
		MaxTokens: defaultMaxTokens,
		Stream:    stream,
	}

	if params.Temperature != nil {
		reqPayload.Temperature = params.Temperature
	}
	if params.TopP != nil {
		reqPayload.TopP = params.TopP
	}
	if params.MaxTokens != nil {
		reqPayload.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		reqPayload.StopSeqs = params.Stop
	}
	for _, tool := range params.Tools {
		reqPayload.Tools = append(reqPayload.Tools, toolsDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	return reqPayload
}

func (a *AnthropicClient) newHTTPRequest(ctx context.Context, payload anthropicRequest) (*http.Request, error) {
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")
	return req, nil
}

// Chat implements the LLMClient interface.
func (a *AnthropicClient) Chat(ctx context.Context, messages []datatypes.Message,
	params GenerationParams) (string, error) {

	payload := a.buildRequest(messages, params, false)
	req, err := a.newHTTPRequest(ctx, payload)
	if err != nil {
		return "", err
	}

	slog.Debug("Sending REST request to Anthropic", "model", a.model)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("failed to decode Anthropic response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s", apiResp.Error.Message)
	}

	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// ChatStream implements the LLMClient interface.
//
// Parses the Anthropic SSE stream: text_delta frames are forwarded through
// callback immediately, tool_use blocks are reassembled from their
// input_json_delta fragments, and the stop reason from message_delta decides
// the returned ChatResult.
func (a *AnthropicClient) ChatStream(ctx context.Context, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) (*ChatResult, error) {

	payload := a.buildRequest(messages, params, true)
	req, err := a.newHTTPRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "text/event-stream")

	slog.Debug("Opening Anthropic stream", "model", a.model, "tools", len(params.Tools))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	result := &ChatResult{StopReason: StopEndTurn}
	var answer strings.Builder

	// Tool-use blocks arrive as a content_block_start carrying the name,
	// then input_json_delta fragments, keyed by block index.
	type toolAccumulator struct {
		id    string
		name  string
		input strings.Builder
	}
	pending := make(map[int]*toolAccumulator)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var frame anthropicStreamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			slog.Warn("Skipping unparseable stream frame", "error", err)
			continue
		}

		switch frame.Type {
		case "content_block_start":
			if frame.ContentBlock != nil && frame.ContentBlock.Type == "tool_use" {
				pending[frame.Index] = &toolAccumulator{
					id:   frame.ContentBlock.ID,
					name: frame.ContentBlock.Name,
				}
			}
		case "content_block_delta":
			if frame.Delta == nil {
				continue
			}
			switch frame.Delta.Type {
			case "text_delta":
				answer.WriteString(frame.Delta.Text)
				if err := callback(StreamEvent{Type: StreamEventToken, Content: frame.Delta.Text}); err != nil {
					return nil, fmt.Errorf("stream aborted by callback: %w", err)
				}
			case "input_json_delta":
				if acc, ok := pending[frame.Index]; ok {
					acc.input.WriteString(frame.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			if acc, ok := pending[frame.Index]; ok {
				call := ToolCall{ID: acc.id, Name: acc.name, Arguments: map[string]any{}}
				raw := acc.input.String()
				if raw != "" {
					if err := json.Unmarshal([]byte(raw), &call.Arguments); err != nil {
						slog.Warn("Failed to parse tool input JSON", "tool", acc.name, "error", err)
					}
				}
				result.ToolCalls = append(result.ToolCalls, call)
				delete(pending, frame.Index)
			}
		case "message_delta":
			if frame.Delta != nil && frame.Delta.StopReason == "tool_use" {
				result.StopReason = StopToolUse
			}
		case "error":
			msg := "unknown stream error"
			if frame.Error != nil {
				msg = frame.Error.Message
			}
			return nil, fmt.Errorf("anthropic stream error: %s", msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	result.Text = answer.String()
	return result, nil
}
