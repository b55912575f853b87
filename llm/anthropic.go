package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentmesh/runtime/event"
)

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// AnthropicClient implements Client over Anthropic's Messages API.
type AnthropicClient struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// NewAnthropicClient builds an AnthropicClient from cfg, applying the same
// retry/backoff defaults used across the provider adapters.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: anthropic api key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (c *AnthropicClient) model(m string) string {
	if m == "" {
		return c.defaultModel
	}
	return m
}

func (c *AnthropicClient) buildParams(messages []event.Message, params Params) (anthropic.MessageNewParams, error) {
	msgs, system, err := convertAnthropicMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	maxTokens := int64(params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	out := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model(params.Model)),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if system != "" {
		out.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(params.Tools) > 0 {
		tools, err := convertAnthropicTools(params.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		out.Tools = tools
	}
	return out, nil
}

// Execute performs one non-streaming completion, retrying transient failures
// with exponential backoff.
func (c *AnthropicClient) Execute(ctx context.Context, messages []event.Message, params Params) (Result, error) {
	req, err := c.buildParams(messages, params)
	if err != nil {
		return Result{}, err
	}
	var resp *anthropic.Message
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err = c.client.Messages.New(ctx, req)
		if err == nil {
			break
		}
		wrapped := c.wrapError(err, string(req.Model))
		pe, _ := AsProviderError(wrapped)
		if pe == nil || !pe.Kind.Retryable() || attempt == c.maxRetries {
			return Result{}, wrapped
		}
		if err := backoff(ctx, c.retryDelay, attempt); err != nil {
			return Result{}, err
		}
	}
	return anthropicResult(resp), nil
}

// ExecuteStream performs a streaming completion, delivering text and tool
// call increments to fn as Anthropic's SSE events arrive.
func (c *AnthropicClient) ExecuteStream(ctx context.Context, messages []event.Message, params Params, fn func(StreamEvent)) error {
	req, err := c.buildParams(messages, params)
	if err != nil {
		return err
	}
	stream := c.client.Messages.NewStreaming(ctx, req)

	var toolCallID, toolName string
	var toolInput strings.Builder
	var usage event.Usage

	for stream.Next() {
		evt := stream.Current()
		switch evt.Type {
		case "message_start":
			ms := evt.AsMessageStart()
			usage.InputTokens = ms.Message.Usage.InputTokens
			usage.Model = string(ms.Message.Model)
		case "content_block_start":
			block := evt.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				toolCallID, toolName = tu.ID, tu.Name
				toolInput.Reset()
			}
		case "content_block_delta":
			delta := evt.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					fn(StreamEvent{Kind: StreamTextDelta, Text: delta.Text})
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
					fn(StreamEvent{Kind: StreamToolCallDelta, ToolCallID: toolCallID, ToolName: toolName, InputDelta: delta.PartialJSON})
				}
			}
		case "message_delta":
			md := evt.AsMessageDelta()
			usage.OutputTokens = md.Usage.OutputTokens
		case "message_stop":
			fn(StreamEvent{Kind: StreamDone, FinishReason: "stop", Usage: usage})
			return nil
		}
	}
	if err := stream.Err(); err != nil {
		return c.wrapError(err, string(req.Model))
	}
	fn(StreamEvent{Kind: StreamDone, FinishReason: "stop", Usage: usage})
	return nil
}

func anthropicResult(msg *anthropic.Message) Result {
	var parts []event.Part
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, event.TextPart{Text: v.Text})
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(v.Input)
			parts = append(parts, event.ToolCallPart{ToolCallID: v.ID, ToolName: v.Name, Input: input})
		}
	}
	finish := "text"
	if string(msg.StopReason) == "tool_use" {
		finish = "tool_calls"
	}
	return Result{
		Parts: parts,
		Usage: event.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			Tokens:       msg.Usage.InputTokens + msg.Usage.OutputTokens,
			Model:        string(msg.Model),
		},
		FinishReason: finish,
	}
}

func convertAnthropicMessages(messages []event.Message) ([]anthropic.MessageParam, string, error) {
	var system strings.Builder
	var out []anthropic.MessageParam
	for _, m := range messages {
		if m.Role == event.RoleSystem {
			for _, p := range m.Parts {
				if t, ok := p.(event.TextPart); ok {
					if system.Len() > 0 {
						system.WriteByte('\n')
					}
					system.WriteString(t.Text)
				}
			}
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		for _, p := range m.Parts {
			switch v := p.(type) {
			case event.TextPart:
				content = append(content, anthropic.NewTextBlock(v.Text))
			case event.ToolCallPart:
				var input map[string]any
				if len(v.Input) > 0 {
					if err := json.Unmarshal(v.Input, &input); err != nil {
						return nil, "", fmt.Errorf("llm: invalid tool call input for %s: %w", v.ToolName, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(v.ToolCallID, input, v.ToolName))
			case event.ToolResultPart:
				text := toolResultText(v.Parts)
				content = append(content, anthropic.NewToolResultBlock(v.ToolCallID, text, v.IsError))
			}
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == event.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: content})
	}
	return out, system.String(), nil
}

func convertAnthropicTools(tools []ToolSchema) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("llm: invalid schema for tool %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

func toolResultText(parts []event.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(event.TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func (c *AnthropicClient) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := classifyHTTPStatus(apiErr.StatusCode)
		return NewProviderError("anthropic", model, apiErr.StatusCode, kind, "", apiErr.Error(), apiErr.RequestID, err)
	}
	return NewProviderError("anthropic", model, 0, ErrorKindUnknown, "", err.Error(), "", err)
}

// backoff waits out an exponential delay (base * 2^attempt), returning early
// with ctx.Err() if the context is cancelled first.
func backoff(ctx context.Context, base time.Duration, attempt int) error {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
