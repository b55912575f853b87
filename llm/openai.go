package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentmesh/runtime/event"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// OpenAIClient implements Client over the OpenAI Chat Completions API.
type OpenAIClient struct {
	client       *openai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// NewOpenAIClient builds an OpenAIClient from cfg.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: openai api key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(config),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (c *OpenAIClient) model(m string) string {
	if m == "" {
		return c.defaultModel
	}
	return m
}

func (c *OpenAIClient) buildRequest(messages []event.Message, params Params, stream bool) (openai.ChatCompletionRequest, error) {
	msgs, err := convertOpenAIMessages(messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	req := openai.ChatCompletionRequest{
		Model:       c.model(params.Model),
		Messages:    msgs,
		Stream:      stream,
		Temperature: float32(params.Temperature),
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}
	if len(params.Tools) > 0 {
		req.Tools = convertOpenAITools(params.Tools)
	}
	return req, nil
}

// Execute performs one non-streaming chat completion, retrying transient
// failures with exponential backoff.
func (c *OpenAIClient) Execute(ctx context.Context, messages []event.Message, params Params) (Result, error) {
	req, err := c.buildRequest(messages, params, false)
	if err != nil {
		return Result{}, err
	}
	var resp openai.ChatCompletionResponse
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		wrapped := c.wrapError(err, req.Model)
		pe, _ := AsProviderError(wrapped)
		if pe == nil || !pe.Kind.Retryable() || attempt == c.maxRetries {
			return Result{}, wrapped
		}
		if err := backoff(ctx, c.retryDelay, attempt); err != nil {
			return Result{}, err
		}
	}
	return openaiResult(resp), nil
}

// ExecuteStream performs a streaming chat completion. It tracks each tool
// call's id and name by stream index and forwards every argument fragment
// as a StreamToolCallDelta as soon as it arrives.
func (c *OpenAIClient) ExecuteStream(ctx context.Context, messages []event.Message, params Params, fn func(StreamEvent)) error {
	req, err := c.buildRequest(messages, params, true)
	if err != nil {
		return err
	}
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return c.wrapError(err, req.Model)
	}
	defer stream.Close()

	type building struct{ id, name string }
	calls := make(map[int]*building)
	var usage event.Usage

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			fn(StreamEvent{Kind: StreamDone, FinishReason: "stop", Usage: usage})
			return nil
		}
		if err != nil {
			return c.wrapError(err, req.Model)
		}
		if resp.Usage != nil {
			usage.InputTokens = int64(resp.Usage.PromptTokens)
			usage.OutputTokens = int64(resp.Usage.CompletionTokens)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			fn(StreamEvent{Kind: StreamTextDelta, Text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			b, ok := calls[idx]
			if !ok {
				b = &building{}
				calls[idx] = b
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				fn(StreamEvent{Kind: StreamToolCallDelta, ToolCallID: b.id, ToolName: b.name, InputDelta: tc.Function.Arguments})
			}
		}
		if choice.FinishReason == openai.FinishReasonToolCalls || choice.FinishReason == openai.FinishReasonStop {
			fn(StreamEvent{Kind: StreamDone, FinishReason: string(choice.FinishReason), Usage: usage})
			return nil
		}
	}
}

func openaiResult(resp openai.ChatCompletionResponse) Result {
	var parts []event.Part
	finish := "text"
	for _, choice := range resp.Choices {
		if strings.TrimSpace(choice.Message.Content) != "" {
			parts = append(parts, event.TextPart{Text: choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			parts = append(parts, event.ToolCallPart{
				ToolCallID: tc.ID,
				ToolName:   tc.Function.Name,
				Input:      json.RawMessage(tc.Function.Arguments),
			})
			finish = "tool_calls"
		}
	}
	return Result{
		Parts: parts,
		Usage: event.Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			Tokens:       int64(resp.Usage.TotalTokens),
			Model:        resp.Model,
		},
		FinishReason: finish,
	}
}

func convertOpenAIMessages(messages []event.Message) ([]openai.ChatCompletionMessage, error) {
	var out []openai.ChatCompletionMessage
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case event.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case event.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case event.RoleTool:
			role = openai.ChatMessageRoleTool
		}

		var text strings.Builder
		var toolCalls []openai.ToolCall
		for _, p := range m.Parts {
			switch v := p.(type) {
			case event.TextPart:
				text.WriteString(v.Text)
			case event.ToolCallPart:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   v.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      v.ToolName,
						Arguments: string(v.Input),
					},
				})
			case event.ToolResultPart:
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    toolResultText(v.Parts),
					ToolCallID: v.ToolCallID,
				})
			}
		}
		if text.Len() == 0 && len(toolCalls) == 0 {
			continue
		}
		msg := openai.ChatCompletionMessage{Role: role, Content: text.String()}
		if len(toolCalls) > 0 {
			msg.ToolCalls = toolCalls
		}
		out = append(out, msg)
	}
	return out, nil
}

func convertOpenAITools(tools []ToolSchema) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return out
}

func (c *OpenAIClient) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := classifyHTTPStatus(apiErr.HTTPStatusCode)
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return NewProviderError("openai", model, apiErr.HTTPStatusCode, kind, code, apiErr.Message, "", err)
	}
	return NewProviderError("openai", model, 0, ErrorKindUnknown, "", err.Error(), "", err)
}
