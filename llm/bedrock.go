package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/agentmesh/runtime/event"
)

// BedrockConfig configures a BedrockClient.
type BedrockConfig struct {
	Region       string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// BedrockClient implements Client over AWS Bedrock's Converse/ConverseStream API.
type BedrockClient struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// NewBedrockClient builds a BedrockClient using the default AWS credential
// chain (environment, shared config, or IAM role).
func NewBedrockClient(ctx context.Context, cfg BedrockConfig) (*BedrockClient, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	return &BedrockClient{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (c *BedrockClient) model(m string) string {
	if m == "" {
		return c.defaultModel
	}
	return m
}

func (c *BedrockClient) buildInput(messages []event.Message, params Params) (*bedrockruntime.ConverseStreamInput, error) {
	msgs, system, err := convertBedrockMessages(messages)
	if err != nil {
		return nil, err
	}
	model := c.model(params.Model)
	in := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: msgs,
	}
	if system != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if params.MaxTokens > 0 {
		in.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(params.MaxTokens))}
	}
	if len(params.Tools) > 0 {
		toolConfig, err := convertBedrockTools(params.Tools)
		if err != nil {
			return nil, err
		}
		in.ToolConfig = toolConfig
	}
	return in, nil
}

// Execute performs a Converse call and collapses the result into a single
// Result. Bedrock's non-streaming Converse API has the same shape as
// ConverseStream's aggregate output, so Execute drives ExecuteStream and
// accumulates its increments.
func (c *BedrockClient) Execute(ctx context.Context, messages []event.Message, params Params) (Result, error) {
	var parts []event.Part
	var textBuilder strings.Builder
	var usage event.Usage
	finish := "text"

	calls := map[string]*strings.Builder{}
	names := map[string]string{}
	order := []string{}

	err := c.ExecuteStream(ctx, messages, params, func(e StreamEvent) {
		switch e.Kind {
		case StreamTextDelta:
			textBuilder.WriteString(e.Text)
		case StreamToolCallDelta:
			if _, ok := calls[e.ToolCallID]; !ok {
				calls[e.ToolCallID] = &strings.Builder{}
				names[e.ToolCallID] = e.ToolName
				order = append(order, e.ToolCallID)
			}
			calls[e.ToolCallID].WriteString(e.InputDelta)
		case StreamDone:
			usage = e.Usage
		}
	})
	if err != nil {
		return Result{}, err
	}
	if textBuilder.Len() > 0 {
		parts = append(parts, event.TextPart{Text: textBuilder.String()})
	}
	for _, id := range order {
		parts = append(parts, event.ToolCallPart{ToolCallID: id, ToolName: names[id], Input: json.RawMessage(calls[id].String())})
		finish = "tool_calls"
	}
	return Result{Parts: parts, Usage: usage, FinishReason: finish}, nil
}

// ExecuteStream performs a ConverseStream call, delivering text and tool-call
// increments as Bedrock's event stream arrives.
func (c *BedrockClient) ExecuteStream(ctx context.Context, messages []event.Message, params Params, fn func(StreamEvent)) error {
	in, err := c.buildInput(messages, params)
	if err != nil {
		return err
	}
	model := c.model(params.Model)

	var out *bedrockruntime.ConverseStreamOutput
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		out, err = c.client.ConverseStream(ctx, in)
		if err == nil {
			break
		}
		wrapped := c.wrapError(err, model)
		pe, _ := AsProviderError(wrapped)
		if pe == nil || !pe.Kind.Retryable() || attempt == c.maxRetries {
			return wrapped
		}
		if err := backoff(ctx, c.retryDelay, attempt); err != nil {
			return err
		}
	}

	stream := out.GetStream()
	defer stream.Close()

	var toolCallID, toolName string
	var usage event.Usage

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				if err := stream.Err(); err != nil {
					return c.wrapError(err, model)
				}
				fn(StreamEvent{Kind: StreamDone, FinishReason: "stop", Usage: usage})
				return nil
			}
			switch v := ev.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if tu, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					toolCallID = aws.ToString(tu.Value.ToolUseId)
					toolName = aws.ToString(tu.Value.Name)
				}
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch d := v.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if d.Value != "" {
						fn(StreamEvent{Kind: StreamTextDelta, Text: d.Value})
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if d.Value.Input != nil {
						fn(StreamEvent{Kind: StreamToolCallDelta, ToolCallID: toolCallID, ToolName: toolName, InputDelta: *d.Value.Input})
					}
				}
			case *types.ConverseStreamOutputMemberMetadata:
				if v.Value.Usage != nil {
					usage.InputTokens = int64(v.Value.Usage.InputTokens)
					usage.OutputTokens = int64(v.Value.Usage.OutputTokens)
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				fn(StreamEvent{Kind: StreamDone, FinishReason: "stop", Usage: usage})
				return nil
			}
		}
	}
}

func convertBedrockMessages(messages []event.Message) ([]types.Message, string, error) {
	var system strings.Builder
	var out []types.Message
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
		var blocks []types.ContentBlock
		for _, p := range m.Parts {
			switch v := p.(type) {
			case event.TextPart:
				blocks = append(blocks, &types.ContentBlockMemberText{Value: v.Text})
			case event.ToolCallPart:
				var input map[string]any
				if len(v.Input) > 0 {
					if err := json.Unmarshal(v.Input, &input); err != nil {
						return nil, "", err
					}
				}
				blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(v.ToolCallID),
					Name:      aws.String(v.ToolName),
					Input:     document.NewLazyDocument(input),
				}})
			case event.ToolResultPart:
				status := types.ToolResultStatusSuccess
				if v.IsError {
					status = types.ToolResultStatusError
				}
				blocks = append(blocks, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
					ToolUseId: aws.String(v.ToolCallID),
					Status:    status,
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: toolResultText(v.Parts)}},
				}})
			}
		}
		role := types.ConversationRoleUser
		if m.Role == event.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}
	return out, system.String(), nil
}

func convertBedrockTools(tools []ToolSchema) (*types.ToolConfiguration, error) {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, err
			}
		}
		specs = append(specs, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	return &types.ToolConfiguration{Tools: specs}, nil
}

func (c *BedrockClient) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		kind := ErrorKindUnknown
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			kind = ErrorKindRateLimited
		case "AccessDeniedException", "UnauthorizedException":
			kind = ErrorKindAuth
		case "ValidationException":
			kind = ErrorKindInvalidRequest
		case "ServiceUnavailableException", "InternalServerException", "ModelTimeoutException":
			kind = ErrorKindUnavailable
		}
		return NewProviderError("bedrock", model, 0, kind, apiErr.ErrorCode(), err.Error(), "", err)
	}
	return NewProviderError("bedrock", model, 0, ErrorKindUnknown, "", err.Error(), "", err)
}
