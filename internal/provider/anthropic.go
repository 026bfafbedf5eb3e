package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/soapbox-pub/shakespeare-sub004/internal/aggregator"
	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

// AnthropicFactory builds Clients against the Anthropic Messages API.
type AnthropicFactory struct{}

func (AnthropicFactory) NewClient(modelID string, creds Credentials) (Client, error) {
	if creds.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(creds.APIKey)}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}
	return &anthropicClient{client: anthropic.NewClient(opts...), model: modelID}, nil
}

type anthropicClient struct {
	client anthropic.Client
	model  string
}

func (c *anthropicClient) buildParams(messages []shakes.Message, tools []shakes.ToolCatalogueEntry) (anthropic.MessageNewParams, error) {
	system, rest := splitSystem(messages)
	converted, err := toAnthropicMessages(rest)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  converted,
		MaxTokens: 4096,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}
	return params, nil
}

func (c *anthropicClient) OpenStream(ctx context.Context, messages []shakes.Message, tools []shakes.ToolCatalogueEntry, opts Options) (<-chan aggregator.Chunk, error) {
	if opts.ImagesUnsupported {
		messages = stripImages(messages)
	}
	params, err := c.buildParams(messages, tools)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	out := make(chan aggregator.Chunk)
	go c.pump(stream, out)
	return out, nil
}

// pump converts Anthropic's content-block event model into
// aggregator.Chunk deltas: tool-use blocks stream across
// content_block_start (id/name) and content_block_delta (partial JSON).
// Anthropic's tool-use blocks always carry an explicit content-block
// index, so the index-omitted fallback in §4.9 never triggers here.
func (c *anthropicClient) pump(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- aggregator.Chunk) {
	defer close(out)

	var inputTokens, outputTokens int64
	toolIndexByBlock := make(map[int64]int)

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			inputTokens = ms.Message.Usage.InputTokens

		case "content_block_start":
			cbs := event.AsContentBlockStart()
			if cbs.ContentBlock.Type == "tool_use" {
				toolUse := cbs.ContentBlock.AsToolUse()
				idx := len(toolIndexByBlock)
				toolIndexByBlock[cbs.Index] = idx
				out <- aggregator.Chunk{ToolCalls: []aggregator.ToolCallDelta{
					{Index: idx, ID: toolUse.ID, Name: toolUse.Name},
				}}
			}

		case "content_block_delta":
			cbd := event.AsContentBlockDelta()
			switch cbd.Delta.Type {
			case "text_delta":
				if cbd.Delta.Text != "" {
					out <- aggregator.Chunk{ContentDelta: cbd.Delta.Text}
				}
			case "thinking_delta":
				if cbd.Delta.Thinking != "" {
					out <- aggregator.Chunk{ReasoningDelta: cbd.Delta.Thinking}
				}
			case "input_json_delta":
				if cbd.Delta.PartialJSON != "" {
					if idx, ok := toolIndexByBlock[cbd.Index]; ok {
						out <- aggregator.Chunk{ToolCalls: []aggregator.ToolCallDelta{
							{Index: idx, Arguments: cbd.Delta.PartialJSON},
						}}
					}
				}
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = md.Usage.OutputTokens
			}
			if string(md.Delta.StopReason) != "" {
				out <- aggregator.Chunk{FinishReason: string(md.Delta.StopReason)}
			}

		case "message_stop":
			out <- aggregator.Chunk{Usage: &aggregator.Usage{PromptTokens: inputTokens, CompletionTokens: outputTokens}}
			return

		case "error":
			out <- aggregator.Chunk{FinishReason: "error"}
			return
		}
	}
	if err := stream.Err(); err != nil {
		out <- aggregator.Chunk{FinishReason: "error"}
	}
}

func (c *anthropicClient) CompleteOnce(ctx context.Context, messages []shakes.Message, opts Options) (string, error) {
	params, err := c.buildParams(messages, nil)
	if err != nil {
		return "", err
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if text := block.AsText(); text.Text != "" {
			b.WriteString(text.Text)
		}
	}
	return b.String(), nil
}

// splitSystem pulls a leading system message (if any) out of messages,
// since Anthropic carries the system prompt as a separate top-level
// field rather than a message with role "system".
func splitSystem(messages []shakes.Message) (system string, rest []shakes.Message) {
	for i, msg := range messages {
		if msg.Role == shakes.RoleSystem {
			system = msg.Content
			rest = append(rest, messages[:i]...)
			rest = append(rest, messages[i+1:]...)
			return system, rest
		}
	}
	return "", messages
}

func toAnthropicMessages(messages []shakes.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case shakes.RoleUser:
			out = append(out, anthropic.NewUserMessage(userBlocks(msg)...))
		case shakes.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Function.Arguments, call.Function.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case shakes.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))
		}
	}
	return out, nil
}

func userBlocks(msg shakes.Message) []anthropic.ContentBlockParamUnion {
	if len(msg.Parts) == 0 {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
	}
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Type {
		case shakes.PartText:
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		case shakes.PartImage:
			blocks = append(blocks, anthropic.NewImageBlock(anthropic.Base64ImageSourceParam{Data: p.ImageURL}))
		}
	}
	return blocks
}

func toAnthropicTools(tools []shakes.ToolCatalogueEntry) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{}, t.Name))
	}
	return out
}
