package provider

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/soapbox-pub/shakespeare-sub004/internal/aggregator"
	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

// OpenAIFactory builds Clients for any OpenAI-dialect provider (OpenAI
// proper, or any OpenAI-compatible gateway reachable with a BaseURL
// override, the same mechanism the ancestor codebase's OpenRouter adapter
// uses on top of sashabaranov/go-openai).
type OpenAIFactory struct{}

func (OpenAIFactory) NewClient(modelID string, creds Credentials) (Client, error) {
	if creds.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	cfg := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		cfg.BaseURL = creds.BaseURL
	}
	return &openAIClient{client: openai.NewClientWithConfig(cfg), model: modelID}, nil
}

type openAIClient struct {
	client *openai.Client
	model  string
}

func (c *openAIClient) OpenStream(ctx context.Context, messages []shakes.Message, tools []shakes.ToolCatalogueEntry, opts Options) (<-chan aggregator.Chunk, error) {
	if opts.ImagesUnsupported {
		messages = stripImages(messages)
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}
	if opts.IncludeUsage {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan aggregator.Chunk)
	go c.pump(stream, out)
	return out, nil
}

// pump translates OpenAI SSE chunks into aggregator.Chunk values,
// normalizing the "tool-call index may be omitted" quirk (§4.9) by
// falling back to the delta's position within this response's tool-call
// list when Index is nil.
func (c *openAIClient) pump(stream *openai.ChatCompletionStream, out chan<- aggregator.Chunk) {
	defer close(out)
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				out <- aggregator.Chunk{FinishReason: "error"}
			}
			return
		}
		if resp.Usage != nil {
			out <- aggregator.Chunk{Usage: &aggregator.Usage{
				PromptTokens:     int64(resp.Usage.PromptTokens),
				CompletionTokens: int64(resp.Usage.CompletionTokens),
			}}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		chunk := aggregator.Chunk{
			ContentDelta:   choice.Delta.Content,
			ReasoningDelta: choice.Delta.ReasoningContent,
		}
		for i, tc := range choice.Delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			chunk.ToolCalls = append(chunk.ToolCalls, aggregator.ToolCallDelta{
				Index: idx, ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
			})
		}
		if choice.FinishReason != "" {
			chunk.FinishReason = string(choice.FinishReason)
		}
		out <- chunk
	}
}

func (c *openAIClient) CompleteOnce(ctx context.Context, messages []shakes.Message, opts Options) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(opts.Temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []shakes.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Content}
		switch msg.Role {
		case shakes.RoleTool:
			oaiMsg.ToolCallID = msg.ToolCallID
		case shakes.RoleAssistant:
			for _, call := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				})
			}
		case shakes.RoleUser:
			if len(msg.Parts) > 0 {
				oaiMsg.Content = ""
				for _, p := range msg.Parts {
					switch p.Type {
					case shakes.PartText:
						oaiMsg.MultiContent = append(oaiMsg.MultiContent, openai.ChatMessagePart{
							Type: openai.ChatMessagePartTypeText, Text: p.Text,
						})
					case shakes.PartImage:
						oaiMsg.MultiContent = append(oaiMsg.MultiContent, openai.ChatMessagePart{
							Type:     openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{URL: p.ImageURL},
						})
					}
				}
			}
		}
		out = append(out, oaiMsg)
	}
	return out
}

func toOpenAITools(tools []shakes.ToolCatalogueEntry) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return out
}
