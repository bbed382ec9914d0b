// Package openai adapts the OpenAI API to the provider contract.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/codeatlas/codeatlas/pkg/chat"
	"github.com/codeatlas/codeatlas/pkg/config"
	"github.com/codeatlas/codeatlas/pkg/environment"
	"github.com/codeatlas/codeatlas/pkg/tools"
)

// EmbeddingDimensions is the vector size every collection is created with.
const EmbeddingDimensions = 384

// Client wraps the OpenAI SDK. It implements provider.Provider and
// provider.EmbeddingProvider.
type Client struct {
	client openai.Client
	model  string
}

// NewClient builds a client from configuration. The API key comes from the
// configured token_key environment variable, or the SDK default
// (OPENAI_API_KEY) when unset.
func NewClient(ctx context.Context, cfg *config.ModelConfig, env environment.Provider) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("model configuration is required")
	}

	var opts []option.RequestOption
	if cfg.TokenKey != "" {
		key, err := env.Get(ctx, cfg.TokenKey)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, fmt.Errorf("%s environment variable is required", cfg.TokenKey)
		}
		opts = append(opts, option.WithAPIKey(key))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	slog.Debug("openai client created", "model", cfg.Model)

	return &Client{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// CreateChatCompletion runs one completion, advertising the given functions
// as tools.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []chat.Message, functions []tools.Tool) (chat.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: convertMessages(messages),
	}
	for _, t := range functions {
		if t.Function == nil {
			continue
		}
		paramsMap, ok := t.Function.Parameters.(map[string]any)
		if !ok {
			return chat.Message{}, fmt.Errorf("function %s: parameters must be a JSON object", t.Function.Name)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: openai.String(t.Function.Description),
			Parameters:  shared.FunctionParameters(paramsMap),
		}))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return chat.Message{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return chat.Message{}, errors.New("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		return chat.AssistantCall(chat.FunctionCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}), nil
	}
	return chat.Assistant(msg.Content), nil
}

// CreateEmbedding embeds one text at the collection dimensionality.
func (c *Client) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(c.model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Dimensions: openai.Int(EmbeddingDimensions),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding returned no data")
	}

	out := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// convertMessages maps the neutral chat model onto OpenAI params. Function
// calls and returns are paired through synthesized tool-call ids.
func convertMessages(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	callSeq := 0
	lastCallID := ""

	for _, m := range messages {
		switch {
		case m.Role == chat.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))

		case m.Role == chat.RoleUser:
			out = append(out, openai.UserMessage(m.Content))

		case m.Role == chat.RoleAssistant && m.FunctionCall != nil:
			lastCallID = fmt.Sprintf("call_%d", callSeq)
			callSeq++
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					ToolCalls: []openai.ChatCompletionMessageToolCallUnionParam{{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: lastCallID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      m.FunctionCall.Name,
								Arguments: m.FunctionCall.Arguments,
							},
						},
					}},
				},
			})

		case m.Role == chat.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))

		case m.Role == chat.RoleFunction:
			id := lastCallID
			lastCallID = ""
			if id == "" {
				id = fmt.Sprintf("call_%d", callSeq)
				callSeq++
			}
			out = append(out, openai.ToolMessage(m.Content, id))
		}
	}
	return out
}
