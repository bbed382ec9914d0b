// Package anthropic adapts the Anthropic API to the provider contract.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codeatlas/codeatlas/pkg/chat"
	"github.com/codeatlas/codeatlas/pkg/config"
	"github.com/codeatlas/codeatlas/pkg/environment"
	"github.com/codeatlas/codeatlas/pkg/tools"
)

const defaultMaxTokens = 4096

// Client wraps the Anthropic SDK. It implements provider.Provider.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClient builds a client from configuration. The API key comes from the
// configured token_key environment variable, or the SDK default
// (ANTHROPIC_API_KEY) when unset.
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

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	slog.Debug("anthropic client created", "model", cfg.Model)

	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

// CreateChatCompletion runs one completion. Conversation history is
// flattened into alternating text turns; the current decision surface is
// advertised as native tools and the first tool_use block comes back as the
// function call.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []chat.Message, functions []tools.Tool) (chat.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
	}

	var turns []anthropic.MessageParam
	for _, m := range messages {
		switch {
		case m.Role == chat.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})

		case m.Role == chat.RoleUser:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))

		case m.Role == chat.RoleAssistant && m.FunctionCall != nil:
			text := fmt.Sprintf("Called function %s with arguments %s",
				m.FunctionCall.Name, m.FunctionCall.Arguments)
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))

		case m.Role == chat.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))

		case m.Role == chat.RoleFunction:
			text := fmt.Sprintf("Function %s returned: %s", m.Name, m.Content)
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}
	params.Messages = mergeAdjacentTurns(turns)

	for _, t := range functions {
		if t.Function == nil {
			continue
		}
		schema, err := toInputSchema(t.Function.Parameters)
		if err != nil {
			return chat.Message{}, fmt.Errorf("function %s: %w", t.Function.Name, err)
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Function.Name,
				Description: anthropic.String(t.Function.Description),
				InputSchema: schema,
			},
		})
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return chat.Message{}, fmt.Errorf("message completion: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			return chat.AssistantCall(chat.FunctionCall{
				Name:      v.Name,
				Arguments: string(v.Input),
			}), nil
		case anthropic.TextBlock:
			text += v.Text
		}
	}
	return chat.Assistant(text), nil
}

// mergeAdjacentTurns joins consecutive same-role turns; the API requires
// alternating roles.
func mergeAdjacentTurns(turns []anthropic.MessageParam) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, t := range turns {
		if len(out) > 0 && out[len(out)-1].Role == t.Role {
			out[len(out)-1].Content = append(out[len(out)-1].Content, t.Content...)
			continue
		}
		out = append(out, t)
	}
	return out
}

func toInputSchema(parameters any) (anthropic.ToolInputSchemaParam, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	var obj struct {
		Properties any      `json:"properties"`
		Required   []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	return anthropic.ToolInputSchemaParam{
		Properties: obj.Properties,
		Required:   obj.Required,
	}, nil
}
