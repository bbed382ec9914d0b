// Package provider defines the model provider contract and its factory.
// Concrete clients live in the openai and anthropic subpackages.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeatlas/codeatlas/pkg/chat"
	"github.com/codeatlas/codeatlas/pkg/config"
	"github.com/codeatlas/codeatlas/pkg/environment"
	"github.com/codeatlas/codeatlas/pkg/model/provider/anthropic"
	"github.com/codeatlas/codeatlas/pkg/model/provider/openai"
	"github.com/codeatlas/codeatlas/pkg/tools"
)

// Provider is the chat surface the agent loop drives. Implementations are
// process-wide, read-mostly resources constructed once at startup.
type Provider interface {
	// CreateChatCompletion runs one completion. When functions are
	// advertised the returned message may carry a FunctionCall.
	CreateChatCompletion(ctx context.Context, messages []chat.Message, functions []tools.Tool) (chat.Message, error)
}

// EmbeddingProvider is implemented by providers that can embed text.
type EmbeddingProvider interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// New builds a provider from configuration.
func New(ctx context.Context, cfg *config.ModelConfig, env environment.Provider) (Provider, error) {
	slog.Debug("creating model provider", "type", cfg.Type, "model", cfg.Model)

	switch cfg.Type {
	case "openai":
		return openai.NewClient(ctx, cfg, env)
	case "anthropic":
		return anthropic.NewClient(ctx, cfg, env)
	}
	return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
}

// NewEmbedder builds an embedding provider from configuration.
func NewEmbedder(ctx context.Context, cfg *config.ModelConfig, env environment.Provider) (EmbeddingProvider, error) {
	switch cfg.Type {
	case "openai":
		return openai.NewClient(ctx, cfg, env)
	}
	return nil, fmt.Errorf("provider %s does not support embeddings", cfg.Type)
}
