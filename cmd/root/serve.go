package root

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/codeatlas/codeatlas/pkg/agent"
	"github.com/codeatlas/codeatlas/pkg/config"
	"github.com/codeatlas/codeatlas/pkg/environment"
	"github.com/codeatlas/codeatlas/pkg/indexer"
	"github.com/codeatlas/codeatlas/pkg/model/provider"
	"github.com/codeatlas/codeatlas/pkg/semantic"
	"github.com/codeatlas/codeatlas/pkg/server"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			vectors, texts, err := stores(cfg)
			if err != nil {
				return err
			}
			defer vectors.Close()
			defer texts.Close()

			emb, err := embedder(ctx, cfg)
			if err != nil {
				return err
			}

			llm, err := provider.New(ctx, &cfg.Answer, environment.OSProvider{})
			if err != nil {
				return err
			}

			deps := agent.Deps{
				LLM:              llm,
				Semantic:         semantic.New(vectors, emb, cfg.Namespace()),
				TextStore:        texts,
				RepoName:         cfg.RepoName,
				IndexName:        indexer.IndexName(cfg.RepoName),
				MaxContextTokens: cfg.MaxContextTokens,
				TokenHeadroom:    cfg.TokenHeadroom,
				Analytics: func(event string, queryID uuid.UUID) {
					slog.Info("analytics event", "event", event, "query_id", queryID)
				},
			}

			return server.New(deps).Start(cfg.Address)
		},
	}
}
