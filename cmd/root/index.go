package root

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/codeatlas/codeatlas/pkg/chunk"
	"github.com/codeatlas/codeatlas/pkg/config"
	"github.com/codeatlas/codeatlas/pkg/indexer"
)

func newIndexCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index the configured repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if cfg.RepoPath == "" {
				return errors.New("repo_path is required for indexing")
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

			ix := indexer.New(cfg, vectors, texts, emb, chunk.WordTokenizer{})
			return ix.IndexRepository(ctx)
		},
	}
}
