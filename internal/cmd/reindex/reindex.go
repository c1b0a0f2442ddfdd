package reindex

import (
	"context"

	"github.com/memkeep/memkeep/internal/cmd/cmdutil"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/urfave/cli/v3"
)

// Command returns the reindex sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "reindex",
		Usage: "Backfill embeddings for memories stored without one",
		Flags: append(cmdutil.CommonFlags(&cfg),
			&cli.IntFlag{
				Name:  "batch-size",
				Value: 10,
				Usage: "Maximum memories to reindex in one run",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				n, err := svc.ReindexEmbeddings(ctx, cmd.Int("batch-size"))
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(map[string]int{"reindexed": n})
			})
		},
	}
}
