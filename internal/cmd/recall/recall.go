package recall

import (
	"context"

	"github.com/memkeep/memkeep/internal/cmd/cmdutil"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/urfave/cli/v3"
)

// Command returns the recall sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:      "recall",
		Usage:     "Retrieve memories by semantic or textual search",
		ArgsUsage: "[query]",
		Flags: append(cmdutil.CommonFlags(&cfg),
			&cli.StringFlag{
				Name:  "type",
				Usage: "Restrict to one memory type",
			},
			&cli.IntFlag{
				Name:  "limit",
				Value: 10,
				Usage: "Maximum number of memories to return",
			},
			&cli.FloatFlag{
				Name:  "importance-threshold",
				Usage: "Minimum importance score",
			},
			&cli.BoolFlag{
				Name:  "all-projects",
				Usage: "Search across all projects, not just the current one",
			},
			&cli.BoolFlag{
				Name:  "weighted",
				Usage: "Re-rank by weighted importance, recency, and relevance",
			},
			&cli.FloatFlag{
				Name:  "importance-weight",
				Value: 0.4,
				Usage: "Weight of importance in weighted recall",
			},
			&cli.FloatFlag{
				Name:  "recency-weight",
				Value: 0.3,
				Usage: "Weight of recency in weighted recall",
			},
			&cli.FloatFlag{
				Name:  "relevance-weight",
				Value: 0.3,
				Usage: "Weight of semantic relevance in weighted recall",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			q := memory.RecallQuery{
				Query:                cmd.Args().First(),
				MemoryType:           cmd.String("type"),
				Limit:                cmd.Int("limit"),
				ImportanceThreshold:  cmd.Float("importance-threshold"),
				IncludeOtherProjects: cmd.Bool("all-projects"),
			}
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				if cmd.Bool("weighted") {
					w := memory.Weights{
						Importance: cmd.Float("importance-weight"),
						Recency:    cmd.Float("recency-weight"),
						Relevance:  cmd.Float("relevance-weight"),
					}
					results, err := svc.RecallWeighted(ctx, q, w)
					if err != nil {
						return err
					}
					return cmdutil.PrintJSON(results)
				}
				results, err := svc.Recall(ctx, q)
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(results)
			})
		},
	}
}
