package decay

import (
	"context"

	"github.com/memkeep/memkeep/internal/cmd/cmdutil"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/urfave/cli/v3"
)

// Command returns the decay sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "decay",
		Usage: "Apply the forgetting curve to old, rarely accessed memories",
		Flags: append(cmdutil.CommonFlags(&cfg),
			&cli.IntFlag{
				Name:  "days",
				Value: 7,
				Usage: "Only memories older than this many days decay",
			},
			&cli.IntFlag{
				Name:  "access-threshold",
				Value: 1,
				Usage: "Only memories with at most this many accesses decay",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Report what would decay without writing",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts := memory.DecayOptions{
				DaysThreshold:   cmd.Int("days"),
				AccessThreshold: int64(cmd.Int("access-threshold")),
				DryRun:          cmd.Bool("dry-run"),
			}
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				report, err := svc.ApplyForgettingCurve(ctx, opts)
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(report)
			})
		},
	}
}
