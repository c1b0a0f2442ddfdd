package summary

import (
	"context"

	"github.com/memkeep/memkeep/internal/cmd/cmdutil"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/urfave/cli/v3"
)

// Command returns the summary sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "summary",
		Usage: "Summarize the project's memories per type",
		Flags: cmdutil.CommonFlags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				s, err := svc.Summarize(ctx)
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(s)
			})
		},
	}
}
