package cleanup

import (
	"context"

	"github.com/memkeep/memkeep/internal/cmd/cmdutil"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/urfave/cli/v3"
)

// Command returns the cleanup sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete expired memories",
		Flags: cmdutil.CommonFlags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				deleted, err := svc.Cleanup(ctx)
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(map[string]int64{"deleted": deleted})
			})
		},
	}
}
