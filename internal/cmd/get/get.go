package get

import (
	"context"
	"fmt"
	"strconv"

	"github.com/memkeep/memkeep/internal/cmd/cmdutil"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/urfave/cli/v3"
)

// Command returns the get sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch a memory by id",
		ArgsUsage: "<id>",
		Flags:     cmdutil.CommonFlags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one <id> argument")
			}
			id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid memory id %q", cmd.Args().First())
			}
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				m, err := svc.GetMemory(ctx, id)
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(m)
			})
		},
	}
}
