package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/memkeep/memkeep/internal/cmd/cmdutil"
	"github.com/memkeep/memkeep/internal/config"
	registrymigrate "github.com/memkeep/memkeep/internal/registry/migrate"
	"github.com/urfave/cli/v3"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Flags: cmdutil.CommonFlags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.MigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
