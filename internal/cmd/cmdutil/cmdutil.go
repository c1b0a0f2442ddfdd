// Package cmdutil holds the flag set and service wiring shared by all
// sub-commands.
package cmdutil

import (
	"context"
	"encoding/json"
	"os"

	"github.com/charmbracelet/log"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	registrymigrate "github.com/memkeep/memkeep/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration.
	_ "github.com/memkeep/memkeep/internal/plugin/cache/noop"
	_ "github.com/memkeep/memkeep/internal/plugin/cache/redis"
	_ "github.com/memkeep/memkeep/internal/plugin/cache/ristretto"
	_ "github.com/memkeep/memkeep/internal/plugin/embed/disabled"
	_ "github.com/memkeep/memkeep/internal/plugin/embed/local"
	_ "github.com/memkeep/memkeep/internal/plugin/embed/openai"
	_ "github.com/memkeep/memkeep/internal/plugin/store/memory"
	_ "github.com/memkeep/memkeep/internal/plugin/store/postgres"
)

// CommonFlags returns the backend and scope flags shared by every command,
// with destinations wired into cfg.
func CommonFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{

		// ── Storage ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Storage:",
			Sources:     cli.EnvVars("MEMKEEP_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "PostgreSQL connection URL; empty uses the in-process store",
		},
		&cli.StringFlag{
			Name:        "store",
			Category:    "Storage:",
			Sources:     cli.EnvVars("MEMKEEP_STORE"),
			Destination: &cfg.StoreType,
			Usage:       "Store backend (postgres|memory); defaults from --db-url",
		},
		&cli.BoolFlag{
			Name:        "migrate-at-start",
			Category:    "Storage:",
			Sources:     cli.EnvVars("MEMKEEP_MIGRATE_AT_START"),
			Destination: &cfg.MigrateAtStart,
			Value:       cfg.MigrateAtStart,
			Usage:       "Run schema migrations before the command",
		},

		// ── Embeddings ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "embed",
			Category:    "Embeddings:",
			Sources:     cli.EnvVars("MEMKEEP_EMBED"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (local|openai|none)",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MEMKEEP_CACHE"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Memory cache backend (ristretto|redis|none)",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MEMKEEP_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL for the redis cache",
		},

		// ── Scope ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "project",
			Category:    "Scope:",
			Sources:     cli.EnvVars("MEMKEEP_PROJECT_ID"),
			Destination: &cfg.ProjectID,
			Usage:       "Project id; defaults to the git repository name",
		},
		&cli.StringFlag{
			Name:        "session",
			Category:    "Scope:",
			Sources:     cli.EnvVars("MEMKEEP_SESSION_ID"),
			Destination: &cfg.SessionID,
			Usage:       "Session id; defaults to a generated id",
		},
		&cli.StringFlag{
			Name:        "ai-instance",
			Category:    "Scope:",
			Sources:     cli.EnvVars("MEMKEEP_AI_INSTANCE_ID"),
			Destination: &cfg.AIInstanceID,
			Value:       cfg.AIInstanceID,
			Usage:       "Identity owning the persona self-model",
		},
	}
}

// RunWithService resolves scope, runs startup migrations when configured,
// builds the Service, runs fn, and closes the service afterwards.
func RunWithService(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, svc *memory.Service) error) error {
	cfg.ResolveScope()
	ctx = config.WithContext(ctx, cfg)
	if err := registrymigrate.RunAll(ctx); err != nil {
		// The service falls back to the in-process store when the database
		// is unreachable, so startup migration failures are not fatal here.
		log.Warn("Startup migration failed", "error", err)
	}
	svc, err := memory.New(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc)
}

// PrintJSON writes v to stdout as indented JSON.
func PrintJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
