package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/memkeep/memkeep/internal/cmd/cleanup"
	"github.com/memkeep/memkeep/internal/cmd/decay"
	"github.com/memkeep/memkeep/internal/cmd/get"
	"github.com/memkeep/memkeep/internal/cmd/migrate"
	"github.com/memkeep/memkeep/internal/cmd/persona"
	"github.com/memkeep/memkeep/internal/cmd/recall"
	"github.com/memkeep/memkeep/internal/cmd/reflect"
	"github.com/memkeep/memkeep/internal/cmd/reindex"
	"github.com/memkeep/memkeep/internal/cmd/store"
	"github.com/memkeep/memkeep/internal/cmd/summary"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "memkeep",
		Usage: "Persistent memory engine for AI assistants",
		Commands: []*cli.Command{
			store.Command(),
			get.Command(),
			recall.Command(),
			summary.Command(),
			cleanup.Command(),
			decay.Command(),
			reindex.Command(),
			persona.Command(),
			reflect.Command(),
			migrate.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
