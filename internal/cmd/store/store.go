package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memkeep/memkeep/internal/cmd/cmdutil"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/model"
	"github.com/urfave/cli/v3"
)

// Command returns the store sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:      "store",
		Usage:     "Store a new memory",
		ArgsUsage: "<content>",
		Flags: append(cmdutil.CommonFlags(&cfg),
			&cli.StringFlag{
				Name:  "type",
				Value: "note",
				Usage: "Memory type (note, decision, solution, ...)",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Short label for the memory",
			},
			&cli.FloatFlag{
				Name:  "importance",
				Value: 0.5,
				Usage: "Importance score in [0,1]",
			},
			&cli.StringSliceFlag{
				Name:  "tag",
				Usage: "Tag to attach; repeatable",
			},
			&cli.IntFlag{
				Name:  "expires-in-days",
				Usage: "Days until the memory expires; 0 means never",
			},
			&cli.BoolFlag{
				Name:  "json-content",
				Usage: "Parse <content> as a JSON document instead of plain text",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one <content> argument")
			}

			var content interface{} = cmd.Args().First()
			if cmd.Bool("json-content") {
				var doc model.Document
				if err := json.Unmarshal([]byte(cmd.Args().First()), &doc); err != nil {
					return fmt.Errorf("invalid JSON content: %w", err)
				}
				content = doc
			}

			in := memory.StoreInput{
				MemoryType: cmd.String("type"),
				Content:    content,
				Tags:       cmd.StringSlice("tag"),
			}
			if cmd.IsSet("title") {
				title := cmd.String("title")
				in.Title = &title
			}
			importance := cmd.Float("importance")
			in.Importance = &importance
			if days := cmd.Int("expires-in-days"); days > 0 {
				expires := time.Now().AddDate(0, 0, days)
				in.ExpiresAt = &expires
			}

			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				result, err := svc.StoreMemory(ctx, in)
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(result)
			})
		},
	}
}
