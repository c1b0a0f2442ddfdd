package persona

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/memkeep/memkeep/internal/cmd/cmdutil"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/model"
	"github.com/urfave/cli/v3"
)

// Command returns the persona sub-command tree.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "persona",
		Usage: "Track and inspect the assistant's self-model",
		Commands: []*cli.Command{
			setCommand(),
			showCommand(),
			evolutionCommand(),
		},
	}
}

func setCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:      "set",
		Usage:     "Record an observation about a persona attribute",
		ArgsUsage: "<persona-type> <attribute-name> <value>",
		Flags: append(cmdutil.CommonFlags(&cfg),
			&cli.FloatFlag{
				Name:  "confidence",
				Value: 0.5,
				Usage: "Confidence in the observation, in [0,1]",
			},
			&cli.BoolFlag{
				Name:  "json-value",
				Usage: "Parse <value> as a JSON document instead of plain text",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 3 {
				return fmt.Errorf("expected <persona-type> <attribute-name> <value>")
			}
			var value interface{} = cmd.Args().Get(2)
			if cmd.Bool("json-value") {
				var doc model.Document
				if err := json.Unmarshal([]byte(cmd.Args().Get(2)), &doc); err != nil {
					return fmt.Errorf("invalid JSON value: %w", err)
				}
				value = doc
			}
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				result, err := svc.StorePersonaAttribute(ctx, cmd.Args().Get(0), cmd.Args().Get(1), value, cmd.Float("confidence"))
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(result)
			})
		},
	}
}

func showCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "show",
		Usage: "Show the current self-model grouped by persona type",
		Flags: append(cmdutil.CommonFlags(&cfg),
			&cli.StringFlag{
				Name:  "type",
				Usage: "Restrict to one persona type",
			},
			&cli.FloatFlag{
				Name:  "min-confidence",
				Usage: "Only attributes at or above this confidence",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				grouped, err := svc.GetPersona(ctx, cmd.String("type"), cmd.Float("min-confidence"))
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(grouped)
			})
		},
	}
}

func evolutionCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "evolution",
		Usage: "Show how the self-model changed recently",
		Flags: append(cmdutil.CommonFlags(&cfg),
			&cli.IntFlag{
				Name:  "days",
				Value: 30,
				Usage: "Window size in days",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Restrict to one persona type",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				evolution, err := svc.GetPersonaEvolution(ctx, cmd.Int("days"), cmd.String("type"))
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(evolution)
			})
		},
	}
}
