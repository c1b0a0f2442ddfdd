package reflect

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

// Command returns the reflect sub-command tree.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "reflect",
		Usage: "Record and inspect reflections",
		Commands: []*cli.Command{
			selfCommand(),
			emotionCommand(),
			insightsCommand(),
		},
	}
}

func selfCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:      "self",
		Usage:     "Record a self-reflection on a recent situation",
		ArgsUsage: "<situation-summary>",
		Flags: append(cmdutil.CommonFlags(&cfg),
			&cli.StringFlag{
				Name:  "trigger",
				Value: "manual",
				Usage: "What prompted the reflection (task_completion, error, feedback, periodic, manual)",
			},
			&cli.StringFlag{
				Name:  "went-well",
				Usage: "What went well",
			},
			&cli.StringFlag{
				Name:  "could-improve",
				Usage: "What could improve",
			},
			&cli.StringFlag{
				Name:  "lessons",
				Usage: "Lessons learned",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one <situation-summary> argument")
			}
			in := memory.SelfReflectionInput{
				Trigger:          cmd.String("trigger"),
				SituationSummary: cmd.Args().First(),
				WhatWentWell:     cmd.String("went-well"),
				WhatCouldImprove: cmd.String("could-improve"),
				LessonsLearned:   cmd.String("lessons"),
			}
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				r, err := svc.GenerateSelfReflection(ctx, in)
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(r)
			})
		},
	}
}

func emotionCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:      "emotion",
		Usage:     "Record the emotional texture of an interaction",
		ArgsUsage: "<content>",
		Flags: append(cmdutil.CommonFlags(&cfg),
			&cli.StringFlag{
				Name:  "type",
				Value: "interaction",
				Usage: "Reflection type",
			},
			&cli.FloatFlag{
				Name:  "mood",
				Usage: "Mood score in [-1,1]",
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
			var mood *float64
			if cmd.IsSet("mood") {
				v := cmd.Float("mood")
				mood = &v
			}
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				r, err := svc.ReflectOnInteraction(ctx, cmd.String("type"), content, mood)
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(r)
			})
		},
	}
}

func insightsCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "insights",
		Usage: "Summarize recent emotional reflections",
		Flags: append(cmdutil.CommonFlags(&cfg),
			&cli.IntFlag{
				Name:  "days",
				Value: 30,
				Usage: "Window size in days",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdutil.RunWithService(ctx, &cfg, func(ctx context.Context, svc *memory.Service) error {
				insights, err := svc.GetEmotionalInsights(ctx, cmd.Int("days"))
				if err != nil {
					return err
				}
				return cmdutil.PrintJSON(insights)
			})
		},
	}
}
