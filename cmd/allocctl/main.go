package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/okian/seatalloc/internal/allocctl"
	"github.com/okian/seatalloc/internal/domain/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "allocctl",
		Usage: "Run, check and load seat allocation snapshots",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "log format: text or json",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log every placement",
			},
		},
		Before: func(c *cli.Context) error {
			return allocctl.SetupLogging(c.String("log-format"), c.Bool("verbose"))
		},
		Commands: []*cli.Command{
			runCmd,
			validateCmd,
			verifyCmd,
			generateCmd,
			pushCmd,
		},
	}
}

var inputFlag = &cli.StringFlag{
	Name:     "snapshot",
	Aliases:  []string{"s"},
	Required: true,
	Usage:    "specify the input snapshot YAML",
}

var categoryFlag = &cli.StringFlag{
	Name:    "category",
	Aliases: []string{"c"},
	Usage:   "category to process (elective, life_skill); optional for single-category snapshots",
}

var metricFlag = &cli.StringFlag{
	Name:  "merit-metric",
	Usage: "override the snapshot's merit metric (percentage, cgpa)",
}

var runCmd = &cli.Command{
	Name:    "run",
	Usage:   "Run an offline allocation pass over a snapshot",
	Aliases: []string{"r"},
	Flags: []cli.Flag{
		inputFlag,
		categoryFlag,
		metricFlag,
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Value:   "-",
			Usage:   "specify the output result YAML (- for stdout)",
		},
	},
	Action: func(c *cli.Context) error {
		_, err := allocctl.Run(c.Context, &allocctl.Config{
			Input:       c.String("snapshot"),
			Output:      c.String("output"),
			Category:    model.Category(c.String("category")),
			MeritMetric: c.String("merit-metric"),
			Verbose:     c.Bool("verbose"),
		})
		return err
	},
}

var validateCmd = &cli.Command{
	Name:  "validate",
	Usage: "Check a snapshot without allocating",
	Flags: []cli.Flag{inputFlag, categoryFlag},
	Action: func(c *cli.Context) error {
		return allocctl.Validate(c.Context, &allocctl.Config{
			Input:    c.String("snapshot"),
			Category: model.Category(c.String("category")),
		})
	},
}

var verifyCmd = &cli.Command{
	Name:  "verify",
	Usage: "Check a result file against the snapshot it was computed from",
	Flags: []cli.Flag{
		inputFlag,
		categoryFlag,
		metricFlag,
		&cli.StringFlag{
			Name:     "result",
			Required: true,
			Usage:    "specify the result YAML written by run",
		},
	},
	Action: func(c *cli.Context) error {
		_, err := allocctl.VerifyFile(c.Context, &allocctl.Config{
			Input:       c.String("snapshot"),
			Category:    model.Category(c.String("category")),
			MeritMetric: c.String("merit-metric"),
		}, c.String("result"))
		return err
	},
}

var generateCmd = &cli.Command{
	Name:  "generate",
	Usage: "Write a synthetic snapshot",
	Flags: []cli.Flag{
		categoryFlag,
		&cli.IntFlag{Name: "applicants", Value: allocctl.DefaultApplicants, Usage: "number of applicants"},
		&cli.IntFlag{Name: "resources", Value: allocctl.DefaultResources, Usage: "number of resources"},
		&cli.IntFlag{Name: "preferences", Value: allocctl.DefaultPreferences, Usage: "choices per applicant"},
		&cli.IntFlag{Name: "confirmed", Usage: "applicants that already hold a confirmed seat"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "-", Usage: "specify the output snapshot YAML (- for stdout)"},
	},
	Action: func(c *cli.Context) error {
		category := model.CategoryElective
		if v := c.String("category"); v != "" {
			parsed, err := model.ParseCategory(v)
			if err != nil {
				return err
			}
			category = parsed
		}
		_, err := allocctl.Generate(c.Context, &allocctl.GenerateConfig{
			Category:    category,
			Applicants:  c.Int("applicants"),
			Resources:   c.Int("resources"),
			Preferences: c.Int("preferences"),
			Confirmed:   c.Int("confirmed"),
			Output:      c.String("output"),
		})
		return err
	},
}

var pushCmd = &cli.Command{
	Name:  "push",
	Usage: "Load a snapshot into a running server and trigger a pass",
	Flags: []cli.Flag{
		inputFlag,
		categoryFlag,
		&cli.StringFlag{Name: "url", Value: allocctl.DefaultBaseURL, Usage: "base URL of the service"},
		&cli.DurationFlag{Name: "timeout", Value: allocctl.DefaultTimeout, Usage: "HTTP request timeout"},
		&cli.BoolFlag{Name: "async", Usage: "queue the pass and poll for its report"},
	},
	Action: func(c *cli.Context) error {
		_, err := allocctl.Push(c.Context, &allocctl.Config{
			BaseURL:  c.String("url"),
			Timeout:  c.Duration("timeout"),
			Input:    c.String("snapshot"),
			Category: model.Category(c.String("category")),
			Async:    c.Bool("async"),
			Verbose:  c.Bool("verbose"),
		})
		return err
	},
}
