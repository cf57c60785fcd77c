package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dshills/skim/internal/render"
	"github.com/dshills/skim/internal/skim"
)

func newPlanCmd(g *globalFlags) *cobra.Command {
	var f commonFlags
	cmd := &cobra.Command{
		Use:   "plan <path|url>",
		Short: "Show the sample plan for a document without reading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd.Context(), f)
		},
	}
	f.register(cmd, g)
	return cmd
}

// runPlan measures the document and prints its sample plan. Nothing beyond
// the size probe and headings is read.
func runPlan(ctx context.Context, f commonFlags) error {
	cfg, log, err := resolve(f)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	pol, err := cfg.Policy()
	if err != nil {
		return badInput(err)
	}
	src, err := openSource(f.locator, cfg.Source)
	if err != nil {
		return err
	}
	sess := skim.NewSession(src, nil, skim.Options{Executor: cfg.Executor, Version: version, Logger: log})
	sp, err := sess.Plan(ctx, f.locator, pol)
	if err != nil {
		return classify(err)
	}
	if sp, err = f.requested(sp); err != nil {
		return err
	}

	var data []byte
	if f.format == formatJSON {
		if data, err = render.JSON(sp); err != nil {
			return classify(err)
		}
	} else {
		data = []byte(render.PlanMarkdown(sp))
	}
	return classify(writeOutput(f.out, f.stdout, data))
}
