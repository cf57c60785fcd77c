package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/skim/internal/render"
	"github.com/dshills/skim/internal/skim"
	"github.com/dshills/skim/internal/source"
	"github.com/dshills/skim/internal/structure"
)

type infoFlags struct {
	commonFlags
	docFormat string
}

func newInfoCmd(g *globalFlags) *cobra.Command {
	var f infoFlags
	cmd := &cobra.Command{
		Use:   "info <path|url>",
		Short: "Describe a document: size, headings, sections and the recommended plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInfo(cmd.Context(), f)
		},
	}
	f.register(cmd, g)
	cmd.Flags().StringVar(&f.docFormat, "doc-format", "auto", "heading style: auto, markdown, latex, book or plain")
	return cmd
}

func runInfo(ctx context.Context, f infoFlags) error {
	docFormat, err := structure.ParseFormat(f.docFormat)
	if err != nil {
		return badInput(err)
	}
	cfg, log, err := resolve(f.commonFlags)
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

	var view render.Info
	if d, ok := src.(source.Describer); ok {
		if view.Source, err = d.Describe(ctx, f.locator); err != nil {
			return classify(err)
		}
		if len(view.Source.Lines) > 0 {
			o := structure.Analyze(view.Source.Lines, docFormat)
			view.Outline = &o
		} else if st, ok := src.(skim.Structurer); ok {
			hs, err := st.Structure(ctx, f.locator)
			if err != nil {
				log.Debug("outline unavailable", zap.Error(err))
			} else if len(hs) > 0 {
				o := structure.FromHeadings(hs, view.Source.Total)
				view.Outline = &o
			}
		}
	}

	sess := skim.NewSession(src, nil, skim.Options{Executor: cfg.Executor, Version: version, Logger: log})
	if view.Plan, err = sess.Plan(ctx, f.locator, pol); err != nil {
		return classify(err)
	}
	if view.Source.Locator == "" {
		view.Source = source.Info{Locator: f.locator, Units: view.Plan.Units, Total: view.Plan.Total}
	}

	var data []byte
	if f.format == formatJSON {
		if data, err = render.JSON(view); err != nil {
			return classify(err)
		}
	} else {
		data = []byte(render.InfoMarkdown(view))
	}
	return classify(writeOutput(f.out, f.stdout, data))
}
