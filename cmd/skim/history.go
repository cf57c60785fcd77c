package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/skim/internal/archive"
	"github.com/dshills/skim/internal/config"
	"github.com/dshills/skim/internal/render"
)

type historyFlags struct {
	configFile string
	archive    string
	session    string
	limit      int
	format     string
	out        string
	stdout     io.Writer
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var f historyFlags
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List archived reports, or re-render one by session id",
		Args:  cobra.MaximumNArgs(1),
		PreRun: func(cmd *cobra.Command, args []string) {
			f.configFile = g.configFile
			f.stdout = cmd.OutOrStdout()
			if len(args) == 1 {
				f.session = args[0]
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd.Context(), f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.archive, "archive", "", "SQLite archive to read (default: archive.path from config)")
	fl.IntVar(&f.limit, "limit", 20, "number of entries to list (0 for all)")
	fl.StringVar(&f.format, "format", formatMarkdown, "output format: md or json")
	fl.StringVar(&f.out, "out", "", "write output to this file instead of stdout")
	return cmd
}

func runHistory(ctx context.Context, f historyFlags) error {
	if f.format != formatJSON && f.format != formatMarkdown {
		return badInput(fmt.Errorf("unknown format %q (want md or json)", f.format))
	}
	path := f.archive
	if path == "" {
		cfg, err := config.Load(f.configFile)
		if err != nil {
			return badInput(err)
		}
		path = cfg.Archive.Path
	}
	if path == "" {
		return badInput(fmt.Errorf("no archive configured: pass --archive or set archive.path"))
	}

	store, err := archive.Open(ctx, path)
	if err != nil {
		return classify(err)
	}
	defer store.Close()

	if f.session != "" {
		rep, err := store.Get(ctx, f.session)
		if err != nil {
			return badInput(err)
		}
		return classify(emitReport(rep, f.format, f.out, f.stdout))
	}

	entries, err := store.List(ctx, f.limit)
	if err != nil {
		return classify(err)
	}
	var data []byte
	if f.format == formatJSON {
		if data, err = render.JSON(entries); err != nil {
			return classify(err)
		}
	} else {
		data = []byte(render.HistoryMarkdown(entries))
	}
	return classify(writeOutput(f.out, f.stdout, data))
}
