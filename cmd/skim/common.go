package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/skim/internal/config"
	"github.com/dshills/skim/internal/logging"
	"github.com/dshills/skim/internal/plan"
	"github.com/dshills/skim/internal/schema"
	"github.com/dshills/skim/internal/source"
)

// Output formats.
const (
	formatJSON     = "json"
	formatMarkdown = "md"
)

// commonFlags are the document and output options shared by read, plan and
// info. Zero values leave the configured setting in place.
type commonFlags struct {
	locator    string
	configFile string
	debug      bool
	profile    string
	maxGap     int
	stride     int
	exhaustive bool
	ranges     string
	unit       string
	format     string
	out        string
	stdout     io.Writer
}

func (c *commonFlags) register(cmd *cobra.Command, g *globalFlags) {
	fl := cmd.Flags()
	fl.StringVar(&c.profile, "profile", "", "sampling profile: brief, general, log or paged")
	fl.IntVar(&c.maxGap, "max-gap", 0, "largest run of unread units allowed between samples")
	fl.IntVar(&c.stride, "stride", 0, "units between periodic sample points (default: derived from the size)")
	fl.BoolVar(&c.exhaustive, "exhaustive", false, "request a complete read (always refused)")
	fl.StringVar(&c.ranges, "ranges", "", "also read these units in full, e.g. 1-10,50-60")
	fl.StringVar(&c.unit, "unit", "", "unit for text files: line or block")
	fl.StringVar(&c.format, "format", formatMarkdown, "output format: md or json")
	fl.StringVar(&c.out, "out", "", "write output to this file instead of stdout")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		c.configFile = g.configFile
		c.debug = g.debug
		c.stdout = cmd.OutOrStdout()
		if len(args) > 0 {
			c.locator = args[0]
		}
	}
}

func (c commonFlags) apply(cfg *config.Config) {
	if c.profile != "" {
		cfg.Profile = c.profile
	}
	if c.maxGap > 0 {
		cfg.MaxGap = c.maxGap
	}
	if c.stride > 0 {
		cfg.Stride = c.stride
	}
	if c.exhaustive {
		cfg.Exhaustive = true
	}
	if c.unit != "" {
		cfg.Source.Unit = c.unit
	}
}

// requested parses --ranges and adds them to sp.
func (c commonFlags) requested(sp schema.SamplePlan) (schema.SamplePlan, error) {
	if strings.TrimSpace(c.ranges) == "" {
		return sp, nil
	}
	reqs, err := schema.ParseRanges(c.ranges)
	if err != nil {
		return schema.SamplePlan{}, badInput(err)
	}
	out, err := plan.Require(sp, reqs)
	if err != nil {
		return schema.SamplePlan{}, badInput(err)
	}
	return out, nil
}

// resolve loads the configuration, applies flag overrides and builds the
// logger. All failures are bad input.
func resolve(c commonFlags, overrides ...func(*config.Config)) (*config.Config, *zap.Logger, error) {
	if c.locator == "" {
		return nil, nil, badInput(fmt.Errorf("a document path or URL is required"))
	}
	switch c.format {
	case formatJSON, formatMarkdown:
	default:
		return nil, nil, badInput(fmt.Errorf("unknown format %q (want md or json)", c.format))
	}

	cfg, err := config.Load(c.configFile)
	if err != nil {
		return nil, nil, badInput(err)
	}
	c.apply(cfg)
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, badInput(err)
	}

	lc := cfg.Log
	if c.debug {
		lc.Level = "debug"
	}
	log, err := logging.New(lc)
	if err != nil {
		return nil, nil, badInput(err)
	}
	return cfg, log, nil
}

// openSource checks that a local document exists before handing it to the
// source layer, so a typo is reported instead of degrading to an estimated
// plan.
func openSource(locator string, cfg source.Config) (source.Source, error) {
	if !isURL(locator) {
		st, err := os.Stat(locator)
		if err != nil {
			return nil, badInput(fmt.Errorf("open %s: %w", locator, err))
		}
		if st.IsDir() {
			return nil, badInput(fmt.Errorf("open %s: is a directory", locator))
		}
	}
	src, err := source.Open(locator, cfg)
	if err != nil {
		return nil, badInput(err)
	}
	return src, nil
}

func isURL(locator string) bool {
	u, err := url.Parse(locator)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// writeOutput writes data to the --out file, or to stdout when none is set.
func writeOutput(out string, stdout io.Writer, data []byte) error {
	if !strings.HasSuffix(string(data), "\n") {
		data = append(data, '\n')
	}
	if out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		return nil
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	_, err := stdout.Write(data)
	return err
}
