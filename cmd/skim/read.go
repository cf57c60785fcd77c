package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/skim/internal/archive"
	"github.com/dshills/skim/internal/config"
	"github.com/dshills/skim/internal/llm"
	"github.com/dshills/skim/internal/policy"
	"github.com/dshills/skim/internal/render"
	"github.com/dshills/skim/internal/schema"
	"github.com/dshills/skim/internal/skim"
	"github.com/dshills/skim/internal/summarize"
)

// readFlags holds the resolved options of `skim read`.
type readFlags struct {
	commonFlags
	maxChars   int
	stepCap    int
	totalCap   int
	parallel   int
	summarizer string
	provider   string
	model      string
	archive    string
	// offline skips the API key pre-flight check.
	offline bool
}

func (f readFlags) apply(cfg *config.Config) {
	if f.maxChars > 0 {
		cfg.Executor.CeilingChars = f.maxChars
	}
	if f.stepCap > 0 {
		cfg.Budget.StepCap = f.stepCap
	}
	if f.totalCap > 0 {
		cfg.Budget.TotalCap = f.totalCap
	}
	if f.parallel > 0 {
		cfg.Executor.Parallelism = f.parallel
	}
	if f.summarizer != "" {
		cfg.Summarizer = f.summarizer
	}
	if f.provider != "" {
		cfg.LLM.Provider = f.provider
		if f.model == "" {
			cfg.LLM.Model = ""
		}
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if f.archive != "" {
		cfg.Archive.Path = f.archive
	}
}

func newReadCmd(g *globalFlags) *cobra.Command {
	var f readFlags
	cmd := &cobra.Command{
		Use:   "read <path|url>",
		Short: "Skim a document and report labelled findings with a coverage map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRead(cmd.Context(), f)
		},
	}
	f.register(cmd, g)
	fl := cmd.Flags()
	fl.IntVar(&f.maxChars, "max-chars", 0, "character ceiling per extraction call")
	fl.IntVar(&f.stepCap, "step-cap", 0, "word units allowed per report step")
	fl.IntVar(&f.totalCap, "budget", 0, "total word units allowed in the report")
	fl.IntVar(&f.parallel, "parallel", 0, "ranges fetched concurrently")
	fl.StringVar(&f.summarizer, "summarizer", "", "summarizer: excerpt (offline) or llm")
	fl.StringVar(&f.provider, "provider", "", "LLM provider: anthropic, openai or google")
	fl.StringVar(&f.model, "model", "", "LLM model (default depends on provider)")
	fl.StringVar(&f.archive, "archive", "", "save the report to this SQLite archive")
	return cmd
}

// runRead plans, executes and reports one skim of f.locator.
func runRead(ctx context.Context, f readFlags) error {
	cfg, log, err := resolve(f.commonFlags, f.apply)
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
	summ, err := newSummarizer(cfg, pol, f.debug, f.offline, log)
	if err != nil {
		return err
	}

	sess := skim.NewSession(src, summ, skim.Options{
		Executor: cfg.Executor,
		Version:  version,
		Logger:   log,
	})
	sp, err := sess.Plan(ctx, f.locator, pol)
	if err != nil {
		return classify(err)
	}
	if sp, err = f.requested(sp); err != nil {
		return err
	}
	run, err := sess.Run(ctx, sp)
	if err != nil {
		return classify(err)
	}
	rep, err := sess.Report(run, cfg.Budget)
	if err != nil {
		return classify(err)
	}

	if err := emitReport(rep, f.format, f.out, f.stdout); err != nil {
		return classify(err)
	}
	if cfg.Archive.Path != "" {
		if err := saveReport(ctx, cfg.Archive.Path, rep); err != nil {
			return classify(err)
		}
		log.Info("report archived", zap.String("path", cfg.Archive.Path), zap.String("session", rep.SessionID))
	}
	return nil
}

func newSummarizer(cfg *config.Config, pol policy.Policy, debug, offline bool, log *zap.Logger) (skim.Summarizer, error) {
	if cfg.Summarizer != config.SummarizerLLM {
		return summarize.Excerpt{}, nil
	}
	if !offline {
		env := llm.APIKeyEnv(cfg.LLM.Provider)
		if env == "" {
			return nil, badInput(fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider))
		}
		if os.Getenv(env) == "" {
			return nil, badInput(fmt.Errorf("%s is not set (required by --summarizer llm)", env))
		}
	}
	opts := cfg.LLM
	opts.Debug = debug
	return llm.New(opts, pol.PromptAddendum, log), nil
}

func emitReport(rep *schema.Report, format, out string, stdout io.Writer) error {
	var data []byte
	if format == formatJSON {
		b, err := render.JSON(rep)
		if err != nil {
			return err
		}
		data = b
	} else {
		data = []byte(render.Markdown(rep))
	}
	return writeOutput(out, stdout, data)
}

func saveReport(ctx context.Context, path string, rep *schema.Report) error {
	store, err := archive.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, rep)
}
