package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dshills/skim/internal/llm"
	"github.com/dshills/skim/internal/plan"
	"github.com/dshills/skim/internal/policy"
	"github.com/dshills/skim/internal/report"
	"github.com/dshills/skim/internal/skim"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitCodeOK               = 0
	exitCodeGeneric          = 1
	exitCodeBadInput         = 3
	exitCodeAPIError         = 4
	exitCodeBadOutput        = 5
	exitCodeBudget           = 6
	exitCodeGapUnsatisfiable = 7
)

// exitError carries a process exit code through cobra's RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func badInput(err error) error {
	return &exitError{code: exitCodeBadInput, err: err}
}

// classify maps pipeline errors to exit codes. Errors that already carry a
// code are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	code := exitCodeGeneric
	switch {
	case errors.Is(err, policy.ErrExhaustiveRequested), errors.Is(err, skim.ErrEmptyDocument):
		code = exitCodeBadInput
	case errors.Is(err, llm.ErrProviderFailed):
		code = exitCodeAPIError
	case errors.Is(err, llm.ErrInvalidModelOutput):
		code = exitCodeBadOutput
	case errors.Is(err, report.ErrBudgetInsufficient):
		code = exitCodeBudget
	case errors.Is(err, plan.ErrCoverageGapUnsatisfiable):
		code = exitCodeGapUnsatisfiable
	}
	return &exitError{code: code, err: err}
}

// hint suggests how to get past errors caused by a document that is long for
// the chosen profile.
func hint(err error) string {
	switch {
	case errors.Is(err, plan.ErrCoverageGapUnsatisfiable):
		return "raise --max-gap or use --profile log for very long documents"
	case errors.Is(err, report.ErrBudgetInsufficient):
		return "every planned range costs a coverage map row; raise --budget, " +
			"or plan fewer ranges with --profile log or a larger --max-gap"
	}
	return ""
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	debug      bool
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:   "skim",
		Short: "Bounded-budget document skimming with an explicit coverage map",
		Long: `skim reads a sample of a document under a fixed budget and reports what
it found, labelled by how it knows it, together with a map of exactly which
parts were and were not read.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configFile, "config", "", "config file (default: ./skim.yaml or $HOME/.skim/skim.yaml)")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "debug logging, including LLM prompts")

	root.AddCommand(
		newReadCmd(&g),
		newPlanCmd(&g),
		newInfoCmd(&g),
		newHistoryCmd(&g),
		newConfigCmd(&g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the skim version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "skim %s\n", version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		os.Exit(exitCodeOK)
	}
	fmt.Fprintln(os.Stderr, "skim:", err)

	var abort *skim.AbortError
	if errors.As(err, &abort) && len(abort.Map) > 0 {
		fmt.Fprintln(os.Stderr, "coverage before abort:")
		for _, seg := range abort.Map {
			fmt.Fprintf(os.Stderr, "  %s %s\n", seg.Range, seg.Status)
		}
	}
	if h := hint(err); h != "" {
		fmt.Fprintln(os.Stderr, "hint:", h)
	}

	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(exitCodeGeneric)
}
