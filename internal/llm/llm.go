// Package llm is the model-backed summarizer: it builds prompts from the
// observed samples and the coverage map, calls a provider, validates the
// JSON reply against a schema and makes one repair attempt. Unread units
// never reach the prompt; the model learns about them only from the map.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/dshills/skim/internal/schema"
)

// ErrInvalidModelOutput is returned when both the initial and repair
// responses fail validation. The CLI exits with code 5.
var ErrInvalidModelOutput = errors.New("llm: invalid model output after repair attempt")

// ErrProviderFailed wraps provider construction and API failures. The CLI
// exits with code 4.
var ErrProviderFailed = errors.New("llm: provider failed")

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating LLM providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Options configures a Summarizer.
type Options struct {
	Provider    string        `mapstructure:"provider" yaml:"provider" json:"provider"`
	Model       string        `mapstructure:"model" yaml:"model" json:"model"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	Attempts    uint          `mapstructure:"attempts" yaml:"attempts" json:"attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	Debug       bool          `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultOptions returns the anthropic provider with its default model, a
// 4096-token reply, temperature 0.2 and three attempts per call.
func DefaultOptions() Options {
	return Options{
		Provider:    "anthropic",
		MaxTokens:   4096,
		Temperature: 0.2,
		Attempts:    3,
		RetryDelay:  time.Second,
	}
}

// Summarizer proposes candidate findings with a language model.
type Summarizer struct {
	opts     Options
	addendum string
	log      *zap.Logger
}

// New returns a Summarizer. addendum is appended to the system prompt,
// typically the active policy profile's prompt addendum.
func New(opts Options, addendum string, log *zap.Logger) *Summarizer {
	def := DefaultOptions()
	if opts.Provider == "" {
		opts.Provider = def.Provider
	}
	opts.Provider = strings.ToLower(opts.Provider)
	if opts.Model == "" {
		opts.Model = defaultModel(opts.Provider)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Attempts == 0 {
		opts.Attempts = def.Attempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Summarizer{opts: opts, addendum: addendum, log: log}
}

// Summarize builds a prompt, calls the LLM, validates the response, and
// performs one repair attempt if validation fails.
func (s *Summarizer) Summarize(ctx context.Context, in schema.SummaryInput) ([]schema.Candidate, error) {
	provider, err := NewProvider(s.opts.Provider, s.opts.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: create provider: %v", ErrProviderFailed, err)
	}

	sysPrompt := buildSystemPrompt(s.addendum)
	userPrompt := buildUserPrompt(in)
	if s.opts.Debug {
		s.log.Debug("llm prompt",
			zap.String("provider", s.opts.Provider),
			zap.String("model", s.opts.Model),
			zap.String("system", sysPrompt),
			zap.String("user", userPrompt))
	}

	raw, err := s.complete(ctx, provider, sysPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	cands, verrs := ValidateResponse(raw, in.Total)
	if !needsRepair(verrs) {
		s.logSoft(verrs)
		return cands, nil
	}

	s.log.Warn("model output invalid, attempting repair", zap.Int("errors", len(verrs)))
	raw2, err := s.complete(ctx, provider, sysPrompt, buildRepairPrompt(userPrompt, raw, verrs))
	if err != nil {
		return nil, err
	}
	cands2, verrs2 := ValidateResponse(raw2, in.Total)
	if !needsRepair(verrs2) {
		s.logSoft(verrs2)
		return cands2, nil
	}
	return nil, ErrInvalidModelOutput
}

// complete calls the provider, retrying failures other than cancellation.
func (s *Summarizer) complete(ctx context.Context, p Provider, sys, user string) (string, error) {
	var out string
	err := retry.Do(
		func() error {
			raw, err := p.Complete(ctx, sys, user, s.opts.MaxTokens, s.opts.Temperature)
			if err != nil {
				return err
			}
			out = raw
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.opts.Attempts),
		retry.Delay(s.opts.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded) &&
				!errors.Is(err, errReplyTruncated)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.log.Warn("provider call failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderFailed, s.opts.Provider, err)
	}
	return out, nil
}

func (s *Summarizer) logSoft(errs []ValidationError) {
	for _, e := range errs {
		s.log.Debug("model output issue", zap.String("field", e.Field), zap.String("message", e.Message))
	}
}
