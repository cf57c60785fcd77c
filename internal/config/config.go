// Package config loads skim settings from defaults, an optional skim.yaml and
// SKIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dshills/skim/internal/budget"
	"github.com/dshills/skim/internal/executor"
	"github.com/dshills/skim/internal/llm"
	"github.com/dshills/skim/internal/logging"
	"github.com/dshills/skim/internal/policy"
	"github.com/dshills/skim/internal/source"
)

// Summarizer names.
const (
	SummarizerExcerpt = "excerpt"
	SummarizerLLM     = "llm"
)

// Config is the full set of skim settings.
type Config struct {
	// Profile names a built-in sampling policy.
	Profile string `mapstructure:"profile" yaml:"profile"`
	// MaxGap overrides the profile's largest unread gap when positive.
	MaxGap int `mapstructure:"max_gap" yaml:"max_gap"`
	// Stride overrides the distance between periodic sample points when
	// positive.
	Stride int `mapstructure:"stride" yaml:"stride"`
	// Exhaustive asks for a complete read. It is carried into the policy
	// and refused there.
	Exhaustive bool             `mapstructure:"exhaustive" yaml:"exhaustive"`
	Summarizer string           `mapstructure:"summarizer" yaml:"summarizer"`
	Budget     budget.Caps      `mapstructure:"budget" yaml:"budget"`
	Executor   executor.Options `mapstructure:"executor" yaml:"executor"`
	Source     source.Config    `mapstructure:"source" yaml:"source"`
	LLM        llm.Options      `mapstructure:"llm" yaml:"llm"`
	Archive    ArchiveConfig    `mapstructure:"archive" yaml:"archive"`
	Log        logging.Config   `mapstructure:"log" yaml:"log"`
}

// ArchiveConfig locates the report archive. An empty path disables it.
type ArchiveConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Profile:    "general",
		Summarizer: SummarizerExcerpt,
		Budget:     budget.DefaultCaps(),
		Executor:   executor.DefaultOptions(),
		Source:     source.DefaultConfig(),
		LLM:        llm.DefaultOptions(),
		Log:        logging.DefaultConfig(),
	}
}

// setDefaults registers every leaf key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("profile", d.Profile)
	v.SetDefault("max_gap", d.MaxGap)
	v.SetDefault("stride", d.Stride)
	v.SetDefault("exhaustive", d.Exhaustive)
	v.SetDefault("summarizer", d.Summarizer)

	v.SetDefault("budget.step_cap", d.Budget.StepCap)
	v.SetDefault("budget.total_cap", d.Budget.TotalCap)

	v.SetDefault("executor.ceiling_chars", d.Executor.CeilingChars)
	v.SetDefault("executor.extract_timeout", d.Executor.Timeout)
	v.SetDefault("executor.parallelism", d.Executor.Parallelism)

	v.SetDefault("source.unit", d.Source.Unit)
	v.SetDefault("source.block_chars", d.Source.BlockChars)
	v.SetDefault("source.fetch_timeout", d.Source.FetchTimeout)
	v.SetDefault("source.user_agent", d.Source.UserAgent)
	v.SetDefault("source.max_bytes", d.Source.MaxBytes)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.attempts", d.LLM.Attempts)
	v.SetDefault("llm.retry_delay", d.LLM.RetryDelay)

	v.SetDefault("archive.path", d.Archive.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the configuration. cfgFile, when set, must exist; otherwise
// skim.yaml is looked up in the working directory and $HOME/.skim and may be
// absent. Environment variables use the SKIM_ prefix with dots replaced by
// underscores, e.g. SKIM_BUDGET_TOTAL_CAP.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("SKIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("skim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.skim")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that are not validated by their owning
// package at use time.
func (c *Config) Validate() error {
	if _, err := policy.Load(c.Profile); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MaxGap < 0 {
		return fmt.Errorf("config: max_gap must not be negative, got %d", c.MaxGap)
	}
	if c.Stride < 0 {
		return fmt.Errorf("config: stride must not be negative, got %d", c.Stride)
	}
	switch c.Summarizer {
	case SummarizerExcerpt, SummarizerLLM:
	default:
		return fmt.Errorf("config: unknown summarizer %q (want %s or %s)", c.Summarizer, SummarizerExcerpt, SummarizerLLM)
	}
	if err := c.Budget.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Executor.CeilingChars < 1 {
		return fmt.Errorf("config: executor.ceiling_chars must be positive, got %d", c.Executor.CeilingChars)
	}
	return nil
}

// Policy resolves the configured profile and applies the max_gap and
// stride overrides and the exhaustive request.
func (c *Config) Policy() (policy.Policy, error) {
	p, err := policy.Load(c.Profile)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("config: %w", err)
	}
	if c.MaxGap > 0 {
		p.MaxGap = c.MaxGap
	}
	if c.Stride > 0 {
		p.PeriodicStride = c.Stride
	}
	p.Exhaustive = c.Exhaustive
	if err := p.Validate(); err != nil {
		return policy.Policy{}, fmt.Errorf("config: %w", err)
	}
	return p, nil
}

// WriteDefault writes the default configuration as YAML to path. It refuses
// to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s already exists", path)
		}
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("config: marshal defaults: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}

	header := []byte(`# skim configuration
# Every key can be overridden with SKIM_<SECTION>_<KEY>, e.g. SKIM_BUDGET_TOTAL_CAP.
# LLM API keys are read from ANTHROPIC_API_KEY, OPENAI_API_KEY or GOOGLE_API_KEY.

`)
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
