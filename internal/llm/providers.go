package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/generative-ai-go/genai"
	openai "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	googleoption "google.golang.org/api/option"
)

// errReplyTruncated means the provider stopped at the token limit. Retrying
// with the same limit cannot help, so it is not retried.
var errReplyTruncated = errors.New("reply cut at the token limit; raise llm.max_tokens")

// providerSpec describes one backend.
type providerSpec struct {
	keyEnv       string
	defaultModel string
	build        func(apiKey, model string) Provider
}

var providers = map[string]providerSpec{
	"anthropic": {
		keyEnv:       "ANTHROPIC_API_KEY",
		defaultModel: "claude-sonnet-4-5",
		build: func(key, model string) Provider {
			return &anthropicProvider{client: anthropic.NewClient(anthropicoption.WithAPIKey(key)), model: model}
		},
	},
	"openai": {
		keyEnv:       "OPENAI_API_KEY",
		defaultModel: "gpt-4o",
		build: func(key, model string) Provider {
			return &openaiProvider{client: openai.NewClient(openaioption.WithAPIKey(key)), model: model}
		},
	},
	"google": {
		keyEnv:       "GOOGLE_API_KEY",
		defaultModel: "gemini-1.5-pro",
		build: func(key, model string) Provider {
			return &googleProvider{apiKey: key, model: model}
		},
	},
}

// lookup resolves a provider name; "" selects anthropic.
func lookup(providerName string) (providerSpec, bool) {
	name := strings.ToLower(providerName)
	if name == "" {
		name = "anthropic"
	}
	spec, ok := providers[name]
	return spec, ok
}

// ProviderNames lists the supported providers in sorted order.
func ProviderNames() []string {
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// APIKeyEnv names the environment variable holding a provider's key, or ""
// for an unknown provider.
func APIKeyEnv(providerName string) string {
	spec, ok := lookup(providerName)
	if !ok {
		return ""
	}
	return spec.keyEnv
}

// defaultModel is the model used when Options.Model is empty.
func defaultModel(providerName string) string {
	spec, _ := lookup(providerName)
	return spec.defaultModel
}

// defaultNewProvider reads the provider's API key from the environment and
// builds its client.
func defaultNewProvider(providerName, model string) (Provider, error) {
	spec, ok := lookup(providerName)
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q (available: %s)", providerName, strings.Join(ProviderNames(), ", "))
	}
	key := os.Getenv(spec.keyEnv)
	if key == "" {
		return nil, fmt.Errorf("llm: %s environment variable not set", spec.keyEnv)
	}
	if model == "" {
		model = spec.defaultModel
	}
	return spec.build(key, model), nil
}

// ── Anthropic ────────────────────────────────────────────────────────────────

type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func (p *anthropicProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: messages.new: %w", err)
	}
	if msg.StopReason == "max_tokens" {
		return "", fmt.Errorf("anthropic: %w", errReplyTruncated)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic: response contained no text content blocks")
	}
	return strings.Join(parts, ""), nil
}

// ── OpenAI ───────────────────────────────────────────────────────────────────

type openaiProvider struct {
	client openai.Client
	model  string
}

func (p *openaiProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat.completions.new: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: response contained no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return "", fmt.Errorf("openai: %w", errReplyTruncated)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("openai: response contained no content")
	}
	return choice.Message.Content, nil
}

// ── Google ───────────────────────────────────────────────────────────────────

// googleProvider creates a genai.Client per call so the caller's context
// governs the connection.
type googleProvider struct {
	apiKey string
	model  string
}

func (p *googleProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("google: genai client: %w", err)
	}
	defer client.Close()

	m := client.GenerativeModel(p.model)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	m.SetMaxOutputTokens(int32(maxTokens))
	m.SetTemperature(float32(temperature))
	// JSON mode; the findings reply must not arrive fenced.
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("google: generate content: %w", err)
	}

	var parts []string
	for _, cand := range resp.Candidates {
		if cand.FinishReason == genai.FinishReasonMaxTokens {
			return "", fmt.Errorf("google: %w", errReplyTruncated)
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				parts = append(parts, string(t))
			}
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("google: response contained no text content")
	}
	return strings.Join(parts, ""), nil
}
