package generate

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topper-enrich/internal/config"
	"github.com/sells-group/topper-enrich/internal/prompt"
	"github.com/sells-group/topper-enrich/internal/resilience"
	"github.com/sells-group/topper-enrich/pkg/anthropic"
	"github.com/sells-group/topper-enrich/pkg/gemini"
	"github.com/sells-group/topper-enrich/pkg/groq"
)

// Provider sends one compiled prompt and returns the raw response body.
// Rate-limit rejections are reported as *resilience.RateLimitError.
type Provider interface {
	Complete(ctx context.Context, p prompt.Prompt) ([]byte, error)
}

// NewProvider builds the adapter selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.GenerationConfig) (Provider, error) {
	switch cfg.Provider {
	case "", config.ProviderGroq:
		var opts []groq.Option
		if cfg.URL != "" {
			opts = append(opts, groq.WithURL(cfg.URL))
		}
		return &GroqProvider{client: groq.NewClient(cfg.Key, opts...), cfg: cfg}, nil
	case config.ProviderAnthropic:
		return &AnthropicProvider{client: anthropic.NewClient(cfg.Key), cfg: cfg}, nil
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, gemini.Config{APIKey: cfg.Key, BaseURL: cfg.URL})
		if err != nil {
			return nil, err
		}
		return &GeminiProvider{client: c, cfg: cfg}, nil
	default:
		return nil, eris.Errorf("generate: unknown provider %q", cfg.Provider)
	}
}

// GroqProvider adapts an OpenAI-compatible chat completions client.
type GroqProvider struct {
	client groq.Client
	cfg    config.GenerationConfig
}

// NewGroqProvider wraps an existing groq client.
func NewGroqProvider(c groq.Client, cfg config.GenerationConfig) *GroqProvider {
	return &GroqProvider{client: c, cfg: cfg}
}

func (p *GroqProvider) Complete(ctx context.Context, pr prompt.Prompt) ([]byte, error) {
	maxTokens, temp := p.cfg.MaxTokens, p.cfg.Temperature
	raw, err := p.client.ChatCompletion(ctx, groq.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []groq.Message{
			{Role: "system", Content: pr.System},
			{Role: "user", Content: pr.User},
		},
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *groq.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusTooManyRequests || rateLimitPattern.MatchString(apiErr.Message)) {
			return nil, resilience.NewRateLimitError(err, apiErr.RetryAfter)
		}
		return nil, err
	}
	return raw, nil
}

// AnthropicProvider adapts the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    config.GenerationConfig
}

func (p *AnthropicProvider) Complete(ctx context.Context, pr prompt.Prompt) ([]byte, error) {
	temp := p.cfg.Temperature
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.cfg.Model,
		MaxTokens:   int64(p.cfg.MaxTokens),
		System:      pr.System,
		Messages:    []anthropic.Message{{Role: "user", Content: pr.User}},
		Temperature: &temp,
	})
	if err != nil {
		var rl *anthropic.RateLimitError
		if errors.As(err, &rl) {
			return nil, resilience.NewRateLimitError(err, rl.RetryAfter)
		}
		return nil, err
	}
	return resp.Raw, nil
}

// GeminiProvider adapts the Gemini API.
type GeminiProvider struct {
	client gemini.Client
	cfg    config.GenerationConfig
}

func (p *GeminiProvider) Complete(ctx context.Context, pr prompt.Prompt) ([]byte, error) {
	raw, err := p.client.Generate(ctx, gemini.Request{
		Model:       p.cfg.Model,
		System:      pr.System,
		Prompt:      pr.User,
		MaxTokens:   int32(p.cfg.MaxTokens),
		Temperature: float32(p.cfg.Temperature),
	})
	if err != nil {
		var rl *gemini.RateLimitError
		if errors.As(err, &rl) {
			return nil, resilience.NewRateLimitError(err, 0)
		}
		return nil, err
	}
	return raw, nil
}
