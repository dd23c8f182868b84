// Package llm exposes the configured language model as a single
// prompt-in, text-out Provider.
package llm

import (
	"context"
	"errors"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/docforge/internal/config"
	"github.com/sells-group/docforge/internal/resilience"
	"github.com/sells-group/docforge/pkg/anthropic"
	"github.com/sells-group/docforge/pkg/gemini"
)

// Provider generates a text completion for a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

type purposeKey struct{}

// WithPurpose tags calls made with ctx for cost logging ("budget", "match",
// "extract").
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

func purposeOf(ctx context.Context) string {
	if p, ok := ctx.Value(purposeKey{}).(string); ok {
		return p
	}
	return "generate"
}

type options struct {
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
	timeout time.Duration
}

// Option configures a Provider.
type Option func(*options)

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// WithBreaker guards calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(o *options) { o.breaker = b }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func buildOptions(opts []Option) options {
	o := options{retry: resilience.DefaultRetryConfig()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// call runs one generation attempt through the breaker and retry policy.
func call(ctx context.Context, name string, o options, fn func(ctx context.Context) (string, error)) (string, error) {
	retry := o.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(name, purposeOf(ctx))
	}
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		return resilience.Guard(ctx, o.breaker, func(ctx context.Context) (string, error) {
			if o.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, o.timeout)
				defer cancel()
			}
			text, err := fn(ctx)
			return text, classify(err)
		})
	})
}

// classify marks provider errors with retryable HTTP statuses as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) && resilience.IsTransientHTTPStatus(sdkErr.StatusCode) {
		return resilience.NewTransientError(err, sdkErr.StatusCode)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.Code) {
		return resilience.NewTransientError(err, apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && resilience.IsTransientHTTPStatus(apiErrPtr.Code) {
		return resilience.NewTransientError(err, apiErrPtr.Code)
	}
	return err
}

// New builds the Provider selected by cfg.LLM.Provider.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	opts := []Option{
		WithRetry(resilience.FromConfig(cfg.Retry)),
		WithBreaker(resilience.BreakerFromConfig(cfg.LLM.Provider, cfg.Retry)),
		WithTimeout(time.Duration(cfg.LLM.TimeoutSecs) * time.Second),
	}

	switch cfg.LLM.Provider {
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("llm: anthropic.key is required")
		}
		// Retries are handled here, not by the SDK.
		sdkOpts := []option.RequestOption{option.WithMaxRetries(0)}
		if cfg.Anthropic.BaseURL != "" {
			sdkOpts = append(sdkOpts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		client := anthropic.NewClient(cfg.Anthropic.Key, sdkOpts...)
		return NewAnthropic(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, opts...), nil
	case "gemini":
		if cfg.Gemini.Key == "" {
			return nil, eris.New("llm: gemini.key is required")
		}
		var gOpts []gemini.Option
		if cfg.Gemini.BaseURL != "" {
			gOpts = append(gOpts, gemini.WithBaseURL(cfg.Gemini.BaseURL))
		}
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key, gOpts...)
		if err != nil {
			return nil, eris.Wrap(err, "llm: gemini client")
		}
		return NewGemini(client, cfg.Gemini.Model, opts...), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
	}
}
