package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docforge/pkg/anthropic"
)

const defaultMaxTokens = 8192

type anthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	opts      options
}

// NewAnthropic adapts an Anthropic client to Provider.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64, opts ...Option) Provider {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &anthropicProvider{client: client, model: model, maxTokens: maxTokens, opts: buildOptions(opts)}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return call(ctx, p.Name(), p.opts, func(ctx context.Context) (string, error) {
		resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     p.model,
			MaxTokens: p.maxTokens,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return "", err
		}
		resp.Usage.LogCost(p.model, purposeOf(ctx))
		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			return "", eris.Errorf("llm: anthropic returned no text (stop reason %s)", resp.StopReason)
		}
		return text, nil
	})
}
