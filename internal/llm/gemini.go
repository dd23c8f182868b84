package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docforge/pkg/gemini"
)

type geminiProvider struct {
	client gemini.Client
	model  string
	opts   options
}

// NewGemini adapts a Gemini client to Provider.
func NewGemini(client gemini.Client, model string, opts ...Option) Provider {
	return &geminiProvider{client: client, model: model, opts: buildOptions(opts)}
}

func (p *geminiProvider) Name() string { return "gemini" }

func (p *geminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return call(ctx, p.Name(), p.opts, func(ctx context.Context) (string, error) {
		resp, err := p.client.Generate(ctx, gemini.Request{Model: p.model, Prompt: prompt})
		if err != nil {
			return "", err
		}
		resp.LogUsage(purposeOf(ctx))
		if strings.TrimSpace(resp.Text) == "" {
			return "", eris.New("llm: gemini returned no text")
		}
		return resp.Text, nil
	})
}
