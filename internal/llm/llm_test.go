package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docforge/internal/config"
	"github.com/sells-group/docforge/internal/resilience"
	"github.com/sells-group/docforge/pkg/anthropic"
	"github.com/sells-group/docforge/pkg/gemini"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockGemini struct {
	mock.Mock
}

func (m *mockGemini) Generate(ctx context.Context, req gemini.Request) (*gemini.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.Response), args.Error(1)
}

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
}

func TestAnthropicProvider_Generate(t *testing.T) {
	mc := new(mockAnthropic)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return r.Model == "claude-haiku-4-5-20251001" && r.MaxTokens == defaultMaxTokens &&
			len(r.Messages) == 1 && r.Messages[0].Content == "prompt"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "17500000"}},
	}, nil)

	p := NewAnthropic(mc, "claude-haiku-4-5-20251001", 0, fastRetry())
	out, err := p.Generate(WithPurpose(context.Background(), "budget"), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "17500000", out)
	assert.Equal(t, "anthropic", p.Name())
	mc.AssertExpectations(t)
}

func TestAnthropicProvider_EmptyText(t *testing.T) {
	mc := new(mockAnthropic)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{StopReason: "max_tokens"}, nil)

	_, err := NewAnthropic(mc, "m", 10, fastRetry()).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens")
	mc.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestGeminiProvider_RetriesTransient(t *testing.T) {
	mg := new(mockGemini)
	mg.On("Generate", mock.Anything, gemini.Request{Model: "gemini-2.5-flash", Prompt: "p"}).
		Return(nil, resilience.NewTransientError(errors.New("503"), 503)).Once()
	mg.On("Generate", mock.Anything, gemini.Request{Model: "gemini-2.5-flash", Prompt: "p"}).
		Return(&gemini.Response{Text: `{"matches": []}`}, nil).Once()

	p := NewGemini(mg, "gemini-2.5-flash", fastRetry())
	out, err := p.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, `{"matches": []}`, out)
	mg.AssertNumberOfCalls(t, "Generate", 2)
}

func TestGeminiProvider_PermanentErrorNotRetried(t *testing.T) {
	mg := new(mockGemini)
	mg.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("invalid api key"))

	_, err := NewGemini(mg, "gemini-2.5-flash", fastRetry()).Generate(context.Background(), "p")
	require.Error(t, err)
	mg.AssertNumberOfCalls(t, "Generate", 1)
}

func TestGeminiProvider_BreakerOpen(t *testing.T) {
	mg := new(mockGemini)
	mg.On("Generate", mock.Anything, mock.Anything).Return(nil, resilience.NewTransientError(errors.New("503"), 503))

	b := resilience.NewBreaker("gemini", resilience.BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	p := NewGemini(mg, "m", WithBreaker(b), WithRetry(resilience.RetryConfig{MaxAttempts: 1}))

	_, err := p.Generate(context.Background(), "p")
	require.Error(t, err)
	_, err = p.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
	mg.AssertNumberOfCalls(t, "Generate", 1)
}

func TestGeminiProvider_Timeout(t *testing.T) {
	mg := new(mockGemini)
	mg.On("Generate", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	}).Return(&gemini.Response{Text: "ok"}, nil)

	_, err := NewGemini(mg, "m", WithTimeout(time.Second)).Generate(context.Background(), "p")
	require.NoError(t, err)
}

func TestPurposeOf(t *testing.T) {
	assert.Equal(t, "generate", purposeOf(context.Background()))
	assert.Equal(t, "match", purposeOf(WithPurpose(context.Background(), "match")))
}

func TestNew(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Provider = "anthropic"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg.Anthropic.Key = "sk-ant"
	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	cfg.LLM.Provider = "gemini"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)

	cfg.Gemini.Key = "gm"
	p, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	cfg.LLM.Provider = "openai"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	plain := errors.New("x")
	assert.Equal(t, plain, classify(plain))
}
