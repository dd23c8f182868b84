package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Generate(ctx context.Context, req Request) (*Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func TestGenerate_MockClient(t *testing.T) {
	mc := new(MockClient)
	mc.On("Generate", mock.Anything, mock.MatchedBy(func(r Request) bool { return r.Prompt == "hi" })).
		Return(&Response{Text: "17500000"}, nil)

	resp, err := mc.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "17500000", resp.Text)
	mc.AssertExpectations(t)
}

func TestSDKClient_Generate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "gemini-2.5-flash:generateContent")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "contents")
		assert.Contains(t, body, "systemInstruction")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": `{"matches": []}`}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount":     12,
				"candidatesTokenCount": 4,
			},
		})
	}))
	defer ts.Close()

	c, err := NewClient(context.Background(), "test-key", WithBaseURL(ts.URL), WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), Request{
		Model:  "gemini-2.5-flash",
		Prompt: "match titles",
		System: "You match projects.",
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"matches": []}`, resp.Text)
	assert.Equal(t, int64(12), resp.InputTokens)
	assert.Equal(t, int64(4), resp.OutputTokens)
	assert.NotPanics(t, func() { resp.LogUsage("match") })
}

func TestSDKClient_GenerateError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": 400, "message": "bad request", "status": "INVALID_ARGUMENT"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	c, err := NewClient(context.Background(), "test-key", WithBaseURL(ts.URL))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Request{Model: "gemini-2.5-flash", Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini: generate content")
}
