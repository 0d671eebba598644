package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssq-labs/commentpilot/app/models"
	"github.com/ssq-labs/commentpilot/internal/pkg/config"
)

type fakeGenerator struct {
	response string
	err      error
	system   string
	user     string
	deadline bool
}

func (f *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	f.system = system
	f.user = user
	_, f.deadline = ctx.Deadline()
	return f.response, f.err
}

func TestAgent_Decisions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		response string
		expected bool
	}{
		{"yes", `{"decision": true, "reason": "spam link"}`, true},
		{"no", `{"decision": false}`, false},
		{"fenced", "```json\n{\"decision\": true}\n```", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{response: tt.response}
			got, err := New(gen, time.Second).ShouldDelete(ctx, models.PlatformInstagram, "buy followers at x.io")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.True(t, gen.deadline, "calls are bounded by the timeout")
			assert.Equal(t, `Check if the user comment should be deleted: "buy followers at x.io"`, gen.user)
			assert.Contains(t, gen.system, "up to 1024 characters")
		})
	}
}

func TestAgent_MalformedResponseIsTransientError(t *testing.T) {
	ctx := context.Background()

	for _, response := range []string{`yes`, `{"decision": "yes"}`, `{"reason": "x"}`, `{"reply": ""}`} {
		gen := &fakeGenerator{response: response}
		a := New(gen, time.Second)

		_, err := a.ShouldIgnore(ctx, models.PlatformInstagram, "hello", "")
		assert.ErrorIs(t, err, ErrMalformedResponse, response)
	}

	_, err := New(&fakeGenerator{response: `{"reply": ""}`}, time.Second).Reply(ctx, models.PlatformInstagram, "hi", nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestAgent_IgnoreUsesPostInstructions(t *testing.T) {
	gen := &fakeGenerator{response: `{"decision": true}`}
	ignore, err := New(gen, time.Second).ShouldIgnore(context.Background(), models.PlatformYouTube, "first!", "Ignore comments that only say first")
	require.NoError(t, err)
	assert.True(t, ignore)
	assert.Contains(t, gen.system, "Ignore comments that only say first")
	assert.Contains(t, gen.system, "up to 2000 characters")
	assert.True(t, strings.HasPrefix(gen.user, "Check if the user comment should be ignored"))
}

func TestAgent_ReplyUsesPersonaAndStripsQuotes(t *testing.T) {
	gen := &fakeGenerator{response: `{"reply": "\"Thank you so much!\""}`}
	persona := &models.Persona{Name: "Chef Lia", Tone: "warm", Style: "short", Instructions: "Mention the recipe book"}

	reply, err := New(gen, time.Second).Reply(context.Background(), models.PlatformInstagram, "yum", persona)
	require.NoError(t, err)
	assert.Equal(t, "Thank you so much!", reply)
	assert.Contains(t, gen.system, `persona "Chef Lia"`)
	assert.Contains(t, gen.system, "Tone: warm")
	assert.Contains(t, gen.system, "Mention the recipe book")
	assert.Equal(t, `Reply to the user comment: "yum"`, gen.user)
}

func TestAgent_MatchesIntent(t *testing.T) {
	gen := &fakeGenerator{response: `{"decision": true}`}
	ok, err := New(gen, time.Second).MatchesIntent(context.Background(), models.PlatformInstagram, "how much is it?", "price")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, gen.system, "Does the following comment: 'how much is it?' mean 'price'?")
}

func TestAgent_PropagatesGeneratorError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := New(&fakeGenerator{err: boom}, time.Second).ShouldDelete(context.Background(), models.PlatformInstagram, "x")
	assert.ErrorIs(t, err, boom)
}

func newGeminiServer(t *testing.T, status int, text string) (*httptest.Server, *geminiRequest) {
	t.Helper()
	var captured geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-test:generateContent" || r.URL.Query().Get("key") != "test-api-key" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			return
		}
		resp := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{"role": "model", "parts": []map[string]string{{"text": text}}}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func testLLMConfig() config.LLM {
	return config.LLM{
		APIKey:          "test-api-key",
		BaseURL:         "http://unused",
		Model:           "gemini-test",
		Temperature:     0.9,
		TopP:            0.5,
		MaxOutputTokens: 100,
	}
}

func TestGeminiClient_Generate(t *testing.T) {
	srv, captured := newGeminiServer(t, http.StatusOK, `{"decision": false}`)

	client := NewGeminiClient(testLLMConfig())
	client.SetAPIURL(srv.URL)

	out, err := client.Generate(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"decision": false}`, out)

	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "system prompt", captured.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "user prompt", captured.Contents[0].Parts[0].Text)
	require.NotNil(t, captured.GenerationConfig)
	assert.Equal(t, 0.9, captured.GenerationConfig.Temperature)
	assert.Equal(t, 0.5, captured.GenerationConfig.TopP)
	assert.Equal(t, 100, captured.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMimeType)
}

func TestGeminiClient_Errors(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusTooManyRequests, false},
		{http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, _ := newGeminiServer(t, tt.status, "")
			client := NewGeminiClient(testLLMConfig())
			client.SetAPIURL(srv.URL)

			_, err := client.Generate(context.Background(), "s", "u")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.permanent, apiErr.Permanent())
		})
	}

	srv, _ := newGeminiServer(t, http.StatusOK, "")
	client := NewGeminiClient(testLLMConfig())
	client.SetAPIURL(srv.URL)
	_, err := client.Generate(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAgentWithGeminiEndToEnd(t *testing.T) {
	srv, _ := newGeminiServer(t, http.StatusOK, `{"reply": "Glad you like it!"}`)
	client := NewGeminiClient(testLLMConfig())
	client.SetAPIURL(srv.URL)

	reply, err := New(client, time.Second).Reply(context.Background(), models.PlatformInstagram, "great pic", &models.Persona{Name: "Sam"})
	require.NoError(t, err)
	assert.Equal(t, "Glad you like it!", reply)
}
