package gemini

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/deckgen/pkg/content"
	"github.com/pario-ai/deckgen/pkg/llm"
)

func TestCreateCache(t *testing.T) {
	var got map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cachedContents", r.URL.Path)
		assert.Equal(t, "gk-test", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"name":"cachedContents/abc123","model":"models/m"}`))
	}))
	defer upstream.Close()

	c := New(upstream.URL, "gk-test", nil)
	name, err := c.CreateCache(context.Background(), llm.CacheRequest{
		Model:             "m",
		SystemInstruction: "persona",
		Parts:             []content.Part{{Text: "doc"}, {Data: []byte{1, 2, 3}, MIMEType: "application/pdf"}},
		TTL:               time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "cachedContents/abc123", name)

	assert.Equal(t, "models/m", got["model"])
	assert.Equal(t, "3600s", got["ttl"])
	contents := got["contents"].([]any)[0].(map[string]any)
	parts := contents["parts"].([]any)
	require.Len(t, parts, 2)
	inline := parts[1].(map[string]any)["inlineData"].(map[string]any)
	assert.Equal(t, "application/pdf", inline["mimeType"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), inline["data"])
}

func TestGenerateWithCache(t *testing.T) {
	var got generateRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-x:generateContent", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{
			"candidates":[{"content":{"parts":[{"text":"\"Q\",\"A\""},{"text":"\n\"Q2\",\"A2\""}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":120,"candidatesTokenCount":30,"cachedContentTokenCount":100}
		}`))
	}))
	defer upstream.Close()

	c := New(upstream.URL, "k", nil)
	resp, err := c.Generate(context.Background(), llm.GenerateRequest{
		Model:             "gemini-x",
		CachedContent:     "cachedContents/abc",
		SystemInstruction: "ignored",
		Parts:             []content.Part{{Text: "ignored"}},
		Prompt:            "make cards",
	})
	require.NoError(t, err)
	assert.Equal(t, "\"Q\",\"A\"\n\"Q2\",\"A2\"", resp.Text)
	assert.Equal(t, 120, resp.Usage.InputTokens)
	assert.Equal(t, 30, resp.Usage.OutputTokens)
	assert.Equal(t, 100, resp.Usage.CachedTokens)

	assert.Equal(t, "cachedContents/abc", got.CachedContent)
	assert.Nil(t, got.SystemInstruction)
	require.Len(t, got.Contents[0].Parts, 1)
	assert.Equal(t, "make cards", got.Contents[0].Parts[0].Text)
}

func TestGenerateInline(t *testing.T) {
	var got generateRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer upstream.Close()

	c := New(upstream.URL, "k", nil)
	_, err := c.Generate(context.Background(), llm.GenerateRequest{
		Model:             "models/gemini-x",
		SystemInstruction: "persona",
		Parts:             []content.Part{{Text: "doc"}},
		Prompt:            "p",
	})
	require.NoError(t, err)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "persona", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents[0].Parts, 2)
	assert.Equal(t, "doc", got.Contents[0].Parts[0].Text)
	assert.Equal(t, "p", got.Contents[0].Parts[1].Text)
}

func TestGenerateBlocked(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
	}))
	defer upstream.Close()

	_, err := New(upstream.URL, "k", nil).Generate(context.Background(), llm.GenerateRequest{Model: "m", Prompt: "p"})
	assert.ErrorIs(t, err, llm.ErrBlocked)
}

func TestGeneratePromptFeedbackBlocked(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer upstream.Close()

	_, err := New(upstream.URL, "k", nil).Generate(context.Background(), llm.GenerateRequest{Model: "m", Prompt: "p"})
	assert.Equal(t, llm.KindBlocked, llm.Classify(err))
}

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   llm.Kind
	}{
		{400, `{"error":{"code":400,"message":"Cached content is too small. total_token_count=10, min_total_token_count=4096","status":"INVALID_ARGUMENT"}}`, llm.KindContentTooSmall},
		{403, `{"error":{"code":403,"message":"CachedContent not found (or permission denied)","status":"PERMISSION_DENIED"}}`, llm.KindAuth},
		{404, `{"error":{"code":404,"message":"CachedContent not found","status":"NOT_FOUND"}}`, llm.KindCacheExpired},
		{429, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, llm.KindRateLimited},
		{503, `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`, llm.KindOverloaded},
		{500, `not json`, llm.KindOverloaded},
	}
	for _, tt := range tests {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(tt.body))
		}))

		_, err := New(upstream.URL, "k", nil).Generate(context.Background(), llm.GenerateRequest{Model: "m", Prompt: "p"})
		upstream.Close()

		require.Error(t, err)
		assert.Equal(t, tt.want, llm.Classify(err), "status %d", tt.status)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 7*time.Second, apiErr.RetryAfter())
	}
}

func TestDeleteCache(t *testing.T) {
	var method, path string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	require.NoError(t, New(upstream.URL, "k", nil).DeleteCache(context.Background(), "cachedContents/abc"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/cachedContents/abc", path)
}
