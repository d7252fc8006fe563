// Package gemini implements llm.Backend over the Gemini generative language
// REST API.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pario-ai/deckgen/pkg/content"
	"github.com/pario-ai/deckgen/pkg/llm"
	"github.com/pario-ai/deckgen/pkg/models"
)

// DefaultBaseURL is the public Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client talks to the Gemini REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client. An empty baseURL uses DefaultBaseURL and a nil
// httpClient uses a client with a five minute timeout.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	retryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini: %d: %s", e.StatusCode, e.Message)
}

// HTTPStatusCode returns the response status code.
func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

// RetryAfter returns the server's Retry-After hint, if any.
func (e *APIError) RetryAfter() time.Duration {
	return e.retryAfter
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type contentBlock struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type cacheRequest struct {
	Model             string         `json:"model"`
	SystemInstruction *contentBlock  `json:"systemInstruction,omitempty"`
	Contents          []contentBlock `json:"contents"`
	TTL               string         `json:"ttl"`
}

type cacheResponse struct {
	Name string `json:"name"`
}

type generateRequest struct {
	Contents          []contentBlock `json:"contents"`
	SystemInstruction *contentBlock  `json:"systemInstruction,omitempty"`
	CachedContent     string         `json:"cachedContent,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      contentBlock `json:"content"`
		FinishReason string       `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount        int `json:"promptTokenCount"`
		CandidatesTokenCount    int `json:"candidatesTokenCount"`
		CachedContentTokenCount int `json:"cachedContentTokenCount"`
	} `json:"usageMetadata"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// CreateCache implements llm.Backend.
func (c *Client) CreateCache(ctx context.Context, req llm.CacheRequest) (string, error) {
	body := cacheRequest{
		Model:             modelPath(req.Model),
		SystemInstruction: instruction(req.SystemInstruction),
		Contents:          []contentBlock{{Role: "user", Parts: toParts(req.Parts)}},
		TTL:               fmt.Sprintf("%ds", int(req.TTL.Seconds())),
	}
	var out cacheResponse
	if err := c.do(ctx, http.MethodPost, "/cachedContents", body, &out); err != nil {
		return "", err
	}
	if out.Name == "" {
		return "", fmt.Errorf("gemini: cache response without name")
	}
	return out.Name, nil
}

// Generate implements llm.Backend.
func (c *Client) Generate(ctx context.Context, req llm.GenerateRequest) (llm.Response, error) {
	var parts []part
	body := generateRequest{CachedContent: req.CachedContent}
	if req.CachedContent == "" {
		body.SystemInstruction = instruction(req.SystemInstruction)
		parts = toParts(req.Parts)
	}
	parts = append(parts, part{Text: req.Prompt})
	body.Contents = []contentBlock{{Role: "user", Parts: parts}}

	var out generateResponse
	if err := c.do(ctx, http.MethodPost, "/"+modelPath(req.Model)+":generateContent", body, &out); err != nil {
		return llm.Response{}, err
	}

	usage := models.Usage{
		InputTokens:  out.UsageMetadata.PromptTokenCount,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
		CachedTokens: out.UsageMetadata.CachedContentTokenCount,
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return llm.Response{Usage: usage}, llm.NewError(llm.KindBlocked, "prompt blocked: "+out.PromptFeedback.BlockReason, nil)
	}

	var sb strings.Builder
	finish := ""
	for _, cand := range out.Candidates {
		finish = cand.FinishReason
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	text := sb.String()
	if text == "" && (finish == "SAFETY" || finish == "RECITATION" || finish == "PROHIBITED_CONTENT" || finish == "BLOCKLIST") {
		return llm.Response{Usage: usage}, llm.NewError(llm.KindBlocked, "response blocked: "+finish, nil)
	}
	return llm.Response{Text: text, Usage: usage}, nil
}

// DeleteCache implements llm.Backend.
func (c *Client) DeleteCache(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/"+strings.TrimPrefix(name, "/"), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gemini: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gemini: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, raw []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Status = env.Error.Status
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
		apiErr.retryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}

func modelPath(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

func instruction(text string) *contentBlock {
	if text == "" {
		return nil
	}
	return &contentBlock{Parts: []part{{Text: text}}}
}

func toParts(parts []content.Part) []part {
	out := make([]part, 0, len(parts))
	for _, p := range parts {
		if p.IsText() {
			out = append(out, part{Text: p.Text})
			continue
		}
		out = append(out, part{InlineData: &blob{MIMEType: p.MIMEType, Data: p.Data}})
	}
	return out
}
