// Package extraction turns unstructured consultation text (PDF text layers,
// free-text notes) into a structured JSON record by calling an
// OpenAI-compatible chat completions endpoint such as Perplexity Sonar.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultURL   = "https://api.perplexity.ai/chat/completions"
	DefaultModel = "sonar"

	maxErrorBody = 4 << 10
)

var ErrNotConfigured = errors.New("extraction API key is not configured")

// UpstreamError is returned when the completion endpoint answers with a
// non-2xx status or an empty choice list.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("extraction upstream error (%d): %s", e.Status, e.Body)
}

// InvalidJSONError is returned when the model's answer is not a JSON object.
type InvalidJSONError struct {
	Raw string
	Err error
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("model did not return valid JSON: %v", e.Err)
}

func (e *InvalidJSONError) Unwrap() error { return e.Err }

type Config struct {
	APIKey     string
	URL        string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	apiKey string
	url    string
	model  string
	http   *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{apiKey: cfg.APIKey, url: cfg.URL, model: cfg.Model, http: hc}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Usage is the token accounting reported by the endpoint.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

// Result is a successful extraction.
type Result struct {
	Fields json.RawMessage `json:"fields"`
	Model  string          `json:"model"`
	Usage  *Usage          `json:"usage,omitempty"`
}

// PingResult describes a connectivity probe.
type PingResult struct {
	Model   string        `json:"model"`
	Latency time.Duration `json:"latency_ns"`
	Reply   string        `json:"reply"`
}

// Extract asks the model to map text onto the consultation schema and
// returns the JSON object it produced.
func (c *Client) Extract(ctx context.Context, text string) (*Result, error) {
	resp, err := c.complete(ctx, completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Consultation document text:\n\n---\n" + text + "\n---"},
		},
		Temperature: 0.1,
		MaxTokens:   4000,
	})
	if err != nil {
		return nil, err
	}

	raw := resp.Choices[0].Message.Content
	cleaned := StripCodeFence(raw)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, &InvalidJSONError{Raw: raw, Err: err}
	}

	return &Result{Fields: json.RawMessage(cleaned), Model: resp.Model, Usage: resp.Usage}, nil
}

// Ping sends a trivial prompt and reports the round-trip latency.
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	start := time.Now()
	resp, err := c.complete(ctx, completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: `Reply only with {"status":"ok"}`},
			{Role: "user", Content: "Connection test."},
		},
		MaxTokens: 100,
	})
	if err != nil {
		return nil, err
	}
	return &PingResult{
		Model:   resp.Model,
		Latency: time.Since(start),
		Reply:   resp.Choices[0].Message.Content,
	}, nil
}

func (c *Client) complete(ctx context.Context, body completionRequest) (*completionResponse, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", c.url, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &UpstreamError{Status: res.StatusCode, Body: string(b)}
	}

	var out completionResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, &UpstreamError{Status: res.StatusCode, Body: "empty completion"}
	}
	return &out, nil
}

// StripCodeFence removes a surrounding ``` or ```json markdown fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
