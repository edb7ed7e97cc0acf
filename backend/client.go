// Package backend is the client for the hosted model service: page
// summaries, image descriptions, WCAG fix suggestions, and page-task
// planning. Every call is JSON over POST under the /api prefix, wrapped
// in the house timeout/retry/circuit-breaker middleware so a flapping
// backend degrades to per-job errors instead of hung pipelines.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vixlabs/vix/audit"
	"github.com/vixlabs/vix/extract"
	"github.com/vixlabs/vix/kit"
)

const (
	pathSummarize  = "/summarize_page"
	pathParseImage = "/parse_image"
	pathWCAGCheck  = "/wcag_check"
	pathPageTask   = "/execute_page_task"

	maxResponseBytes = 4 << 20
)

// ErrEmptyResponse reports a call that succeeded at the transport level
// but carried no usable model output.
var ErrEmptyResponse = errors.New("backend: empty response")

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:5000.
	BaseURL string

	// APIPrefix defaults to /api.
	APIPrefix string

	// Timeout bounds each attempt. Default 30s.
	Timeout time.Duration

	// MaxRetries beyond the first attempt. Default 2; negative disables.
	MaxRetries int

	// RetryBackoff is the initial wait, doubled each attempt. Default 500ms.
	RetryBackoff time.Duration

	// Model optionally overrides the service's default vision model on
	// parse_image calls.
	Model string

	HTTPClient *http.Client
	Breaker    *CircuitBreaker
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.APIPrefix == "" {
		c.APIPrefix = "/api"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Breaker == nil {
		c.Breaker = NewCircuitBreaker()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client calls the model service.
type Client struct {
	cfg       Config
	endpoints map[string]kit.Endpoint
}

// New creates a Client. The middleware chain is built once per endpoint:
// retry outermost so each attempt gets a fresh timeout, breaker innermost
// so it sees every attempt.
func New(cfg Config) *Client {
	cfg.defaults()
	c := &Client{cfg: cfg, endpoints: make(map[string]kit.Endpoint, 4)}
	mw := kit.Chain(
		WithRetry(cfg.MaxRetries, cfg.RetryBackoff, cfg.Logger),
		WithTimeout(cfg.Timeout),
		WithCircuitBreaker(cfg.Breaker, "model-backend"),
	)
	for _, p := range []string{pathSummarize, pathParseImage, pathWCAGCheck, pathPageTask} {
		c.endpoints[p] = mw(c.post(p))
	}
	return c
}

// Breaker exposes the circuit breaker for status reporting.
func (c *Client) Breaker() *CircuitBreaker { return c.cfg.Breaker }

// SummarizePage asks the service for a short page summary built from the
// extracted content (markdown preferred, plain text fallback).
func (c *Client) SummarizePage(ctx context.Context, content string) (string, error) {
	raw, err := c.call(ctx, pathSummarize, map[string]string{"content": content})
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("backend: summarize_page: decode response: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("backend: summarize_page: %w", ErrEmptyResponse)
	}
	return s, nil
}

type imageContent struct {
	ImageURL string `json:"imageUrl"`
	Summary  string `json:"summary"`
	Model    string `json:"model,omitempty"`
}

// DescribeImage generates alt text for one image, grounded in the page
// summary. The response arrives either as a plain string or as an
// {originalAlt, generatedAlt} object depending on the service version.
func (c *Client) DescribeImage(ctx context.Context, imageURL, summary string) (string, error) {
	raw, err := c.call(ctx, pathParseImage, map[string]any{
		"content": imageContent{ImageURL: imageURL, Summary: summary, Model: c.cfg.Model},
	})
	if err != nil {
		return "", err
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var alt struct {
			GeneratedAlt string `json:"generatedAlt"`
		}
		if err := json.Unmarshal(raw, &alt); err != nil {
			return "", fmt.Errorf("backend: parse_image: decode response: %w", err)
		}
		s = alt.GeneratedAlt
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("backend: parse_image: %w", ErrEmptyResponse)
	}
	return s, nil
}

// WCAGCheck submits serialized audit findings and returns the service's
// fix descriptors. The response body may be clean JSON, a JSON-encoded
// string, or a fenced code block; all are handled.
func (c *Client) WCAGCheck(ctx context.Context, issues string) ([]audit.Fix, error) {
	raw, err := c.call(ctx, pathWCAGCheck, map[string]string{"content": issues})
	if err != nil {
		return nil, err
	}
	var out struct {
		Elements []audit.Fix `json:"elements"`
	}
	if err := json.Unmarshal(unwrap(raw), &out); err != nil {
		return nil, fmt.Errorf("backend: wcag_check: decode fixes: %w", err)
	}
	return out.Elements, nil
}

// TaskRequest is the execute_page_task payload. HTMLContent carries the
// serialized action-element list, not raw page HTML.
type TaskRequest struct {
	HTMLContent json.RawMessage `json:"html_content"`
	TaskPrompt  string          `json:"task_prompt"`
	PageSummary string          `json:"page_summary"`
}

// TaskResponse is the service's plan for a page task.
type TaskResponse struct {
	Explanation string   `json:"explanation"`
	Commands    []string `json:"js_commands"`
}

// ExecutePageTask asks the service to plan a user-phrased task against
// the page's action elements.
func (c *Client) ExecutePageTask(ctx context.Context, req TaskRequest) (TaskResponse, error) {
	raw, err := c.call(ctx, pathPageTask, req)
	if err != nil {
		return TaskResponse{}, err
	}
	var out TaskResponse
	if err := json.Unmarshal(unwrap(raw), &out); err != nil {
		return TaskResponse{}, fmt.Errorf("backend: execute_page_task: decode response: %w", err)
	}
	return out, nil
}

// FallbackSummary synthesizes a local placeholder when summarization
// fails, so downstream consumers always have page context to work with.
func FallbackSummary(pageURL string, stats extract.TreeStats) string {
	return fmt.Sprintf(
		"This page at %s could not be summarized automatically. "+
			"It contains %d elements, including %d interactive controls and %d images.",
		pageURL, stats.Nodes, stats.ActionElements, stats.Images)
}

func (c *Client) call(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("backend: %s: encode request: %w", path, err)
	}
	res, err := c.endpoints[path](ctx, payload)
	if err != nil {
		return nil, err
	}

	var env struct {
		Response json.RawMessage `json:"response"`
		Error    string          `json:"error"`
	}
	if err := json.Unmarshal(res.([]byte), &env); err != nil {
		return nil, fmt.Errorf("backend: %s: decode envelope: %w", path, err)
	}
	if env.Error != "" {
		return nil, fmt.Errorf("backend: %s: service error: %s", path, env.Error)
	}
	if len(env.Response) == 0 {
		return nil, fmt.Errorf("backend: %s: %w", path, ErrEmptyResponse)
	}
	return env.Response, nil
}

// post builds the raw transport endpoint for one path. Payload in and
// body out are []byte; the typed methods own the JSON shapes.
func (c *Client) post(path string) kit.Endpoint {
	url := c.cfg.BaseURL + c.cfg.APIPrefix + path
	return func(ctx context.Context, req any) (any, error) {
		payload, ok := req.([]byte)
		if !ok {
			return nil, fmt.Errorf("backend: %s: payload must be []byte", path)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("backend: %s: build request: %w", path, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.cfg.HTTPClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("backend: %s: %w", path, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("backend: %s: read response: %w", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("backend: %s: status %d: %s", path, resp.StatusCode, truncate(body, 200))
		}
		return body, nil
	}
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
