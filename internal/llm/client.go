// Package llm is the client for OpenAI-compatible chat-completions APIs used
// to assess translation quality. It owns endpoint canonicalization, the
// retry/backoff/rate-limit policy, and tolerant parsing of model responses.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/perevir/internal"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3

	// Rate-limit retries run on their own budget and never consume the
	// general one; the server-directed wait is capped at a minute.
	maxRateLimitRetries  = 5
	rateLimitDefaultWait = 10 * time.Second
	rateLimitMaxWait     = 60 * time.Second

	// Low temperature keeps the scoring reproducible between runs.
	temperature = 0.3

	maxBodySnippet = 200
)

// Config carries the connection settings for one client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to one canonicalized chat-completions endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	maxRetries int
	client     *http.Client
	log        *zap.SugaredLogger

	// sleep is replaced in tests to observe backoff without waiting it out.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Client{
		endpoint:   BuildEndpoint(cfg.BaseURL),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: timeout},
		log:        zap.S(),
		sleep:      sleepCtx,
	}
}

// BuildEndpoint turns an arbitrary user-entered base URL into the canonical
// chat-completions endpoint. The mapping is idempotent, so configs that
// already contain the full endpoint keep working:
//
//	https://api.deepseek.com/v1                   → …/v1/chat/completions
//	https://api.deepseek.com/v1/                  → …/v1/chat/completions
//	https://api.deepseek.com/v1/chat              → …/v1/chat/completions
//	https://api.deepseek.com/v1/chat/completions  → unchanged
//	https://api.deepseek.com/v1/chat/completions/ → …/v1/chat/completions
func BuildEndpoint(baseURL string) string {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasSuffix(u, "/chat/completions"):
		return u
	case strings.HasSuffix(u, "/chat"):
		return u + "/completions"
	default:
		return u + "/chat/completions"
	}
}

// Endpoint returns the canonical endpoint requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// HTTPError is a non-2xx response, carrying the status and a truncated body
// so failures can be diagnosed without retrying blindly.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// Each attempt resolves into exactly one of these outcomes; the retry loop
// in complete branches on the tag rather than on error types.
type attemptKind int

const (
	attemptSuccess attemptKind = iota
	attemptRetryable
	attemptFatal
	attemptRateLimited
)

type attempt struct {
	kind    attemptKind
	content string
	wait    time.Duration
	err     error
}

// Call sends one assessment request and returns the parsed result.
// Parsing never fails (a malformed model response degrades to a score-0
// result); an error here means the retry budgets were exhausted or the
// server rejected the request outright.
func (c *Client) Call(ctx context.Context, systemPrompt, userPrompt string) (*internal.AssessmentResult, error) {
	content, err := c.complete(ctx, []message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, 0)
	if err != nil {
		return nil, err
	}

	result := ParseAssessment(content)
	return &result, nil
}

// CallBatch sends one request covering expected rows and returns the parsed
// results ordered ascending by their id field. A response whose shape does
// not match (wrong element count, missing fields, not an array) returns
// (nil, nil): the caller is expected to fall back to per-row calls.
func (c *Client) CallBatch(ctx context.Context, systemPrompt, userPrompt string, expected int) ([]internal.AssessmentResult, error) {
	content, err := c.complete(ctx, []message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, 0)
	if err != nil {
		return nil, err
	}

	results, ok := parseBatch(content, expected)
	if !ok {
		c.log.Warnw("batch response rejected", "expected", expected)
		return nil, nil
	}
	return results, nil
}

// complete runs the retry loop around doAttempt and returns the raw message
// content of the first successful attempt.
func (c *Client) complete(ctx context.Context, messages []message, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	rateLimitHits := 0
	att := 0

	for att < c.maxRetries {
		att++

		res := c.doAttempt(ctx, body)
		switch res.kind {
		case attemptSuccess:
			return res.content, nil

		case attemptFatal:
			// Client errors like 401 or 404 will not get better on retry.
			c.log.Warnw("api call failed permanently", "attempt", att, "url", c.endpoint, "error", res.err)
			return "", fmt.Errorf("api call failed: %w", res.err)

		case attemptRateLimited:
			lastErr = res.err
			rateLimitHits++
			if rateLimitHits > maxRateLimitRetries {
				return "", fmt.Errorf("api call failed, rate limited %d times: %w", rateLimitHits, lastErr)
			}
			c.log.Warnw("rate limited, waiting", "wait", res.wait, "hit", rateLimitHits, "of", maxRateLimitRetries)
			if err := c.sleep(ctx, res.wait); err != nil {
				return "", err
			}
			att-- // 429s never consume the general budget

		case attemptRetryable:
			lastErr = res.err
			c.log.Warnw("api call failed", "attempt", att, "url", c.endpoint, "error", res.err)
			if att < c.maxRetries {
				backoff := time.Duration(1<<uint(att)) * time.Second
				if err := c.sleep(ctx, backoff); err != nil {
					return "", err
				}
			}
		}
	}

	return "", fmt.Errorf("api call failed after %d attempts: %w", c.maxRetries, lastErr)
}

// doAttempt performs a single POST and classifies the outcome.
func (c *Client) doAttempt(ctx context.Context, body []byte) attempt {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return attempt{kind: attemptFatal, err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient by assumption.
		return attempt{kind: attemptRetryable, err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		httpErr := &HTTPError{Status: resp.StatusCode, Body: readSnippet(resp.Body)}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return attempt{
				kind: attemptRateLimited,
				wait: parseRetryAfter(resp.Header.Get("Retry-After")),
				err:  httpErr,
			}
		case resp.StatusCode < 500:
			return attempt{kind: attemptFatal, err: httpErr}
		default:
			return attempt{kind: attemptRetryable, err: httpErr}
		}
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return attempt{kind: attemptRetryable, err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(chat.Choices) == 0 {
		return attempt{kind: attemptRetryable, err: fmt.Errorf("empty response from API")}
	}

	return attempt{kind: attemptSuccess, content: strings.TrimSpace(chat.Choices[0].Message.Content)}
}

// parseRetryAfter honors a non-negative integer Retry-After header, falls
// back to 10s otherwise, and caps the wait at 60s.
func parseRetryAfter(header string) time.Duration {
	wait := rateLimitDefaultWait
	if header != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	if wait > rateLimitMaxWait {
		wait = rateLimitMaxWait
	}
	return wait
}

// TestConnection sends a minimal probe request and classifies the outcome.
// It always returns; the diagnostic is meant to be shown to the user as-is.
func (c *Client) TestConnection(ctx context.Context) (bool, string) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "user", Content: "Hi, respond with 'OK'"},
		},
		Temperature: temperature,
		MaxTokens:   10,
	})
	if err != nil {
		return false, fmt.Sprintf("connection failed: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Sprintf("connection failed: %v\nendpoint: %s", err, c.endpoint)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		if ue, ok := err.(*url.Error); ok && ue.Timeout() {
			return false, fmt.Sprintf("connection failed (timeout)\nendpoint: %s", c.endpoint)
		}
		return false, fmt.Sprintf("connection failed (network error): %v\nendpoint: %s", err, c.endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet := readSnippet(resp.Body)
		return false, fmt.Sprintf("connection failed (HTTP %d)\nendpoint: %s\nserver response: %s",
			resp.StatusCode, c.endpoint, snippet)
	}

	return true, fmt.Sprintf("connection ok, model: %s\nendpoint: %s", c.model, c.endpoint)
}

func readSnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxBodySnippet))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
