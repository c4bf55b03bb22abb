package backend

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

// CompletionRequest is the llama.cpp /completion request body.
type CompletionRequest struct {
	Prompt        string   `json:"prompt"`
	NPredict      int      `json:"n_predict"`
	Temperature   float64  `json:"temperature"`
	TopK          int      `json:"top_k,omitempty"`
	TopP          float64  `json:"top_p,omitempty"`
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	CachePrompt   bool     `json:"cache_prompt"`
	Stream        bool     `json:"stream"`
}

// Timings is advisory server-side telemetry.
type Timings struct {
	PromptMS    float64 `json:"prompt_ms"`
	PredictedMS float64 `json:"predicted_ms"`
}

// CompletionResponse is the subset of the llama.cpp reply we use. Only
// Content is required; the rest is telemetry.
type CompletionResponse struct {
	Content         string   `json:"content"`
	TokensPredicted int      `json:"tokens_predicted"`
	TokensEvaluated int      `json:"tokens_evaluated"`
	StopType        string   `json:"stop_type"`
	Timings         *Timings `json:"timings,omitempty"`
}

// Client talks to a llama.cpp server over HTTP.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient returns a client for baseURL. A nil hc uses a client without a
// global timeout; every call carries a context deadline instead.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 0}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Health returns nil when GET /health answers 2xx.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

// Probe reports whether /health answers 2xx within timeout.
func (c *Client) Probe(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Health(ctx) == nil
}

// Complete performs one non-streaming completion call.
func (c *Client) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	in.Stream = false
	body, err := json.Marshal(in)
	if err != nil {
		return CompletionResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, requestFailedError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return CompletionResponse{}, cancelledError{err: ctx.Err()}
		}
		return CompletionResponse{}, requestFailedError{err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return CompletionResponse{}, requestFailedError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	var raw struct {
		CompletionResponse
		Content *string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if ctx.Err() != nil {
			return CompletionResponse{}, cancelledError{err: ctx.Err()}
		}
		return CompletionResponse{}, malformedResponseError{err: err}
	}
	if raw.Content == nil {
		return CompletionResponse{}, malformedResponseError{err: errors.New("missing content field")}
	}
	out := raw.CompletionResponse
	out.Content = *raw.Content
	return out, nil
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() { c.hc.CloseIdleConnections() }
