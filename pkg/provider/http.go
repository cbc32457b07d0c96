package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pario-ai/giftrouter/pkg/config"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// base carries the HTTP plumbing shared by every adapter.
type base struct {
	cfg     config.ProviderConfig
	client  *http.Client
	limiter *rate.Limiter
}

func newBase(cfg config.ProviderConfig, client *http.Client) base {
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport}
	}
	b := base{cfg: cfg, client: client}
	if cfg.RateLimitRPS > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	return b
}

func (b *base) Name() string { return b.cfg.Name }

func (b *base) Available() bool { return b.cfg.Available() }

// post sends payload as JSON to path and decodes a 2xx body into out.
func (b *base) post(ctx context.Context, path string, headers map[string]string, payload, out any) error {
	if !b.Available() {
		return &Error{Kind: KindAuth, Provider: b.cfg.Name, Err: errors.New("no API key configured")}
	}
	if b.limiter != nil && !b.limiter.Allow() {
		return &Error{Kind: KindRateLimit, Provider: b.cfg.Name, Err: errors.New("client-side rate limit reached")}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	result, err := doUpstreamRequest(ctx, b.client, b.cfg.URL, path, headers, body)
	if err != nil {
		return transportError(ctx, b.cfg.Name, err)
	}
	if result.statusCode < 200 || result.statusCode > 299 {
		return statusError(b.cfg.Name, result.statusCode, result.body)
	}
	if err := json.Unmarshal(result.body, out); err != nil {
		return malformed(b.cfg.Name, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// upstreamResult holds the response from a single upstream attempt.
type upstreamResult struct {
	statusCode int
	body       []byte
}

// doUpstreamRequest sends a JSON POST to an upstream provider and returns the result.
func doUpstreamRequest(ctx context.Context, client *http.Client, providerURL, path string, headers map[string]string, body []byte) (*upstreamResult, error) {
	target, err := url.Parse(strings.TrimRight(providerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String()+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &upstreamResult{
		statusCode: resp.StatusCode,
		body:       respBody,
	}, nil
}

func (b *base) temperature() *float64 {
	t := b.cfg.Temperature
	return &t
}

func (b *base) maxTokens() int {
	if b.cfg.MaxTokens > 0 {
		return b.cfg.MaxTokens
	}
	return 1024
}
