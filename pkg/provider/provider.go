// Package provider adapts upstream LLM APIs to a single call shape:
// send a prompt, receive text and token counts.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pario-ai/giftrouter/pkg/models"
)

// Provider is an upstream LLM that can complete a gift prompt.
type Provider interface {
	Name() string
	// Available reports whether the provider has the credentials it needs.
	Available() bool
	// Complete sends the query with its context attributes upstream.
	Complete(ctx context.Context, prompt string, attrs map[string]any) (models.Completion, error)
}

// Kind classifies a provider failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindAuth        Kind = "auth"
	KindRateLimit   Kind = "rate_limit"
	KindMalformed   Kind = "malformed_response"
	KindUnavailable Kind = "unavailable"
)

// Error is returned by adapters for every failed call.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" if err is not a provider
// error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// statusError maps a non-2xx HTTP status to a provider error.
func statusError(provider string, status int, body []byte) *Error {
	kind := KindUnavailable
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	}
	return &Error{
		Kind:       kind,
		Provider:   provider,
		StatusCode: status,
		Err:        fmt.Errorf("upstream returned %s", snippet(body)),
	}
}

// transportError maps a failed round trip to a provider error.
func transportError(ctx context.Context, provider string, err error) *Error {
	kind := KindUnavailable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}

func malformed(provider string, err error) *Error {
	return &Error{Kind: KindMalformed, Provider: provider, Err: err}
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	if len(body) == 0 {
		return "empty body"
	}
	return string(body)
}
