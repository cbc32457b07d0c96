package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/models"
)

const anthropicVersion = "2023-06-01"

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	base
}

// NewAnthropic creates an Anthropic adapter. client may be nil.
func NewAnthropic(cfg config.ProviderConfig, client *http.Client) *Anthropic {
	return &Anthropic{base: newBase(cfg, client)}
}

// Complete implements Provider.
func (p *Anthropic) Complete(ctx context.Context, prompt string, attrs map[string]any) (models.Completion, error) {
	req := models.AnthropicRequest{
		Model:       p.cfg.Model,
		System:      SystemPrompt,
		Messages:    []models.ChatMessage{{Role: "user", Content: BuildPrompt(prompt, attrs)}},
		MaxTokens:   p.maxTokens(),
		Temperature: p.temperature(),
	}
	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}

	var resp models.AnthropicResponse
	if err := p.post(ctx, "/v1/messages", headers, req, &resp); err != nil {
		return models.Completion{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return models.Completion{}, malformed(p.cfg.Name, errors.New("no text content"))
	}

	c := models.Completion{Text: text.String(), Provider: p.cfg.Name}
	if resp.Usage != nil {
		c.InputTokens = resp.Usage.InputTokens
		c.OutputTokens = resp.Usage.OutputTokens
	}
	return c, nil
}
