package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/models"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint, such as
// Together.ai.
type OpenAI struct {
	base
}

// NewOpenAI creates an OpenAI-compatible adapter. client may be nil.
func NewOpenAI(cfg config.ProviderConfig, client *http.Client) *OpenAI {
	return &OpenAI{base: newBase(cfg, client)}
}

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, prompt string, attrs map[string]any) (models.Completion, error) {
	maxTokens := p.maxTokens()
	req := models.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []models.ChatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: BuildPrompt(prompt, attrs)},
		},
		Temperature: p.temperature(),
		MaxTokens:   &maxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}

	var resp models.ChatCompletionResponse
	if err := p.post(ctx, "/v1/chat/completions", headers, req, &resp); err != nil {
		return models.Completion{}, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return models.Completion{}, malformed(p.cfg.Name, errors.New("no completion text"))
	}

	c := models.Completion{
		Text:     resp.Choices[0].Message.Content,
		Provider: p.cfg.Name,
	}
	if resp.Usage != nil {
		c.InputTokens = resp.Usage.PromptTokens
		c.OutputTokens = resp.Usage.CompletionTokens
	}
	return c, nil
}
