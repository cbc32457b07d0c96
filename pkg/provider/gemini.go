package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/models"
)

// Gemini talks to the Google Generative Language generateContent API.
type Gemini struct {
	base
}

// NewGemini creates a Gemini adapter. client may be nil.
func NewGemini(cfg config.ProviderConfig, client *http.Client) *Gemini {
	return &Gemini{base: newBase(cfg, client)}
}

// Complete implements Provider.
func (p *Gemini) Complete(ctx context.Context, prompt string, attrs map[string]any) (models.Completion, error) {
	req := models.GeminiRequest{
		Contents: []models.GeminiContent{{
			Role:  "user",
			Parts: []models.GeminiPart{{Text: BuildPrompt(prompt, attrs)}},
		}},
		SystemInstruction: &models.GeminiContent{
			Parts: []models.GeminiPart{{Text: SystemPrompt}},
		},
		GenerationConfig: &models.GeminiGenerationConfig{
			Temperature:     p.temperature(),
			MaxOutputTokens: p.maxTokens(),
		},
	}
	path := "/v1beta/models/" + url.PathEscape(p.cfg.Model) + ":generateContent"
	headers := map[string]string{"x-goog-api-key": p.cfg.APIKey}

	var resp models.GeminiResponse
	if err := p.post(ctx, path, headers, req, &resp); err != nil {
		return models.Completion{}, err
	}
	if len(resp.Candidates) == 0 {
		return models.Completion{}, malformed(p.cfg.Name, errors.New("no candidates"))
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return models.Completion{}, malformed(p.cfg.Name, errors.New("empty candidate"))
	}

	c := models.Completion{Text: text.String(), Provider: p.cfg.Name}
	if resp.UsageMetadata != nil {
		c.InputTokens = resp.UsageMetadata.PromptTokenCount
		c.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	return c, nil
}
