// Package classifier scores gift queries and maps the score to a
// complexity tier. Scoring is pure: it depends only on the request text,
// its context and the configured weights.
package classifier

import (
	"strings"
	"unicode"

	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/models"
)

// Classifier assigns complexity tiers to requests.
type Classifier struct {
	cfg         config.ClassifierConfig
	complexCues []string
	mediumCues  []string
	markers     []string
}

// New creates a Classifier from cfg. Cues are normalised once here.
func New(cfg config.ClassifierConfig) *Classifier {
	return &Classifier{
		cfg:         cfg,
		complexCues: normalizeAll(cfg.ComplexCues),
		mediumCues:  normalizeAll(cfg.MediumCues),
		markers:     normalizeAll(cfg.ComparisonMarkers),
	}
}

// Classify returns the tier for req.
func (c *Classifier) Classify(req models.Request) models.Tier {
	return c.tierFor(c.Score(req))
}

// Breakdown lists the points each signal contributed.
type Breakdown struct {
	Words      int `json:"words"`
	Cues       int `json:"cues"`
	Questions  int `json:"questions"`
	Context    int `json:"context"`
	Comparison int `json:"comparison"`
	Total      int `json:"total"`
}

// Score returns the raw complexity score for req.
func (c *Classifier) Score(req models.Request) int {
	return c.Explain(req).Total
}

// Explain returns the per-signal score for req.
func (c *Classifier) Explain(req models.Request) Breakdown {
	var b Breakdown
	padded := " " + normalize(req.Query) + " "

	switch wc := len(strings.Fields(req.Query)); {
	case wc > c.cfg.LongWords:
		b.Words = c.cfg.LongWeight
	case wc > c.cfg.MediumWords:
		b.Words = c.cfg.MediumWeight
	case wc > c.cfg.ShortWords:
		b.Words = c.cfg.ShortWeight
	}

	for _, cue := range c.complexCues {
		if containsWord(padded, cue) {
			b.Cues += c.cfg.ComplexCueWeight
		}
	}
	for _, cue := range c.mediumCues {
		if containsWord(padded, cue) {
			b.Cues += c.cfg.MediumCueWeight
		}
	}

	if strings.Count(req.Query, "?") > 1 || sentences(req.Query) > 2 {
		b.Questions = c.cfg.MultiQuestionWeight
	}

	switch n := contextAttrs(req.Context); {
	case n > c.cfg.ContextManyAttrs:
		b.Context = c.cfg.ContextManyWeight
	case n > c.cfg.ContextFewAttrs:
		b.Context = c.cfg.ContextFewWeight
	}

	for _, m := range c.markers {
		if containsWord(padded, m) {
			b.Comparison = c.cfg.ComparisonWeight
			break
		}
	}

	b.Total = b.Words + b.Cues + b.Questions + b.Context + b.Comparison
	return b
}

func (c *Classifier) tierFor(score int) models.Tier {
	switch {
	case score >= c.cfg.ComplexThreshold:
		return models.TierComplex
	case score >= c.cfg.MediumThreshold:
		return models.TierMedium
	default:
		return models.TierSimple
	}
}

// normalize lowercases s and turns every run of non-alphanumeric runes into
// a single space, so "pour," and "pour" compare equal.
func normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

func normalizeAll(cues []string) []string {
	out := make([]string, 0, len(cues))
	for _, cue := range cues {
		if n := normalize(cue); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// containsWord reports whether the space-padded text holds phrase as whole
// words.
func containsWord(padded, phrase string) bool {
	return strings.Contains(padded, " "+phrase+" ")
}

func sentences(s string) int {
	n := 0
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}

func contextAttrs(ctx map[string]any) int {
	n := 0
	for _, v := range ctx {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		n++
	}
	return n
}
