package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
)

var (
	validEnvironments = []string{"development", "staging", "production"}
	validLogLevels    = []string{"debug", "info", "warn", "error"}
	validBackends     = []string{"redis", "sqlite", "memory"}
	validTypes        = []string{"openai", "anthropic", "gemini"}
)

// Validate checks the configuration for errors that must stop startup.
// A configuration without any available provider fails with
// ErrNoProviderConfigured.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(validEnvironments, c.Environment) {
		errs = append(errs, fmt.Errorf("environment %q must be one of %v", c.Environment, validEnvironments))
	}
	if !slices.Contains(validLogLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log level %q must be one of %v", c.Log.Level, validLogLevels))
	}
	if _, port, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen %q: %w", c.Listen, err))
	} else if port != "" {
		if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
			errs = append(errs, fmt.Errorf("listen port %q must be between 0 and 65535", port))
		}
	}

	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: name is required", i))
			continue
		}
		if names[p.Name] {
			errs = append(errs, fmt.Errorf("provider %q declared twice", p.Name))
		}
		names[p.Name] = true
		if p.Type != "" && !slices.Contains(validTypes, p.Type) {
			errs = append(errs, fmt.Errorf("provider %q: type %q must be one of %v", p.Name, p.Type, validTypes))
		}
		if p.Pricing.InputPer1K < 0 || p.Pricing.OutputPer1K < 0 {
			errs = append(errs, fmt.Errorf("provider %q: pricing must not be negative", p.Name))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("provider %q: timeout must not be negative", p.Name))
		}
	}

	for tier, name := range c.Router.Tiers {
		if !tier.Valid() {
			errs = append(errs, fmt.Errorf("router: unknown tier %q", tier))
		}
		if !names[name] {
			errs = append(errs, fmt.Errorf("router: tier %s maps to unknown provider %q", tier, name))
		}
	}
	for _, name := range c.Router.FallbackOrder {
		if !names[name] {
			errs = append(errs, fmt.Errorf("router: fallback order names unknown provider %q", name))
		}
	}

	cl := c.Classifier
	if cl.MediumThreshold <= 0 || cl.ComplexThreshold <= cl.MediumThreshold {
		errs = append(errs, fmt.Errorf("classifier: thresholds must satisfy 0 < medium (%d) < complex (%d)",
			cl.MediumThreshold, cl.ComplexThreshold))
	}
	if cl.ShortWords > cl.MediumWords || cl.MediumWords > cl.LongWords {
		errs = append(errs, errors.New("classifier: word thresholds must be ordered short <= medium <= long"))
	}

	if c.Cache.Enabled {
		if !slices.Contains(validBackends, c.Cache.Backend) {
			errs = append(errs, fmt.Errorf("cache backend %q must be one of %v", c.Cache.Backend, validBackends))
		}
		if c.Cache.TTL <= 0 {
			errs = append(errs, errors.New("cache ttl must be positive"))
		}
		if c.Cache.Backend == "redis" && strings.TrimSpace(c.Cache.KeyPrefix) == "" {
			errs = append(errs, errors.New("cache key_prefix must not be empty with the redis backend"))
		}
	}

	available := c.AvailableProviders()
	if len(available) == 0 {
		errs = append(errs, ErrNoProviderConfigured)
	} else if c.Router.Primary != "" && !slices.Contains(available, c.Router.Primary) {
		errs = append(errs, fmt.Errorf("primary provider %q has no credentials: %w", c.Router.Primary, ErrNoProviderConfigured))
	}

	return errors.Join(errs...)
}

// Summary returns the configuration with secrets removed.
func (c *Config) Summary() map[string]any {
	providers := make(map[string]any, len(c.Providers))
	for _, p := range c.Providers {
		providers[p.Name] = map[string]any{
			"type":       p.Type,
			"model":      p.Model,
			"configured": p.Available(),
			"pricing":    p.Pricing,
		}
	}
	tiers := make(map[string]string, len(c.Router.Tiers))
	for tier, name := range c.Router.Tiers {
		tiers[string(tier)] = name
	}
	return map[string]any{
		"environment": c.Environment,
		"log_level":   c.Log.Level,
		"providers":   providers,
		"router": map[string]any{
			"primary":        c.Router.Primary,
			"tiers":          tiers,
			"fallback_order": c.Router.FallbackOrder,
		},
		"classifier": map[string]int{
			"medium_threshold":  c.Classifier.MediumThreshold,
			"complex_threshold": c.Classifier.ComplexThreshold,
		},
		"cache": map[string]any{
			"enabled":  c.Cache.Enabled,
			"backend":  c.Cache.Backend,
			"ttl_days": int(c.Cache.TTL.Hours() / 24),
		},
		"ledger": map[string]any{
			"enabled": c.Ledger.Enabled,
		},
	}
}
