package provider

import (
	"fmt"
	"net/http"

	"github.com/pario-ai/giftrouter/pkg/config"
)

// New builds the adapter for cfg.Type. An empty type means "openai".
func New(cfg config.ProviderConfig, client *http.Client) (Provider, error) {
	switch cfg.Type {
	case "", "openai":
		return NewOpenAI(cfg, client), nil
	case "anthropic":
		return NewAnthropic(cfg, client), nil
	case "gemini":
		return NewGemini(cfg, client), nil
	default:
		return nil, fmt.Errorf("provider %q: unknown type %q", cfg.Name, cfg.Type)
	}
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
	order     []string
}

// NewRegistry creates a registry holding ps, in order.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// FromConfig builds a registry with one adapter per configured provider.
func FromConfig(cfg *config.Config) (*Registry, error) {
	r := NewRegistry()
	for _, pc := range cfg.Providers {
		p, err := New(pc, nil)
		if err != nil {
			return nil, err
		}
		r.Register(p)
	}
	return r, nil
}

// Register adds p, replacing any provider with the same name.
func (r *Registry) Register(p Provider) {
	if _, ok := r.providers[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Available reports whether name is registered and has credentials.
func (r *Registry) Available(name string) bool {
	p, ok := r.providers[name]
	return ok && p.Available()
}

// Names returns every registered provider name in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Status reports availability per provider.
func (r *Registry) Status() map[string]bool {
	m := make(map[string]bool, len(r.order))
	for _, name := range r.order {
		m[name] = r.providers[name].Available()
	}
	return m
}
