package provider

import (
	"fmt"

	"github.com/commercekit/payments/internal/domain"
)

// Registry maps a provider name to its integration. Built once at startup;
// nil entries are skipped so optional rails can be left unconfigured.
type Registry struct {
	providers map[domain.Provider]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.Provider]Provider)}
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name domain.Provider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("registry: %q: %w", name, domain.ErrUnsupportedProvider)
	}
	return p, nil
}

func (r *Registry) Exists(name domain.Provider) bool {
	_, ok := r.providers[name]
	return ok
}
