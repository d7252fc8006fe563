package router

import (
	"fmt"

	"github.com/pario-ai/deckgen/pkg/config"
)

// Chain is an ordered list of models to try for one logical model.
type Chain []string

// Primary returns the first model of the chain.
func (c Chain) Primary() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Fallback returns the second model of the chain, or "" when there is none.
func (c Chain) Fallback() string {
	if len(c) < 2 {
		return ""
	}
	return c[1]
}

// Router resolves requested model names to ordered model chains.
type Router struct {
	routes []config.RouteConfig
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	return &Router{routes: cfg.Router.Routes}
}

// Resolve returns the ordered chain for the requested model.
// If the model matches a configured route, the route's targets are returned
// with empty and repeated entries removed. Otherwise the model resolves to itself.
func (r *Router) Resolve(requestedModel string) (Chain, error) {
	if requestedModel == "" {
		return nil, fmt.Errorf("no model requested")
	}

	for _, route := range r.routes {
		if route.Model != requestedModel {
			continue
		}
		seen := make(map[string]bool, len(route.Targets))
		var chain Chain
		for _, target := range route.Targets {
			if target == "" || seen[target] {
				continue
			}
			seen[target] = true
			chain = append(chain, target)
		}
		if len(chain) == 0 {
			return nil, fmt.Errorf("route %q: no targets", requestedModel)
		}
		return chain, nil
	}

	// No matching route, use the model as is
	return Chain{requestedModel}, nil
}
