package usecase

import (
	"sort"
	"strings"
)

type prefixRoute struct {
	prefix  string
	handler Handler
}

// Router resolves a topic to its handler: exact match, then the longest registered prefix,
// then the fallback.
type Router struct {
	exact    map[string]Handler
	prefixes []prefixRoute
	fallback Handler
}

// NewRouter creates a Router that sends unmatched topics to fallback.
func NewRouter(fallback Handler) *Router {
	return &Router{
		exact:    make(map[string]Handler),
		fallback: fallback,
	}
}

// Handle registers handler for exactly topic.
func (r *Router) Handle(topic string, handler Handler) *Router {
	r.exact[topic] = handler
	return r
}

// HandlePrefix registers handler for every topic starting with prefix.
func (r *Router) HandlePrefix(prefix string, handler Handler) *Router {
	for i := range r.prefixes {
		if r.prefixes[i].prefix == prefix {
			r.prefixes[i].handler = handler
			return r
		}
	}

	r.prefixes = append(r.prefixes, prefixRoute{prefix: prefix, handler: handler})
	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].prefix) > len(r.prefixes[j].prefix)
	})
	return r
}

// Route returns the handler for topic. It never returns nil when a fallback is set.
func (r *Router) Route(topic string) Handler {
	if handler, ok := r.exact[topic]; ok {
		return handler
	}
	for _, route := range r.prefixes {
		if strings.HasPrefix(topic, route.prefix) {
			return route.handler
		}
	}
	return r.fallback
}
