// Package webhook implements the webhook pipeline: a path-based handler
// registry, a debounced coalescing queue that groups incoming webhooks
// into batches, and the HTTP dispatcher that validates and enqueues
// work before the handlers run.
package webhook

import (
	"net/http"
	"sync"

	"github.com/udl-dev/udl/internal/actions"
)

// HandlerContext is what a plugin webhook handler receives for each
// queued delivery.
type HandlerContext struct {
	Actions actions.Context
	Body    map[string]any
	RawBody []byte
	Headers http.Header
	Path    string
}

// Handler is a plugin's webhook registration. VerifySignature, when
// set, is consulted before the work is queued; returning false rejects
// the delivery with 401.
type Handler struct {
	Path            string
	Handle          func(ctx HandlerContext) error
	VerifySignature func(r *http.Request, rawBody []byte) bool
}

// Registry maps (plugin, path) to handlers. URLs take the shape
// /_webhooks/<plugin>/<path...>.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler
}

// NewRegistry creates an empty webhook registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]map[string]Handler)}
}

// Register records a handler for a plugin path, replacing any previous
// registration at the same path.
func (r *Registry) Register(plugin string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers[plugin] == nil {
		r.handlers[plugin] = make(map[string]Handler)
	}
	r.handlers[plugin][h.Path] = h
}

// Lookup returns the handler registered for (plugin, path).
func (r *Registry) Lookup(plugin, path string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[plugin][path]
	return h, ok
}

// Clear drops every registration. Used by tests and runtime resets.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]map[string]Handler)
}
