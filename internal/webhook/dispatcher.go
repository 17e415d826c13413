package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/udl-dev/udl/internal/actions"
)

// Prefix is the URL prefix the dispatcher is mounted under.
const Prefix = "/_webhooks/"

// maxBodySize bounds webhook request bodies (1MB).
const maxBodySize = 1 << 20

// Broadcaster receives a notification for every processed webhook so
// it can be fanned out to observability consumers (the WebSocket
// server implements this with a webhook:received message).
type Broadcaster interface {
	BroadcastWebhook(plugin string, body map[string]any, headers http.Header)
}

// Dispatcher is the HTTP handler for /_webhooks/<plugin>/<path...>.
// It validates the delivery, responds 202 immediately, and leaves the
// actual handler execution to the queue's batch processor — callers
// learn about handler failures via observability, never via HTTP.
type Dispatcher struct {
	registry *Registry
	queue    *Queue
}

// NewDispatcher wires a dispatcher to a registry and queue.
func NewDispatcher(registry *Registry, queue *Queue) *Dispatcher {
	return &Dispatcher{registry: registry, queue: queue}
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed: use POST")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, Prefix)
	plugin, path, ok := strings.Cut(rest, "/")
	if !ok || plugin == "" || path == "" {
		writeJSONError(w, http.StatusNotFound, "Unknown webhook path")
		return
	}

	handler, ok := d.registry.Lookup(plugin, path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "No webhook registered for "+plugin+"/"+path)
		return
	}

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	defer func() { _ = r.Body.Close() }()

	var body map[string]any
	if err := json.Unmarshal(rawBody, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if handler.VerifySignature != nil && !handler.VerifySignature(r, rawBody) {
		writeJSONError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	d.queue.Enqueue(Item{
		Plugin:  plugin,
		Path:    path,
		Headers: r.Header.Clone(),
		RawBody: rawBody,
		Body:    body,
	})

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]bool{"queued": true})
}

// NewProcessor builds the batch processor run by the queue: items are
// processed in enqueue order, each handler failure is logged and never
// aborts the batch.
func NewProcessor(registry *Registry, actionsCtx actions.Context, broadcaster Broadcaster) BatchProcessor {
	return func(batch []Item) {
		for _, item := range batch {
			handler, ok := registry.Lookup(item.Plugin, item.Path)
			if !ok {
				slog.Warn("webhook handler unregistered since enqueue",
					"plugin", item.Plugin, "path", item.Path)
				continue
			}
			ctx := HandlerContext{
				Actions: actionsCtx,
				Body:    item.Body,
				RawBody: item.RawBody,
				Headers: item.Headers,
				Path:    item.Path,
			}
			if err := handler.Handle(ctx); err != nil {
				slog.Error("webhook handler failed",
					"plugin", item.Plugin, "path", item.Path, "error", err)
			}
			if broadcaster != nil {
				broadcaster.BroadcastWebhook(item.Plugin, item.Body, item.Headers)
			}
		}
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
