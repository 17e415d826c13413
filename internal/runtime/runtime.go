// Package runtime wires the named singletons together: store, change
// bus, deletion log, reference registry, webhook pipeline, WebSocket
// server, plugin loader, and the HTTP front. One Runtime is one logical
// data layer instance; tests construct as many as they like.
package runtime

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/udl-dev/udl/internal/actions"
	"github.com/udl-dev/udl/internal/configfile"
	"github.com/udl-dev/udl/internal/deletions"
	"github.com/udl-dev/udl/internal/eventbus"
	"github.com/udl-dev/udl/internal/refs"
	"github.com/udl-dev/udl/internal/server"
	"github.com/udl-dev/udl/internal/source"
	"github.com/udl-dev/udl/internal/store"
	"github.com/udl-dev/udl/internal/telemetry"
	"github.com/udl-dev/udl/internal/webhook"
	"github.com/udl-dev/udl/internal/ws"
)

// Options tunes runtime construction beyond the config file.
type Options struct {
	// Debounce overrides the webhook debounce window.
	Debounce time.Duration
	// Heartbeat overrides the WebSocket heartbeat interval.
	Heartbeat time.Duration
	// Readiness checks added to the defaults.
	Readiness []server.ReadinessCheck
}

// Runtime owns one data layer's collaborators.
type Runtime struct {
	Config *configfile.Config

	Store     *store.Store
	Bus       *eventbus.Bus
	Deletions *deletions.Log
	Refs      *refs.Registry
	Webhooks  *webhook.Registry
	Queue     *webhook.Queue
	WS        *ws.Server
	Server    *server.Server
	Loader    *source.Loader
	Actions   *telemetry.InstrumentedActions

	// graphqlReady flips once the schema layer can answer: either no
	// plugins are configured, or LoadPlugins has completed.
	graphqlReady *atomic.Bool
}

// New builds a fully wired runtime from a loaded config.
func New(cfg *configfile.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		cfg = configfile.DefaultConfig()
	}

	st := store.New()
	bus := eventbus.New()

	var del *deletions.Log
	if cfg.DeletionLog != "" {
		var err error
		del, err = deletions.NewPersistent(cfg.DeletionLog)
		if err != nil {
			return nil, fmt.Errorf("opening deletion log: %w", err)
		}
	} else {
		del = deletions.New()
	}

	actionsCtx := actions.Context{Store: st, Bus: bus, Deletions: del}

	refsReg := refs.NewRegistry()
	webhookReg := webhook.NewRegistry()
	wsServer := ws.NewServer(bus, opts.Heartbeat)

	queue := webhook.NewQueue(opts.Debounce,
		webhook.NewProcessor(webhookReg, actionsCtx, wsServer))
	dispatcher := webhook.NewDispatcher(webhookReg, queue)

	graphqlReady := new(atomic.Bool)
	graphqlReady.Store(len(cfg.Plugins) == 0)

	readiness := append([]server.ReadinessCheck{
		{Name: "graphql", Check: graphqlReady.Load},
		{Name: "nodeStore", Check: func() bool { return st != nil }},
		{Name: "changeBus", Check: func() bool { return bus != nil }},
	}, opts.Readiness...)

	httpServer := server.New(server.Config{
		Addr:      cfg.Addr(),
		Sync:      server.NewSyncHandler(st, del),
		Webhooks:  dispatcher,
		WebSocket: wsServer,
		Readiness: readiness,
	})

	loader := source.NewLoader(actionsCtx, refsReg, webhookReg)

	return &Runtime{
		Config:    cfg,
		Store:     st,
		Bus:       bus,
		Deletions: del,
		Refs:      refsReg,
		Webhooks:  webhookReg,
		Queue:     queue,
		WS:        wsServer,
		Server:    httpServer,
		Loader:    loader,
		Actions:   telemetry.WrapActions(actionsCtx),

		graphqlReady: graphqlReady,
	}, nil
}

// LoadPlugins runs the config's top-level plugin refs through the
// loader. baseDir anchors relative resolution and cache directories.
func (r *Runtime) LoadPlugins(baseDir string) error {
	if err := r.Loader.Load(r.Config.Plugins, baseDir); err != nil {
		return err
	}
	r.graphqlReady.Store(true)
	return nil
}

// Reset clears mutable state: nodes, tombstones, resolvers, and
// webhook registrations. The wiring itself survives, including the
// WebSocket server's bus subscription.
func (r *Runtime) Reset() {
	r.Store.Clear()
	r.Deletions.Clear()
	r.Refs.Clear()
	r.Webhooks.Clear()
}

// Close stops the queue, WebSocket server, and HTTP server.
func (r *Runtime) Close(ctx context.Context) error {
	r.Queue.Close()
	r.WS.Close()
	return r.Server.Shutdown(ctx)
}
