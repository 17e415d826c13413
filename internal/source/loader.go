package source

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/udl-dev/udl/internal/actions"
	"github.com/udl-dev/udl/internal/refs"
	"github.com/udl-dev/udl/internal/webhook"
)

// maxDepth bounds plugin nesting; deeper trees stop with a warning
// rather than recursing forever through a cycle.
const maxDepth = 10

// Loader resolves plugin refs against the registration table and runs
// their lifecycle: OnLoad, RegisterTypes, cache restore, SourceNodes,
// cache snapshot, then nested plugins.
type Loader struct {
	registry map[string]*Plugin

	Actions  actions.Context
	Refs     *refs.Registry
	Webhooks *webhook.Registry

	codegen []CodegenEntry
}

// NewLoader creates a loader over the given collaborators, seeded with
// the builtin plugin table.
func NewLoader(actionsCtx actions.Context, refsReg *refs.Registry, webhooks *webhook.Registry) *Loader {
	l := &Loader{
		registry: make(map[string]*Plugin),
		Actions:  actionsCtx,
		Refs:     refsReg,
		Webhooks: webhooks,
	}
	for _, p := range Builtins() {
		_ = l.Register(p)
	}
	return l
}

// Register adds a plugin to the resolution table under its Name and,
// when set, its PackageName.
func (l *Loader) Register(p *Plugin) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("source: plugin requires a name")
	}
	l.registry[p.Name] = p
	if p.PackageName != "" {
		l.registry[p.PackageName] = p
	}
	return nil
}

// Load resolves and runs each ref. baseDir anchors relative-path
// resolution and per-source cache directories. Unresolvable refs warn
// and are skipped; a failing plugin aborts the load.
func (l *Loader) Load(refsToLoad []Ref, baseDir string) error {
	return l.load(refsToLoad, baseDir, 0)
}

// CodegenEntries returns codegen runs contributed by the loaded tree.
func (l *Loader) CodegenEntries() []CodegenEntry {
	return append([]CodegenEntry(nil), l.codegen...)
}

func (l *Loader) load(refsToLoad []Ref, baseDir string, depth int) error {
	if depth >= maxDepth {
		slog.Warn("plugin nesting too deep, stopping", "depth", depth, "limit", maxDepth)
		return nil
	}

	for _, ref := range refsToLoad {
		plugin, dir := l.resolve(ref, baseDir)
		if plugin == nil {
			slog.Warn("plugin not found, skipping", "name", ref.Name)
			continue
		}
		if err := l.runPlugin(plugin, ref, dir, depth); err != nil {
			return fmt.Errorf("loading plugin %s: %w", plugin.Name, err)
		}
	}
	return nil
}

// resolve looks a ref up: the relative path against baseDir first, then
// the bare name (local or package registration). The returned dir is
// the plugin's cache anchor.
func (l *Loader) resolve(ref Ref, baseDir string) (*Plugin, string) {
	if baseDir != "" {
		rel := filepath.Join(baseDir, ref.Name)
		if p, ok := l.registry[rel]; ok {
			return p, rel
		}
	}
	if p, ok := l.registry[ref.Name]; ok {
		return p, filepath.Join(baseDir, p.Name)
	}
	return nil, ""
}

func (l *Loader) runPlugin(p *Plugin, ref Ref, dir string, depth int) error {
	loadCtx := &LoadContext{
		Actions:  l.ownedActions(p.Name),
		Refs:     l.Refs,
		Webhooks: l.Webhooks,
		Options:  ref.Options,
		Dir:      dir,
		plugin:   p.Name,
	}

	if p.OnLoad != nil {
		if err := p.OnLoad(loadCtx); err != nil {
			return fmt.Errorf("onLoad: %w", err)
		}
	}
	if p.RegisterTypes != nil {
		if err := p.RegisterTypes(loadCtx); err != nil {
			return fmt.Errorf("registerTypes: %w", err)
		}
	}

	if p.ReferenceResolver != nil && l.Refs != nil {
		if err := l.Refs.Register(*p.ReferenceResolver); err != nil {
			return fmt.Errorf("registering resolver: %w", err)
		}
	}
	for typename, cfg := range p.EntityKeys {
		if l.Refs != nil {
			l.Refs.SetEntityKeyConfig(typename, cfg)
		}
	}
	if l.Webhooks != nil {
		for _, h := range p.Webhooks {
			l.Webhooks.Register(p.Name, h)
		}
	}

	for typeName, fields := range p.Config.Indexes {
		for _, field := range fields {
			l.Actions.Store.RegisterIndex(typeName, field)
		}
	}

	cache := newCache(p, dir)
	if cache != nil {
		if restored, err := cache.restore(l.ownedActions(p.Name)); err != nil {
			slog.Warn("cache restore failed, sourcing fresh", "plugin", p.Name, "error", err)
		} else if restored > 0 {
			slog.Debug("restored cached nodes", "plugin", p.Name, "nodes", restored)
		}
	}

	if p.SourceNodes != nil {
		srcCtx := &SourceContext{
			Actions: l.ownedActions(p.Name),
			Options: ref.Options,
			Dir:     dir,
		}
		if err := p.SourceNodes(srcCtx); err != nil {
			return fmt.Errorf("sourceNodes: %w", err)
		}
	}

	if cache != nil {
		if err := cache.snapshot(l.Actions.Store); err != nil {
			slog.Warn("cache snapshot failed", "plugin", p.Name, "error", err)
		}
	}

	if p.Config.Codegen != nil {
		l.codegen = append(l.codegen, CodegenEntry{PluginName: p.Name, Config: *p.Config.Codegen})
	}

	if len(p.Config.Plugins) > 0 {
		if err := l.load(p.Config.Plugins, dir, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// ownedActions returns the action context with owner stamped to the
// plugin, so every node it creates is attributable.
func (l *Loader) ownedActions(owner string) actions.Context {
	ctx := l.Actions
	ctx.Owner = owner
	return ctx
}

func newCache(p *Plugin, dir string) *nodeCache {
	if !p.Config.Cache || dir == "" {
		return nil
	}
	return &nodeCache{plugin: p.Name, dir: dir}
}
