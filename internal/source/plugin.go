// Package source loads content-source plugins: compile-time registered
// units that declare types, produce nodes, register reference resolvers
// and webhook handlers, and may nest further plugins. Loaded sources
// can snapshot their nodes to a per-source cache directory so restarts
// rehydrate without refetching.
package source

import (
	"encoding/json"
	"fmt"

	"github.com/udl-dev/udl/internal/actions"
	"github.com/udl-dev/udl/internal/codegen"
	"github.com/udl-dev/udl/internal/refs"
	"github.com/udl-dev/udl/internal/schema"
	"github.com/udl-dev/udl/internal/store"
	"github.com/udl-dev/udl/internal/types"
	"github.com/udl-dev/udl/internal/webhook"
)

// Ref names a plugin to load, optionally with options. In config files
// it appears either as a bare string or as {name, options}.
type Ref struct {
	Name    string         `json:"name" yaml:"name"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// UnmarshalJSON accepts both the string and object forms.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.Name = name
		r.Options = nil
		return nil
	}
	type refAlias Ref
	var obj refAlias
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("plugin ref must be a string or {name, options}: %w", err)
	}
	*r = Ref(obj)
	return nil
}

// UnmarshalYAML accepts both the string and object forms.
func (r *Ref) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		r.Name = name
		r.Options = nil
		return nil
	}
	type refAlias Ref
	var obj refAlias
	if err := unmarshal(&obj); err != nil {
		return fmt.Errorf("plugin ref must be a string or {name, options}: %w", err)
	}
	*r = Ref(obj)
	return nil
}

// Config is a plugin's declaration of what it contributes.
type Config struct {
	// Type is a short label for the kind of source (commerce, cms, fs).
	Type string
	// Plugins are nested sources this plugin composes.
	Plugins []Ref
	// Codegen, when set, contributes a codegen run to the project.
	Codegen *codegen.Config
	// Indexes declares store field indexes per content type.
	Indexes map[string][]string
	// Cache enables the per-source node snapshot.
	Cache bool
}

// LoadContext is handed to plugin lifecycle hooks.
type LoadContext struct {
	Actions  actions.Context
	Refs     *refs.Registry
	Webhooks *webhook.Registry

	// Options came from the loading Ref.
	Options map[string]any
	// Dir is this plugin's cache directory hint.
	Dir string

	plugin string
}

// PluginName returns the name the plugin was registered under.
func (c *LoadContext) PluginName() string { return c.plugin }

// Store exposes the node store for reads.
func (c *LoadContext) Store() *store.Store { return c.Actions.Store }

// DeclareType registers an explicit schema for a content type.
func (c *LoadContext) DeclareType(def types.TypeDefinition) {
	if def.Owner == "" {
		def.Owner = c.plugin
	}
	c.Actions.Store.SetTypeSchema(def.Name, &def)
}

// DeclareOverrides reconciles inference output for one type with
// declarative field overrides.
func (c *LoadContext) DeclareOverrides(typeName string, overrides schema.Overrides) {
	st := c.Actions.Store
	def := types.TypeDefinition{Name: typeName, Owner: c.plugin}
	if existing := st.TypeSchema(typeName); existing != nil {
		def = *existing
	}
	merged := schema.ApplyOverrides(def, overrides)
	st.SetTypeSchema(typeName, &merged)
}

// SourceContext is handed to SourceNodes; nodes it creates carry the
// plugin's name as owner.
type SourceContext struct {
	Actions actions.Context
	Options map[string]any
	Dir     string
}

// CreateNode runs the create action with this source as owner.
func (c *SourceContext) CreateNode(n *types.Node) (*types.Node, error) {
	return actions.CreateNode(c.Actions, n)
}

// DeleteNode removes a node produced by any source.
func (c *SourceContext) DeleteNode(ref any, cascade bool) (bool, error) {
	return actions.DeleteNode(c.Actions, ref, cascade)
}

// ExtendNode patches a node's fields.
func (c *SourceContext) ExtendNode(id string, patch map[string]any) (*types.Node, error) {
	return actions.ExtendNode(c.Actions, id, patch)
}

// Plugin is one compile-time registered content source.
type Plugin struct {
	// Name is the canonical registration name.
	Name string
	// PackageName is an alternate resolution key (the published module
	// name a config file might reference).
	PackageName string

	Config Config

	// OnLoad runs first with the Ref's options.
	OnLoad func(*LoadContext) error
	// RegisterTypes declares explicit schemas and overrides.
	RegisterTypes func(*LoadContext) error
	// SourceNodes produces this plugin's nodes.
	SourceNodes func(*SourceContext) error

	// ReferenceResolver, when set, is registered with the refs registry.
	ReferenceResolver *refs.Resolver
	// EntityKeys configure entity-key extraction per typename.
	EntityKeys map[string]refs.EntityKeyConfig
	// Webhooks are registered under this plugin's name.
	Webhooks []webhook.Handler
}

// CodegenEntry pairs a plugin with the codegen run it contributed.
type CodegenEntry struct {
	PluginName string
	Config     codegen.Config
}
