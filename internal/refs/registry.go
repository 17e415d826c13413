// Package refs implements the reference registry: pluggable resolvers
// that recognize marker objects as cross-type references, plus
// entity-key extraction for normalization. The normalizer and schema
// inference both consult it to label fields of reference type.
package refs

import (
	"fmt"
	"sync"
)

// Resolver recognizes values of one reference shape and extracts their
// target key. Resolvers are consulted in registration order; the first
// whose Predicate returns true owns the value.
type Resolver struct {
	ID          string
	MarkerField string
	LookupField string

	Predicate     func(v any) bool
	LookupValue   func(ref map[string]any) string
	PossibleTypes func(ref map[string]any) []string
}

// EntityKeyConfig tells the registry how to build an entity key for
// values carrying an explicit __typename.
type EntityKeyConfig struct {
	TypeNameField string // defaults to "__typename"
	IDField       string // defaults to "id"
}

// Registry holds the process-wide resolver set. Treated as a named
// singleton owned by the runtime, not a true global, so tests can
// construct their own.
type Registry struct {
	mu        sync.RWMutex
	resolvers []Resolver
	keys      map[string]EntityKeyConfig // typename → key config
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]EntityKeyConfig)}
}

// Register appends a resolver. A resolver with a duplicate ID replaces
// the existing registration in place, keeping its original position.
func (r *Registry) Register(res Resolver) error {
	if res.ID == "" {
		return fmt.Errorf("refs: resolver requires an id")
	}
	if res.Predicate == nil {
		return fmt.Errorf("refs: resolver %s requires a predicate", res.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.resolvers {
		if existing.ID == res.ID {
			r.resolvers[i] = res
			return nil
		}
	}
	r.resolvers = append(r.resolvers, res)
	return nil
}

// Unregister removes the resolver with the given id.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, res := range r.resolvers {
		if res.ID == id {
			r.resolvers = append(r.resolvers[:i], r.resolvers[i+1:]...)
			return
		}
	}
}

// Resolve returns the first resolver whose predicate accepts v, or nil.
func (r *Registry) Resolve(v any) *Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.resolvers {
		if r.resolvers[i].Predicate(v) {
			res := r.resolvers[i]
			return &res
		}
	}
	return nil
}

// SetEntityKeyConfig registers key extraction for a typename.
func (r *Registry) SetEntityKeyConfig(typename string, cfg EntityKeyConfig) {
	if cfg.TypeNameField == "" {
		cfg.TypeNameField = "__typename"
	}
	if cfg.IDField == "" {
		cfg.IDField = "id"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[typename] = cfg
}

// EntityKey returns "{typename}:{id}" for a value that either carries
// an explicit __typename with a configured id field, or is owned by a
// resolver that can extract a lookup value and a single possible type.
// The empty string means the value is not a recognizable entity.
func (r *Registry) EntityKey(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}

	if typename, ok := obj["__typename"].(string); ok && typename != "" {
		idField := "id"
		r.mu.RLock()
		if cfg, ok := r.keys[typename]; ok {
			idField = cfg.IDField
		}
		r.mu.RUnlock()
		if id := stringField(obj, idField); id != "" {
			return typename + ":" + id
		}
	}

	res := r.Resolve(v)
	if res == nil || res.LookupValue == nil || res.PossibleTypes == nil {
		return ""
	}
	id := res.LookupValue(obj)
	if id == "" {
		return ""
	}
	possible := res.PossibleTypes(obj)
	if len(possible) != 1 {
		return ""
	}
	return possible[0] + ":" + id
}

// Clear drops every resolver and key config. Used by tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers = nil
	r.keys = make(map[string]EntityKeyConfig)
}

func stringField(obj map[string]any, field string) string {
	switch val := obj[field].(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%v", val)
	default:
		return ""
	}
}
