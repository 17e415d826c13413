// Package store implements the in-memory node store: the id→node map,
// the per-type index, registered field indexes, and per-type schema
// metadata. The store is mechanism only — timestamps, digests, edges
// and events are policies of the actions layer.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/udl-dev/udl/internal/types"
)

// Store is a thread-safe mapping of node id to node with secondary
// indexes by type and by registered (type, field) pairs.
//
// Mutations are expected to come from a single logical writer (the
// actions layer); readers may run concurrently and always receive
// deep copies, never interior pointers.
type Store struct {
	mu sync.RWMutex

	nodes  map[string]*types.Node
	byType map[string]map[string]*types.Node

	// fieldIndexes: type → field → rendered value → node.
	// Last write wins: these indexes serve slug-like unique lookups,
	// not multi-valued queries.
	fieldIndexes map[string]map[string]map[string]*types.Node
	registered   map[string][]string

	schemas map[string]*types.TypeDefinition
}

// New creates an empty store.
func New() *Store {
	return &Store{
		nodes:        make(map[string]*types.Node),
		byType:       make(map[string]map[string]*types.Node),
		fieldIndexes: make(map[string]map[string]map[string]*types.Node),
		registered:   make(map[string][]string),
		schemas:      make(map[string]*types.TypeDefinition),
	}
}

// Get returns a copy of the node with the given id, or nil.
func (s *Store) Get(id string) *types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id].Clone()
}

// Has reports whether a node with the given id exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// Set upserts a node, updating the type index and every registered
// field index. When replacing an existing node the old index entries
// are removed first, including entries under a different type.
// Timestamps and digests are left untouched.
func (s *Store) Set(n *types.Node) error {
	if n == nil {
		return fmt.Errorf("store: cannot set nil node")
	}
	if err := n.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	own := n.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.nodes[own.Internal.ID]; ok {
		s.removeFromIndexes(prev)
	}

	s.nodes[own.Internal.ID] = own

	t := own.Internal.Type
	if s.byType[t] == nil {
		s.byType[t] = make(map[string]*types.Node)
	}
	s.byType[t][own.Internal.ID] = own
	s.indexNode(own)
	return nil
}

// Delete removes a node and all of its index entries. It does not
// cascade and does not emit events. Returns false when the id is
// unknown.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	s.removeFromIndexes(n)
	delete(s.nodes, id)
	return true
}

// GetAll returns copies of every node in the store.
func (s *Store) GetAll() []*types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	return out
}

// GetByType returns copies of every node of the given type.
func (s *Store) GetByType(t string) []*types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := s.byType[t]
	out := make([]*types.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Clone())
	}
	return out
}

// GetTypes returns the sorted list of types with at least one live node.
func (s *Store) GetTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byType))
	for t := range s.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of nodes in the store.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// RegisterIndex registers a field index for a type and backfills it
// from the live nodes of that type.
func (s *Store) RegisterIndex(nodeType, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.registered[nodeType] {
		if f == field {
			return
		}
	}
	s.registered[nodeType] = append(s.registered[nodeType], field)

	if s.fieldIndexes[nodeType] == nil {
		s.fieldIndexes[nodeType] = make(map[string]map[string]*types.Node)
	}
	idx := make(map[string]*types.Node)
	s.fieldIndexes[nodeType][field] = idx
	for _, n := range s.byType[nodeType] {
		if v, ok := n.Fields[field]; ok {
			idx[indexKey(v)] = n
		}
	}
}

// GetByField returns a copy of the node of the given type whose indexed
// field has the given value, or nil. The field must have been
// registered with RegisterIndex.
func (s *Store) GetByField(nodeType, field string, value any) *types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields := s.fieldIndexes[nodeType]
	if fields == nil {
		return nil
	}
	idx := fields[field]
	if idx == nil {
		return nil
	}
	return idx[indexKey(value)].Clone()
}

// RegisteredIndexes returns the field names indexed for a type.
func (s *Store) RegisteredIndexes(nodeType string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.registered[nodeType]...)
}

// TypeSchema returns the schema recorded for a type, or nil.
func (s *Store) TypeSchema(nodeType string) *types.TypeDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemas[nodeType]
}

// SetTypeSchema records schema metadata for a type.
func (s *Store) SetTypeSchema(nodeType string, def *types.TypeDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[nodeType] = def
}

// Clear empties the store. Registered indexes and schemas are dropped
// along with the nodes; used by tests and full reloads.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*types.Node)
	s.byType = make(map[string]map[string]*types.Node)
	s.fieldIndexes = make(map[string]map[string]map[string]*types.Node)
	s.registered = make(map[string][]string)
	s.schemas = make(map[string]*types.TypeDefinition)
}

// removeFromIndexes drops a node from the type index and every field
// index. Caller must hold the write lock. Empty types are removed from
// the type list entirely.
func (s *Store) removeFromIndexes(n *types.Node) {
	t := n.Internal.Type
	if byID, ok := s.byType[t]; ok {
		delete(byID, n.Internal.ID)
		if len(byID) == 0 {
			delete(s.byType, t)
		}
	}
	for field, idx := range s.fieldIndexes[t] {
		if v, ok := n.Fields[field]; ok {
			key := indexKey(v)
			// Only remove when the entry still points at this node; a
			// later node with the same value owns the slot.
			if cur, ok := idx[key]; ok && cur.Internal.ID == n.Internal.ID {
				delete(idx, key)
			}
		}
	}
}

// indexNode adds a node to every registered field index of its type.
// Caller must hold the write lock.
func (s *Store) indexNode(n *types.Node) {
	t := n.Internal.Type
	for _, field := range s.registered[t] {
		if v, ok := n.Fields[field]; ok {
			if s.fieldIndexes[t] == nil {
				s.fieldIndexes[t] = make(map[string]map[string]*types.Node)
			}
			if s.fieldIndexes[t][field] == nil {
				s.fieldIndexes[t][field] = make(map[string]*types.Node)
			}
			s.fieldIndexes[t][field][indexKey(v)] = n
		}
	}
}

// indexKey renders an arbitrary field value into a map key.
func indexKey(v any) string {
	return fmt.Sprintf("%v", v)
}
