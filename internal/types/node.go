// Package types defines the core data structures of the universal data
// layer: nodes, deletion records, change events, and schema descriptors.
package types

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Reserved field names that never appear in a node's user-visible fields.
const (
	FieldInternal = "internal"
	FieldParent   = "parent"
	FieldChildren = "children"
)

// ReservedFields lists the field names owned by the runtime.
var ReservedFields = []string{FieldInternal, FieldParent, FieldChildren}

// IsReservedField reports whether name is owned by the runtime.
func IsReservedField(name string) bool {
	return name == FieldInternal || name == FieldParent || name == FieldChildren
}

// NodeInternal is the immutable descriptor attached to every node.
type NodeInternal struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Owner         string `json:"owner,omitempty"`
	ContentDigest string `json:"contentDigest,omitempty"`
	CreatedAt     int64  `json:"createdAt,omitempty"`  // ms since epoch
	ModifiedAt    int64  `json:"modifiedAt,omitempty"` // ms since epoch
}

// Node is the canonical unit of content. User-visible fields live in
// Fields; the wire format flattens them beside internal, parent and
// children.
type Node struct {
	Internal NodeInternal
	Parent   string
	Children []string
	Fields   map[string]any
}

// Validate checks that the node carries the minimum required identity.
func (n *Node) Validate() error {
	if n.Internal.ID == "" {
		return fmt.Errorf("node is missing internal.id")
	}
	if n.Internal.Type == "" {
		return fmt.Errorf("node is missing internal.type")
	}
	for k := range n.Fields {
		if IsReservedField(k) {
			return fmt.Errorf("field name %q is reserved", k)
		}
	}
	return nil
}

// Clone returns a deep copy of the node. Stores hand out clones so
// readers never observe a partially updated node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Internal: n.Internal,
		Parent:   n.Parent,
	}
	if n.Children != nil {
		out.Children = append([]string(nil), n.Children...)
	}
	if n.Fields != nil {
		out.Fields = cloneValue(n.Fields).(map[string]any)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = cloneValue(item)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = cloneValue(item)
		}
		return s
	default:
		return v
	}
}

// HasChild reports whether id is present in the node's children list.
func (n *Node) HasChild(id string) bool {
	for _, c := range n.Children {
		if c == id {
			return true
		}
	}
	return false
}

// AddChild appends id to the children list if not already present.
func (n *Node) AddChild(id string) {
	if !n.HasChild(id) {
		n.Children = append(n.Children, id)
	}
}

// RemoveChild deletes id from the children list if present.
func (n *Node) RemoveChild(id string) {
	for i, c := range n.Children {
		if c == id {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// MarshalJSON flattens user fields beside the reserved keys.
func (n Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Fields)+3)
	for k, v := range n.Fields {
		if IsReservedField(k) {
			continue
		}
		out[k] = v
	}
	out[FieldInternal] = n.Internal
	if n.Parent != "" {
		out[FieldParent] = n.Parent
	}
	if n.Children == nil {
		out[FieldChildren] = []string{}
	} else {
		out[FieldChildren] = n.Children
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the reserved keys back out of the flat wire form.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if internal, ok := raw[FieldInternal]; ok {
		if err := json.Unmarshal(internal, &n.Internal); err != nil {
			return fmt.Errorf("parsing internal descriptor: %w", err)
		}
		delete(raw, FieldInternal)
	}
	if parent, ok := raw[FieldParent]; ok {
		if err := json.Unmarshal(parent, &n.Parent); err != nil {
			return fmt.Errorf("parsing parent: %w", err)
		}
		delete(raw, FieldParent)
	}
	if children, ok := raw[FieldChildren]; ok {
		if err := json.Unmarshal(children, &n.Children); err != nil {
			return fmt.Errorf("parsing children: %w", err)
		}
		delete(raw, FieldChildren)
	}
	n.Fields = make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("parsing field %q: %w", k, err)
		}
		n.Fields[k] = val
	}
	return nil
}

// ComputeContentDigest returns the hex SHA-256 of the node's canonical
// serialization. The digest covers the user-visible fields plus
// internal.id, internal.type, internal.owner and parent; it excludes
// createdAt, modifiedAt, contentDigest and children so that identical
// content always hashes identically across stores and restarts.
func (n *Node) ComputeContentDigest() string {
	var b strings.Builder
	b.WriteString("id:")
	b.WriteString(n.Internal.ID)
	b.WriteByte(0)
	b.WriteString("type:")
	b.WriteString(n.Internal.Type)
	b.WriteByte(0)
	b.WriteString("owner:")
	b.WriteString(n.Internal.Owner)
	b.WriteByte(0)
	b.WriteString("parent:")
	b.WriteString(n.Parent)
	b.WriteByte(0)
	writeCanonical(&b, n.sortedFields())

	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum)
}

func (n *Node) sortedFields() map[string]any {
	fields := make(map[string]any, len(n.Fields))
	for k, v := range n.Fields {
		if IsReservedField(k) {
			continue
		}
		fields[k] = v
	}
	return fields
}

// writeCanonical serializes v deterministically: object keys sorted, no
// insignificant whitespace, numbers in their shortest form. This is the
// stable form the content digest is computed over.
func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case string:
		data, _ := json.Marshal(val)
		b.Write(data)
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			data, _ := json.Marshal(k)
			b.Write(data)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	default:
		// Fall back to encoding/json for exotic values (structs etc.);
		// map ordering inside such values is the caller's problem.
		data, _ := json.Marshal(val)
		b.Write(data)
	}
}

// NowMillis returns the current wall clock in ms since epoch, the unit
// used by NodeInternal timestamps.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
