// Package actions implements the node lifecycle operations. The store
// is mechanism; this layer is policy: it computes digests, preserves
// creation timestamps, maintains parent/child edges, records
// tombstones, and emits change events.
package actions

import (
	"errors"
	"fmt"
	"time"

	"github.com/udl-dev/udl/internal/deletions"
	"github.com/udl-dev/udl/internal/eventbus"
	"github.com/udl-dev/udl/internal/store"
	"github.com/udl-dev/udl/internal/types"
)

// ErrInvalidInput marks a request missing required identity fields.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound marks an operation against a node that does not exist.
var ErrNotFound = errors.New("node not found")

// Context carries the collaborators a node action needs. Bus and
// Deletions are optional; a nil Bus suppresses events and a nil
// Deletions log skips tombstone recording.
type Context struct {
	Store     *store.Store
	Bus       *eventbus.Bus
	Deletions *deletions.Log

	// Owner, when non-empty, overrides the owner on created nodes.
	Owner string
}

// CreateNode upserts a node. On first occurrence of the id a created
// event fires; on re-create the original createdAt is preserved and an
// updated event fires. A declared parent that does not exist yet is
// stored as-is — the edge dangles until the parent appears.
func CreateNode(ctx Context, input *types.Node) (*types.Node, error) {
	if input == nil || input.Internal.ID == "" || input.Internal.Type == "" {
		return nil, fmt.Errorf("%w: createNode requires internal.id and internal.type", ErrInvalidInput)
	}

	n := input.Clone()
	if ctx.Owner != "" {
		n.Internal.Owner = ctx.Owner
	}
	if n.Internal.ContentDigest == "" {
		n.Internal.ContentDigest = n.ComputeContentDigest()
	}

	now := types.NowMillis()
	// Callers that supply both timestamps (cache restores, replication)
	// keep their modifiedAt; everyone else gets the wall clock.
	stamped := input.Internal.CreatedAt != 0 && input.Internal.ModifiedAt != 0
	prev := ctx.Store.Get(n.Internal.ID)
	if prev != nil {
		n.Internal.CreatedAt = prev.Internal.CreatedAt
	} else if !stamped {
		n.Internal.CreatedAt = now
	}
	if !stamped {
		n.Internal.ModifiedAt = now
	}

	// Children are derived state: carry the previous list forward, the
	// caller never supplies it.
	if prev != nil {
		n.Children = append([]string(nil), prev.Children...)
	} else {
		n.Children = nil
	}

	// Reject bad input before touching any other node: edge maintenance
	// mutates the parent, and a later Set failure would leave a dangling
	// child id behind.
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	oldParent := ""
	if prev != nil {
		oldParent = prev.Parent
	}
	if err := maintainParentEdge(ctx.Store, n.Internal.ID, oldParent, n.Parent); err != nil {
		return nil, err
	}

	if err := ctx.Store.Set(n); err != nil {
		return nil, err
	}

	kind := types.ChangeUpdated
	if prev == nil {
		kind = types.ChangeCreated
	}
	emit(ctx, kind, n)
	return n.Clone(), nil
}

// DeleteNode removes a node. ref may be a node id, a *types.Node (or
// value), or a map carrying "id" or "internal.id". Returns false with
// no side effects when the node does not exist.
//
// With cascade, children are deleted depth-first through this same code
// path, so every node fires its own deleted event and tombstone.
// Without cascade, children are orphaned: their parent field is cleared
// and they are re-stored.
func DeleteNode(ctx Context, ref any, cascade bool) (bool, error) {
	id, err := resolveID(ref)
	if err != nil {
		return false, err
	}

	n := ctx.Store.Get(id)
	if n == nil {
		return false, nil
	}

	if cascade {
		for _, childID := range n.Children {
			if _, err := DeleteNode(ctx, childID, true); err != nil {
				return false, err
			}
		}
	} else {
		for _, childID := range n.Children {
			child := ctx.Store.Get(childID)
			if child == nil {
				continue
			}
			// The digest covers the parent edge, so orphaning is a real
			// content change: restamp it and tell delta-sync clients.
			child.Parent = ""
			child.Internal.ContentDigest = child.ComputeContentDigest()
			child.Internal.ModifiedAt = types.NowMillis()
			if err := ctx.Store.Set(child); err != nil {
				return false, err
			}
			emit(ctx, types.ChangeUpdated, child)
		}
	}

	if n.Parent != "" {
		if parent := ctx.Store.Get(n.Parent); parent != nil {
			parent.RemoveChild(id)
			if err := ctx.Store.Set(parent); err != nil {
				return false, err
			}
		}
	}

	ctx.Store.Delete(id)

	if ctx.Deletions != nil {
		rec := types.DeletionRecord{
			NodeID:    id,
			NodeType:  n.Internal.Type,
			Owner:     n.Internal.Owner,
			DeletedAt: time.Now(),
		}
		if err := ctx.Deletions.Append(rec); err != nil {
			return false, fmt.Errorf("recording tombstone for %s: %w", id, err)
		}
	}

	if ctx.Bus != nil {
		ctx.Bus.Publish(types.NodeChangeEvent{
			Type:      types.ChangeDeleted,
			NodeID:    id,
			NodeType:  n.Internal.Type,
			Timestamp: time.Now(),
		})
	}
	return true, nil
}

// ExtendNode shallow-merges patch into an existing node's fields,
// recomputes the digest, advances modifiedAt and emits an updated
// event. Reserved keys in the patch are ignored.
func ExtendNode(ctx Context, id string, patch map[string]any) (*types.Node, error) {
	n := ctx.Store.Get(id)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if n.Fields == nil {
		n.Fields = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if types.IsReservedField(k) {
			continue
		}
		n.Fields[k] = v
	}
	n.Internal.ContentDigest = n.ComputeContentDigest()
	n.Internal.ModifiedAt = types.NowMillis()

	if err := ctx.Store.Set(n); err != nil {
		return nil, err
	}
	emit(ctx, types.ChangeUpdated, n)
	return n.Clone(), nil
}

// maintainParentEdge reconciles the children lists when a node's parent
// changes. Re-adding a child never duplicates its id.
func maintainParentEdge(st *store.Store, id, oldParent, newParent string) error {
	if oldParent == newParent {
		// Still ensure the edge exists for an unchanged parent: the
		// parent may have been created after this child.
		if newParent != "" {
			if p := st.Get(newParent); p != nil && !p.HasChild(id) {
				p.AddChild(id)
				return st.Set(p)
			}
		}
		return nil
	}
	if oldParent != "" {
		if p := st.Get(oldParent); p != nil && p.HasChild(id) {
			p.RemoveChild(id)
			if err := st.Set(p); err != nil {
				return err
			}
		}
	}
	if newParent != "" {
		if p := st.Get(newParent); p != nil && !p.HasChild(id) {
			p.AddChild(id)
			return st.Set(p)
		}
	}
	return nil
}

func emit(ctx Context, kind types.ChangeType, n *types.Node) {
	if ctx.Bus == nil {
		return
	}
	ctx.Bus.Publish(types.NodeChangeEvent{
		Type:      kind,
		NodeID:    n.Internal.ID,
		NodeType:  n.Internal.Type,
		Node:      n.Clone(),
		Timestamp: time.Now(),
	})
}

// resolveID extracts a node id from the accepted reference forms.
func resolveID(ref any) (string, error) {
	switch v := ref.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("%w: empty node id", ErrInvalidInput)
		}
		return v, nil
	case *types.Node:
		if v == nil || v.Internal.ID == "" {
			return "", fmt.Errorf("%w: node has no internal.id", ErrInvalidInput)
		}
		return v.Internal.ID, nil
	case types.Node:
		if v.Internal.ID == "" {
			return "", fmt.Errorf("%w: node has no internal.id", ErrInvalidInput)
		}
		return v.Internal.ID, nil
	case map[string]any:
		if id, ok := v["id"].(string); ok && id != "" {
			return id, nil
		}
		if internal, ok := v["internal"].(map[string]any); ok {
			if id, ok := internal["id"].(string); ok && id != "" {
				return id, nil
			}
		}
		return "", fmt.Errorf("%w: reference carries no id", ErrInvalidInput)
	default:
		return "", fmt.Errorf("%w: unsupported node reference %T", ErrInvalidInput, ref)
	}
}
