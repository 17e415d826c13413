package schema

import (
	"sort"

	"github.com/udl-dev/udl/internal/refs"
	"github.com/udl-dev/udl/internal/store"
	"github.com/udl-dev/udl/internal/types"
)

// StoreOptions filters and bounds live-store inference.
type StoreOptions struct {
	// Types restricts inference to the named content types. Empty means
	// every type present in the store.
	Types []string
	// Owners restricts inference to nodes produced by these plugins.
	Owners []string
	// SampleSize caps how many nodes per type are inspected. Zero or
	// negative means all.
	SampleSize int
	// Refs, when set, labels fields that carry resolver marker values as
	// references to the resolver's target type.
	Refs *refs.Registry
}

// InferStore derives a definition per content type by sampling nodes
// and merging their individually inferred shapes. Fields missing from
// some samples come out optional; the reserved graph fields never
// appear.
func InferStore(st *store.Store, opts StoreOptions) []types.TypeDefinition {
	typeNames := opts.Types
	if len(typeNames) == 0 {
		typeNames = st.GetTypes()
	} else {
		typeNames = append([]string(nil), typeNames...)
		sort.Strings(typeNames)
	}

	ownerSet := make(map[string]bool, len(opts.Owners))
	for _, o := range opts.Owners {
		ownerSet[o] = true
	}

	var defs []types.TypeDefinition
	for _, typeName := range typeNames {
		nodes := st.GetByType(typeName)
		if len(ownerSet) > 0 {
			filtered := nodes[:0]
			for _, n := range nodes {
				if ownerSet[n.Internal.Owner] {
					filtered = append(filtered, n)
				}
			}
			nodes = filtered
		}
		if len(nodes) == 0 {
			continue
		}
		if opts.SampleSize > 0 && len(nodes) > opts.SampleSize {
			nodes = nodes[:opts.SampleSize]
		}

		samples := make([]types.TypeDefinition, 0, len(nodes))
		for _, n := range nodes {
			sample := InferJSON(typeName, map[string]any(n.Fields))
			sample.Owner = n.Internal.Owner
			if opts.Refs != nil {
				labelReferences(&sample, n.Fields, opts.Refs)
			}
			samples = append(samples, sample)
		}
		defs = append(defs, MergeTypeDefinitions(samples))
	}
	return defs
}

// labelReferences rewrites fields whose sampled values a registered
// resolver recognizes as references, naming the target type when the
// resolver reports exactly one possibility.
func labelReferences(def *types.TypeDefinition, fields map[string]any, registry *refs.Registry) {
	for i := range def.Fields {
		f := &def.Fields[i]
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		resolver := registry.Resolve(v)
		if resolver == nil {
			continue
		}
		f.Type = types.FieldTypeReference
		f.ObjectFields = nil
		if obj, ok := v.(map[string]any); ok && resolver.PossibleTypes != nil {
			if possible := resolver.PossibleTypes(obj); len(possible) == 1 {
				f.ReferenceType = possible[0]
			}
		}
	}
}
