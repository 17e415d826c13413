// Package schema infers type definitions for the node graph from three
// sources: GraphQL endpoint introspection, sample JSON documents, and
// the live node store. Inferred definitions merge deterministically and
// can be reconciled with declarative per-type overrides.
package schema

import (
	"github.com/udl-dev/udl/internal/types"
)

// MergeFields combines two field descriptors with the same name into
// one. The operation is commutative and associative: merging a sample
// set folds to the same result in any order.
func MergeFields(a, b types.FieldDefinition) types.FieldDefinition {
	merged := types.FieldDefinition{
		Name:     a.Name,
		Required: a.Required && b.Required,
	}
	if merged.Name == "" {
		merged.Name = b.Name
	}

	switch {
	case a.Type == b.Type:
		merged.Type = a.Type
		if a.ReferenceType == b.ReferenceType {
			merged.ReferenceType = a.ReferenceType
		}
	case a.Type == types.FieldTypeNull || a.Type == types.FieldTypeUnknown:
		merged.Type = b.Type
		merged.ReferenceType = b.ReferenceType
	case b.Type == types.FieldTypeNull || b.Type == types.FieldTypeUnknown:
		merged.Type = a.Type
		merged.ReferenceType = a.ReferenceType
	default:
		merged.Type = types.FieldTypeUnknown
	}

	if merged.Type == types.FieldTypeArray {
		merged.ArrayItemType = mergeItemTypes(a.ArrayItemType, b.ArrayItemType)
	}
	if merged.Type == types.FieldTypeObject {
		merged.ObjectFields = mergeObjectFields(a.ObjectFields, b.ObjectFields)
	}

	merged.Description = a.Description
	if merged.Description == "" {
		merged.Description = b.Description
	}
	merged.LiteralValues = mergeLiterals(a.LiteralValues, b.LiteralValues)
	return merged
}

func mergeItemTypes(a, b *types.FieldDefinition) *types.FieldDefinition {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	merged := MergeFields(*a, *b)
	return &merged
}

// mergeObjectFields unions both field sets; a field present on only one
// side becomes optional.
func mergeObjectFields(a, b []types.FieldDefinition) []types.FieldDefinition {
	if a == nil && b == nil {
		return nil
	}
	byName := make(map[string]int, len(a))
	out := make([]types.FieldDefinition, 0, len(a)+len(b))
	for _, f := range a {
		byName[f.Name] = len(out)
		out = append(out, f)
	}
	seen := make(map[string]bool, len(b))
	for _, f := range b {
		seen[f.Name] = true
		if i, ok := byName[f.Name]; ok {
			out[i] = MergeFields(out[i], f)
		} else {
			f.Required = false
			out = append(out, f)
		}
	}
	for _, f := range a {
		if !seen[f.Name] {
			out[byName[f.Name]].Required = false
		}
	}
	return out
}

// mergeLiterals keeps the union of observed literal values, preserving
// first-seen order.
func mergeLiterals(a, b []any) []any {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := append([]any(nil), a...)
	for _, v := range b {
		found := false
		for _, existing := range out {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}

// MergeTypeDefinitions folds a set of per-node definitions for the same
// type into one. Fields absent from some samples come out optional.
func MergeTypeDefinitions(defs []types.TypeDefinition) types.TypeDefinition {
	if len(defs) == 0 {
		return types.TypeDefinition{}
	}
	merged := defs[0]
	merged.Fields = append([]types.FieldDefinition(nil), defs[0].Fields...)

	for _, def := range defs[1:] {
		merged.Fields = mergeSampleFields(merged.Fields, def.Fields)
		if merged.Owner == "" {
			merged.Owner = def.Owner
		}
	}
	return merged
}

// mergeSampleFields is the cross-sample variant of mergeObjectFields:
// identical union semantics, used at the top level of a definition.
func mergeSampleFields(a, b []types.FieldDefinition) []types.FieldDefinition {
	return mergeObjectFields(a, b)
}
