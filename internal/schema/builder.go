package schema

import (
	"sort"

	"github.com/udl-dev/udl/internal/types"
)

// TypeBuilder declares a type definition fluently. Plugins use it to
// register explicit schemas or per-field overrides of inferred ones.
type TypeBuilder struct {
	def types.TypeDefinition
}

// NewType starts a builder for the named content type.
func NewType(name string) *TypeBuilder {
	return &TypeBuilder{def: types.TypeDefinition{Name: name}}
}

// Owner records the plugin that declares this type.
func (b *TypeBuilder) Owner(owner string) *TypeBuilder {
	b.def.Owner = owner
	return b
}

// Field appends a scalar field.
func (b *TypeBuilder) Field(name string, ft types.FieldType) *TypeBuilder {
	b.def.Fields = append(b.def.Fields, types.FieldDefinition{Name: name, Type: ft, Required: true})
	return b
}

// OptionalField appends a scalar field with required=false.
func (b *TypeBuilder) OptionalField(name string, ft types.FieldType) *TypeBuilder {
	b.def.Fields = append(b.def.Fields, types.FieldDefinition{Name: name, Type: ft})
	return b
}

// Reference appends a reference field pointing at target.
func (b *TypeBuilder) Reference(name, target string) *TypeBuilder {
	b.def.Fields = append(b.def.Fields, types.FieldDefinition{
		Name: name, Type: types.FieldTypeReference, ReferenceType: target, Required: true,
	})
	return b
}

// ArrayOf appends an array field with the given item type.
func (b *TypeBuilder) ArrayOf(name string, item types.FieldDefinition) *TypeBuilder {
	item.Name = "item"
	b.def.Fields = append(b.def.Fields, types.FieldDefinition{
		Name: name, Type: types.FieldTypeArray, ArrayItemType: &item, Required: true,
	})
	return b
}

// Describe sets the description of the last declared field.
func (b *TypeBuilder) Describe(desc string) *TypeBuilder {
	if n := len(b.def.Fields); n > 0 {
		b.def.Fields[n-1].Description = desc
	}
	return b
}

// Index declares a field index hint for the store.
func (b *TypeBuilder) Index(fields ...string) *TypeBuilder {
	b.def.Indexes = append(b.def.Indexes, fields...)
	return b
}

// Build returns the declared definition.
func (b *TypeBuilder) Build() types.TypeDefinition {
	return b.def
}

// Overrides maps field names to declarative definitions that win over
// inference for one content type.
type Overrides map[string]types.FieldDefinition

// ApplyOverrides reconciles an inferred definition with declarative
// overrides. An override replaces the field's type information but the
// observed required status is preserved; overrides for fields never
// observed are appended as declared.
func ApplyOverrides(def types.TypeDefinition, overrides Overrides) types.TypeDefinition {
	if len(overrides) == 0 {
		return def
	}

	out := def
	out.Fields = append([]types.FieldDefinition(nil), def.Fields...)
	applied := make(map[string]bool, len(overrides))

	for i := range out.Fields {
		ov, ok := overrides[out.Fields[i].Name]
		if !ok {
			continue
		}
		observed := out.Fields[i].Required
		ov.Name = out.Fields[i].Name
		ov.Required = observed
		out.Fields[i] = ov
		applied[ov.Name] = true
	}
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		if !applied[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		ov := overrides[name]
		ov.Name = name
		out.Fields = append(out.Fields, ov)
	}
	return out
}
