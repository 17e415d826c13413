package types

// FieldType classifies the inferred type of a node field.
type FieldType string

// Field type constants
const (
	FieldTypeString    FieldType = "string"
	FieldTypeNumber    FieldType = "number"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeNull      FieldType = "null"
	FieldTypeUnknown   FieldType = "unknown"
	FieldTypeArray     FieldType = "array"
	FieldTypeObject    FieldType = "object"
	FieldTypeReference FieldType = "reference"
)

// IsValid checks if the field type value is one of the known kinds.
func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeString, FieldTypeNumber, FieldTypeBoolean, FieldTypeNull,
		FieldTypeUnknown, FieldTypeArray, FieldTypeObject, FieldTypeReference:
		return true
	}
	return false
}

// FieldDefinition describes a single field of a content type.
type FieldDefinition struct {
	Name          string            `json:"name"`
	Type          FieldType         `json:"type"`
	Required      bool              `json:"required"`
	Description   string            `json:"description,omitempty"`
	ArrayItemType *FieldDefinition  `json:"arrayItemType,omitempty"`
	ObjectFields  []FieldDefinition `json:"objectFields,omitempty"`
	ReferenceType string            `json:"referenceType,omitempty"`
	LiteralValues []any             `json:"literalValues,omitempty"`
}

// TypeDefinition describes the observed or declared shape of a content
// type. It is the common currency of schema inference and codegen.
type TypeDefinition struct {
	Name    string            `json:"name"`
	Owner   string            `json:"owner,omitempty"`
	Fields  []FieldDefinition `json:"fields"`
	Indexes []string          `json:"indexes,omitempty"`
}

// Field returns the field with the given name, or nil.
func (d *TypeDefinition) Field(name string) *FieldDefinition {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}
