package schema

import (
	"sort"

	"github.com/udl-dev/udl/internal/types"
)

// InferJSON builds a type definition from one sample value. Arrays take
// the first element's type; empty arrays come out unknown. Map keys are
// walked in sorted order so inference is deterministic.
func InferJSON(name string, v any) types.TypeDefinition {
	def := types.TypeDefinition{Name: name}
	obj, ok := v.(map[string]any)
	if !ok {
		// A non-object sample becomes a single-field wrapper.
		def.Fields = []types.FieldDefinition{inferField("value", v)}
		return def
	}
	def.Fields = inferObjectFields(obj)
	return def
}

func inferObjectFields(obj map[string]any) []types.FieldDefinition {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]types.FieldDefinition, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, inferField(k, obj[k]))
	}
	return fields
}

// inferField classifies one value. Fields observed in a sample are
// required until a later sample proves otherwise.
func inferField(name string, v any) types.FieldDefinition {
	f := types.FieldDefinition{Name: name, Required: true}

	switch val := v.(type) {
	case nil:
		f.Type = types.FieldTypeNull
	case string:
		f.Type = types.FieldTypeString
	case bool:
		f.Type = types.FieldTypeBoolean
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		f.Type = types.FieldTypeNumber
	case []any:
		f.Type = types.FieldTypeArray
		if len(val) > 0 {
			item := inferField("item", val[0])
			f.ArrayItemType = &item
		} else {
			f.ArrayItemType = &types.FieldDefinition{Name: "item", Type: types.FieldTypeUnknown}
		}
	case map[string]any:
		f.Type = types.FieldTypeObject
		f.ObjectFields = inferObjectFields(val)
	default:
		f.Type = types.FieldTypeUnknown
	}
	return f
}
