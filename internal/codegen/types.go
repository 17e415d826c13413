package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/udl-dev/udl/internal/types"
)

// internalDescriptor is the generic descriptor type appended to every
// declaration when EmitInternal is set.
const internalDescriptor = `export interface NodeInternal<TType extends string = string, TOwner extends string = string> {
  id: string;
  type: TType;
  owner: TOwner;
  contentDigest: string;
  createdAt: number;
  modifiedAt: number;
}
`

// EmitTypes renders TypeScript declarations for the given definitions.
// The result is one file's content, definitions in input order, with
// the shared NodeInternal descriptor prepended when enabled.
func EmitTypes(defs []types.TypeDefinition, cfg Config) string {
	var b strings.Builder
	b.WriteString("// Generated type declarations. Do not edit by hand.\n\n")

	if cfg.EmitInternal {
		b.WriteString(internalDescriptor)
		b.WriteString("\n")
	}

	for i, def := range defs {
		if i > 0 {
			b.WriteString("\n")
		}
		emitTypeDecl(&b, def, cfg)
	}
	return b.String()
}

func emitTypeDecl(b *strings.Builder, def types.TypeDefinition, cfg Config) {
	name := identifier(def.Name)
	if cfg.ExportType {
		fmt.Fprintf(b, "export type %s = {\n", name)
	} else {
		fmt.Fprintf(b, "export interface %s {\n", name)
	}

	for _, f := range def.Fields {
		if cfg.EmitJSDoc && f.Description != "" {
			fmt.Fprintf(b, "  /** %s */\n", strings.ReplaceAll(f.Description, "*/", "*\\/"))
		}
		opt := ""
		if !f.Required {
			opt = "?"
		}
		fmt.Fprintf(b, "  %s%s: %s;\n", fieldKey(f.Name), opt, tsType(f))
	}

	if cfg.EmitInternal {
		fmt.Fprintf(b, "  internal?: NodeInternal<%q, %q>;\n", def.Name, def.Owner)
	}

	if cfg.ExportType {
		b.WriteString("};\n")
	} else {
		b.WriteString("}\n")
	}
}

// tsType renders one field's TypeScript type expression.
func tsType(f types.FieldDefinition) string {
	if len(f.LiteralValues) > 0 {
		return literalUnion(f.LiteralValues)
	}

	switch f.Type {
	case types.FieldTypeString:
		return "string"
	case types.FieldTypeNumber:
		return "number"
	case types.FieldTypeBoolean:
		return "boolean"
	case types.FieldTypeNull:
		return "null"
	case types.FieldTypeArray:
		item := "unknown"
		if f.ArrayItemType != nil {
			item = tsType(*f.ArrayItemType)
		}
		// Inline object and union item types need the wrapper form.
		if strings.ContainsAny(item, "{|") {
			return "Array<" + item + ">"
		}
		return item + "[]"
	case types.FieldTypeObject:
		if len(f.ObjectFields) == 0 {
			return "Record<string, unknown>"
		}
		return inlineObject(f.ObjectFields)
	case types.FieldTypeReference:
		if f.ReferenceType == "" {
			return "unknown"
		}
		return identifier(f.ReferenceType)
	default:
		return "unknown"
	}
}

func inlineObject(fields []types.FieldDefinition) string {
	var b strings.Builder
	b.WriteString("{ ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		opt := ""
		if !f.Required {
			opt = "?"
		}
		fmt.Fprintf(&b, "%s%s: %s", fieldKey(f.Name), opt, tsType(f))
	}
	b.WriteString(" }")
	return b.String()
}

// literalUnion renders observed literal values as a union type.
// Values of mixed kinds sort strings, then numbers, then booleans.
func literalUnion(values []any) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		switch val := v.(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%q", val))
		case bool:
			parts = append(parts, fmt.Sprintf("%t", val))
		case float64:
			parts = append(parts, trimFloat(val))
		case int:
			parts = append(parts, fmt.Sprintf("%d", val))
		default:
			return "unknown"
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, " | ")
}

func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

// fieldKey quotes names that are not valid TS identifiers.
func fieldKey(name string) string {
	if isIdentifier(name) {
		return name
	}
	return fmt.Sprintf("%q", name)
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		ok := r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

// identifier sanitizes a type name into a usable TS identifier:
// non-identifier runes are dropped and a leading digit gets a prefix.
func identifier(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "Unnamed"
	}
	if out[0] >= '0' && out[0] <= '9' {
		return "T" + out
	}
	return out
}
