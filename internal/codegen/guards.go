package codegen

import (
	"fmt"
	"strings"

	"github.com/udl-dev/udl/internal/types"
)

// EmitGuards renders runtime type guards: for each definition an
// `isX(value): value is X` predicate and an `assertX` wrapper that
// throws on mismatch.
func EmitGuards(defs []types.TypeDefinition, cfg Config) string {
	var b strings.Builder
	b.WriteString("// Generated runtime type guards. Do not edit by hand.\n")

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, identifier(def.Name))
	}
	fmt.Fprintf(&b, "import type { %s } from \"./types\";\n\n", strings.Join(names, ", "))

	for i, def := range defs {
		if i > 0 {
			b.WriteString("\n")
		}
		emitGuard(&b, def, cfg)
	}
	return b.String()
}

func emitGuard(b *strings.Builder, def types.TypeDefinition, cfg Config) {
	name := identifier(def.Name)

	fmt.Fprintf(b, "export function is%s(value: unknown): value is %s {\n", name, name)
	b.WriteString("  if (typeof value !== \"object\" || value === null) return false;\n")
	b.WriteString("  const obj = value as Record<string, unknown>;\n")
	for _, f := range def.Fields {
		emitFieldCheck(b, f, cfg, "  ")
	}
	b.WriteString("  return true;\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "export function assert%s(value: unknown): asserts value is %s {\n", name, name)
	fmt.Fprintf(b, "  if (!is%s(value)) {\n", name)
	fmt.Fprintf(b, "    throw new Error(\"Value is not a %s\");\n", name)
	b.WriteString("  }\n")
	b.WriteString("}\n")
}

// emitFieldCheck writes the check for one field. Required fields must
// pass; optional fields are checked only when present.
func emitFieldCheck(b *strings.Builder, f types.FieldDefinition, cfg Config, indent string) {
	access := fmt.Sprintf("obj[%q]", f.Name)
	check := valueCheck(f, access, cfg)
	if check == "" {
		return
	}

	if f.Required {
		fmt.Fprintf(b, "%sif (!(%s)) return false;\n", indent, check)
	} else {
		fmt.Fprintf(b, "%sif (%s !== undefined && !(%s)) return false;\n", indent, access, check)
	}
}

// valueCheck renders the boolean expression verifying access has the
// field's type. Empty string means the type is not checkable.
func valueCheck(f types.FieldDefinition, access string, cfg Config) string {
	switch f.Type {
	case types.FieldTypeString:
		return fmt.Sprintf("typeof %s === \"string\"", access)
	case types.FieldTypeNumber:
		return fmt.Sprintf("typeof %s === \"number\"", access)
	case types.FieldTypeBoolean:
		return fmt.Sprintf("typeof %s === \"boolean\"", access)
	case types.FieldTypeNull:
		return fmt.Sprintf("%s === null", access)
	case types.FieldTypeArray:
		base := fmt.Sprintf("Array.isArray(%s)", access)
		if cfg.GuardArrayChecks && f.ArrayItemType != nil {
			if elem := primitiveCheck(f.ArrayItemType.Type, "item"); elem != "" {
				return fmt.Sprintf("%s && (%s as unknown[]).every((item) => %s)", base, access, elem)
			}
		}
		return base
	case types.FieldTypeObject:
		base := fmt.Sprintf("typeof %s === \"object\" && %s !== null", access, access)
		if cfg.GuardDeepChecks && len(f.ObjectFields) > 0 {
			var parts []string
			parts = append(parts, base)
			for _, nested := range f.ObjectFields {
				nestedAccess := fmt.Sprintf("(%s as Record<string, unknown>)[%q]", access, nested.Name)
				nestedCheck := valueCheck(nested, nestedAccess, cfg)
				if nestedCheck == "" {
					continue
				}
				if nested.Required {
					parts = append(parts, nestedCheck)
				} else {
					parts = append(parts, fmt.Sprintf("(%s === undefined || (%s))", nestedAccess, nestedCheck))
				}
			}
			return strings.Join(parts, " && ")
		}
		return base
	case types.FieldTypeReference:
		// References arrive either as marker objects or resolved values;
		// shape is not statically checkable.
		return ""
	default:
		return ""
	}
}

// primitiveCheck renders a typeof check for checkable primitive item
// types; anything else is skipped.
func primitiveCheck(ft types.FieldType, varName string) string {
	switch ft {
	case types.FieldTypeString:
		return fmt.Sprintf("typeof %s === \"string\"", varName)
	case types.FieldTypeNumber:
		return fmt.Sprintf("typeof %s === \"number\"", varName)
	case types.FieldTypeBoolean:
		return fmt.Sprintf("typeof %s === \"boolean\"", varName)
	default:
		return ""
	}
}
