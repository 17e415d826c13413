package codegen

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/udl-dev/udl/internal/types"
)

// Operation is one discovered named GraphQL operation.
type Operation struct {
	Name     string
	Kind     string // query, mutation, subscription
	File     string
	Document *ast.QueryDocument
	Def      *ast.OperationDefinition
}

// DiscoverOperations walks the configured roots for .graphql/.gql
// files, skipping hidden entries and node_modules. Parse failures and
// anonymous operations are warned and skipped, never fatal.
func DiscoverOperations(roots []string) []Operation {
	var ops []Operation
	for _, root := range roots {
		files := operationFiles(root)
		for _, file := range files {
			ops = append(ops, parseOperationFile(file)...)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// operationFiles lists .graphql/.gql files under root in walk order.
func operationFiles(root string) []string {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		ext := filepath.Ext(name)
		if ext == ".graphql" || ext == ".gql" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		slog.Warn("failed to walk operation root", "root", root, "error", err)
	}
	return files
}

func parseOperationFile(file string) []Operation {
	data, err := os.ReadFile(file) // #nosec G304 - path from configured roots
	if err != nil {
		slog.Warn("failed to read operation file", "file", file, "error", err)
		return nil
	}
	doc, parseErr := parser.ParseQuery(&ast.Source{Name: file, Input: string(data)})
	if parseErr != nil {
		slog.Warn("failed to parse operation file", "file", file, "error", parseErr)
		return nil
	}

	var ops []Operation
	for _, opDef := range doc.Operations {
		if opDef.Name == "" {
			slog.Warn("skipping anonymous operation", "file", file)
			continue
		}
		ops = append(ops, Operation{
			Name:     opDef.Name,
			Kind:     string(opDef.Operation),
			File:     file,
			Document: doc,
			Def:      opDef,
		})
	}
	return ops
}

// EmitOperations renders the typed operation artifacts: per operation a
// Result type from its selection set, a Variables type from its
// variable definitions, and a document constant serialized through the
// canonical formatter (position metadata never survives formatting).
func EmitOperations(ops []Operation, defs []types.TypeDefinition, cfg Config) string {
	byName := make(map[string]types.TypeDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	var b strings.Builder
	b.WriteString("// Generated typed operation documents. Do not edit by hand.\n\n")

	for i, op := range ops {
		if i > 0 {
			b.WriteString("\n")
		}
		emitOperation(&b, op, byName, cfg)
	}
	return b.String()
}

func emitOperation(b *strings.Builder, op Operation, defs map[string]types.TypeDefinition, cfg Config) {
	name := identifier(op.Name)

	fmt.Fprintf(b, "export interface %sResult {\n", name)
	for _, sel := range op.Def.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		emitSelectionField(b, field, resolveRootType(field.Name, defs), defs, "  ")
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "export interface %sVariables {\n", name)
	for _, v := range op.Def.VariableDefinitions {
		opt := "?"
		if v.Type.NonNull {
			opt = ""
		}
		fmt.Fprintf(b, "  %s%s: %s;\n", fieldKey(v.Variable), opt, variableTSType(v.Type))
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(b, "export const %sDocument = `%s` as const;\n",
		lowerFirst(name), escapeTemplate(formatDocument(op)))
}

// emitSelectionField renders one selected field of a result type,
// recursing into sub-selections against the resolved definition.
func emitSelectionField(b *strings.Builder, field *ast.Field, parent *types.TypeDefinition, defs map[string]types.TypeDefinition, indent string) {
	key := field.Name
	if field.Alias != "" {
		key = field.Alias
	}

	var fieldDef *types.FieldDefinition
	if parent != nil {
		fieldDef = parent.Field(field.Name)
	}

	if len(field.SelectionSet) == 0 {
		tsExpr := "unknown"
		if fieldDef != nil {
			tsExpr = tsType(*fieldDef)
		} else if key == "__typename" {
			tsExpr = "string"
		}
		fmt.Fprintf(b, "%s%s: %s;\n", indent, fieldKey(key), tsExpr)
		return
	}

	// Sub-selection: resolve the target definition and render an inline
	// structural type. Arrays of references stay arrays.
	target := resolveSelectionTarget(field.Name, fieldDef, defs)
	suffix := ""
	if fieldDef != nil && fieldDef.Type == types.FieldTypeArray {
		suffix = "[]"
	}
	fmt.Fprintf(b, "%s%s: {\n", indent, fieldKey(key))
	for _, sel := range field.SelectionSet {
		sub, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		emitSelectionField(b, sub, target, defs, indent+"  ")
	}
	fmt.Fprintf(b, "%s}%s;\n", indent, suffix)
}

// resolveRootType maps a root selection field to a known definition by
// name: exact match first, then capitalized, then capitalized singular.
func resolveRootType(fieldName string, defs map[string]types.TypeDefinition) *types.TypeDefinition {
	candidates := []string{fieldName, upperFirst(fieldName)}
	if strings.HasSuffix(fieldName, "s") {
		candidates = append(candidates, upperFirst(strings.TrimSuffix(fieldName, "s")))
	}
	for _, c := range candidates {
		if def, ok := defs[c]; ok {
			return &def
		}
	}
	return nil
}

// resolveSelectionTarget finds the definition a sub-selection selects
// against: the field's reference target when known, the array item's
// target for list fields, else a root-style name match.
func resolveSelectionTarget(fieldName string, fieldDef *types.FieldDefinition, defs map[string]types.TypeDefinition) *types.TypeDefinition {
	if fieldDef != nil {
		ref := fieldDef.ReferenceType
		if fieldDef.Type == types.FieldTypeArray && fieldDef.ArrayItemType != nil {
			ref = fieldDef.ArrayItemType.ReferenceType
		}
		if ref != "" {
			if def, ok := defs[ref]; ok {
				return &def
			}
		}
	}
	return resolveRootType(fieldName, defs)
}

// variableTSType maps a GraphQL variable type to TypeScript.
func variableTSType(t *ast.Type) string {
	if t == nil {
		return "unknown"
	}
	if t.Elem != nil {
		inner := variableTSType(t.Elem)
		if strings.ContainsAny(inner, "{|") {
			return "Array<" + inner + ">"
		}
		return inner + "[]"
	}
	switch t.NamedType {
	case "ID", "String":
		return "string"
	case "Int", "Float":
		return "number"
	case "Boolean":
		return "boolean"
	default:
		return "unknown"
	}
}

// formatDocument serializes one operation (plus its file's fragments)
// through the gqlparser formatter, producing canonical source.
func formatDocument(op Operation) string {
	var buf strings.Builder
	f := formatter.NewFormatter(&buf)
	f.FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{op.Def},
		Fragments:  op.Document.Fragments,
	})
	return strings.TrimSpace(buf.String())
}

func escapeTemplate(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "`", "\\`")
	return strings.ReplaceAll(s, "${", "\\${")
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
