package codegen

import (
	"strings"
	"testing"

	"github.com/udl-dev/udl/internal/types"
)

func productDef() types.TypeDefinition {
	return types.TypeDefinition{
		Name:  "Product",
		Owner: "shopify",
		Fields: []types.FieldDefinition{
			{Name: "title", Type: types.FieldTypeString, Required: true, Description: "Display title"},
			{Name: "price", Type: types.FieldTypeNumber},
			{Name: "tags", Type: types.FieldTypeArray, Required: true,
				ArrayItemType: &types.FieldDefinition{Name: "item", Type: types.FieldTypeString}},
		},
	}
}

func TestEmitTypesInterface(t *testing.T) {
	out := EmitTypes([]types.TypeDefinition{productDef()}, Config{EmitJSDoc: true})

	for _, want := range []string{
		"export interface Product {",
		"  /** Display title */",
		"  title: string;",
		"  price?: number;",
		"  tags: string[];",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "NodeInternal") {
		t.Error("internal descriptor emitted without EmitInternal")
	}
}

func TestEmitTypesExportType(t *testing.T) {
	out := EmitTypes([]types.TypeDefinition{productDef()}, Config{ExportType: true})
	if !strings.Contains(out, "export type Product = {") || !strings.Contains(out, "};") {
		t.Errorf("type-alias form not emitted:\n%s", out)
	}
}

func TestEmitTypesInternalDescriptor(t *testing.T) {
	out := EmitTypes([]types.TypeDefinition{productDef()}, Config{EmitInternal: true})
	if !strings.Contains(out, "export interface NodeInternal<TType extends string = string, TOwner extends string = string> {") {
		t.Error("NodeInternal descriptor missing")
	}
	if !strings.Contains(out, `internal?: NodeInternal<"Product", "shopify">;`) {
		t.Errorf("per-type internal field missing:\n%s", out)
	}
}

func TestTSTypeExpressions(t *testing.T) {
	tests := []struct {
		name string
		f    types.FieldDefinition
		want string
	}{
		{"string", types.FieldDefinition{Type: types.FieldTypeString}, "string"},
		{"number", types.FieldDefinition{Type: types.FieldTypeNumber}, "number"},
		{"boolean", types.FieldDefinition{Type: types.FieldTypeBoolean}, "boolean"},
		{"null", types.FieldDefinition{Type: types.FieldTypeNull}, "null"},
		{"unknown", types.FieldDefinition{Type: types.FieldTypeUnknown}, "unknown"},
		{"string array", types.FieldDefinition{
			Type:          types.FieldTypeArray,
			ArrayItemType: &types.FieldDefinition{Type: types.FieldTypeString},
		}, "string[]"},
		{"untyped array", types.FieldDefinition{Type: types.FieldTypeArray}, "unknown[]"},
		{"object array needs wrapper", types.FieldDefinition{
			Type: types.FieldTypeArray,
			ArrayItemType: &types.FieldDefinition{
				Type:         types.FieldTypeObject,
				ObjectFields: []types.FieldDefinition{{Name: "id", Type: types.FieldTypeString, Required: true}},
			},
		}, "Array<{ id: string }>"},
		{"union array needs wrapper", types.FieldDefinition{
			Type: types.FieldTypeArray,
			ArrayItemType: &types.FieldDefinition{
				Type:          types.FieldTypeString,
				LiteralValues: []any{"a", "b"},
			},
		}, `Array<"a" | "b">`},
		{"empty object", types.FieldDefinition{Type: types.FieldTypeObject}, "Record<string, unknown>"},
		{"inline object", types.FieldDefinition{
			Type: types.FieldTypeObject,
			ObjectFields: []types.FieldDefinition{
				{Name: "lat", Type: types.FieldTypeNumber, Required: true},
				{Name: "lng", Type: types.FieldTypeNumber},
			},
		}, "{ lat: number; lng?: number }"},
		{"reference", types.FieldDefinition{Type: types.FieldTypeReference, ReferenceType: "Collection"}, "Collection"},
		{"unresolved reference", types.FieldDefinition{Type: types.FieldTypeReference}, "unknown"},
		{"string literals", types.FieldDefinition{
			Type:          types.FieldTypeString,
			LiteralValues: []any{"draft", "live"},
		}, `"draft" | "live"`},
		{"number literals", types.FieldDefinition{
			Type:          types.FieldTypeNumber,
			LiteralValues: []any{float64(1), float64(2.5)},
		}, "1 | 2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tsType(tt.f); got != tt.want {
				t.Errorf("tsType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldKeyQuoting(t *testing.T) {
	def := types.TypeDefinition{Name: "T", Fields: []types.FieldDefinition{
		{Name: "valid_name", Type: types.FieldTypeString, Required: true},
		{Name: "kebab-case", Type: types.FieldTypeString, Required: true},
		{Name: "with space", Type: types.FieldTypeString, Required: true},
	}}
	out := EmitTypes([]types.TypeDefinition{def}, Config{})
	if !strings.Contains(out, "  valid_name: string;") {
		t.Error("identifier name should not be quoted")
	}
	if !strings.Contains(out, `  "kebab-case": string;`) || !strings.Contains(out, `  "with space": string;`) {
		t.Errorf("non-identifier names must be quoted:\n%s", out)
	}
}

func TestIdentifierSanitizing(t *testing.T) {
	tests := map[string]string{
		"Product":      "Product",
		"my-type":      "mytype",
		"3dModel":      "T3dModel",
		"with.dots":    "withdots",
		"!!!":          "Unnamed",
		"snake_case$x": "snake_case$x",
	}
	for in, want := range tests {
		if got := identifier(in); got != want {
			t.Errorf("identifier(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmitGuards(t *testing.T) {
	out := EmitGuards([]types.TypeDefinition{productDef()}, Config{Guards: true})

	for _, want := range []string{
		`import type { Product } from "./types";`,
		"export function isProduct(value: unknown): value is Product {",
		`if (!(typeof obj["title"] === "string")) return false;`,
		`if (obj["price"] !== undefined && !(typeof obj["price"] === "number")) return false;`,
		`if (!(Array.isArray(obj["tags"]))) return false;`,
		"export function assertProduct(value: unknown): asserts value is Product {",
		`throw new Error("Value is not a Product");`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("guards missing %q\n%s", want, out)
		}
	}
}

func TestEmitGuardsArrayItemChecks(t *testing.T) {
	def := types.TypeDefinition{Name: "T", Fields: []types.FieldDefinition{
		{Name: "tags", Type: types.FieldTypeArray, Required: true,
			ArrayItemType: &types.FieldDefinition{Type: types.FieldTypeString}},
	}}

	plain := EmitGuards([]types.TypeDefinition{def}, Config{})
	if strings.Contains(plain, ".every(") {
		t.Error("item checks emitted without GuardArrayChecks")
	}

	deep := EmitGuards([]types.TypeDefinition{def}, Config{GuardArrayChecks: true})
	if !strings.Contains(deep, `.every((item) => typeof item === "string")`) {
		t.Errorf("item checks missing:\n%s", deep)
	}
}

func TestEmitGuardsDeepObjectChecks(t *testing.T) {
	def := types.TypeDefinition{Name: "T", Fields: []types.FieldDefinition{
		{Name: "seo", Type: types.FieldTypeObject, Required: true,
			ObjectFields: []types.FieldDefinition{
				{Name: "title", Type: types.FieldTypeString, Required: true},
			}},
	}}

	deep := EmitGuards([]types.TypeDefinition{def}, Config{GuardDeepChecks: true})
	if !strings.Contains(deep, `(obj["seo"] as Record<string, unknown>)["title"]`) {
		t.Errorf("nested check missing:\n%s", deep)
	}
}

func TestEmitGuardsSkipsReferences(t *testing.T) {
	def := types.TypeDefinition{Name: "T", Fields: []types.FieldDefinition{
		{Name: "author", Type: types.FieldTypeReference, ReferenceType: "Author", Required: true},
	}}
	out := EmitGuards([]types.TypeDefinition{def}, Config{})
	if strings.Contains(out, `obj["author"]`) {
		t.Errorf("reference fields are not checkable:\n%s", out)
	}
}
