package codegen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/udl-dev/udl/internal/types"
)

func writeOperationFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverOperations(t *testing.T) {
	dir := t.TempDir()
	writeOperationFile(t, dir, "products.graphql", `
query GetProducts {
  products {
    title
  }
}

mutation UpdateProduct($id: ID!) {
  updateProduct(id: $id) {
    title
  }
}
`)
	writeOperationFile(t, dir, "collection.gql", `
query GetCollection {
  collection {
    handle
  }
}
`)
	writeOperationFile(t, dir, "anonymous.graphql", `{ products { title } }`)
	writeOperationFile(t, dir, "broken.graphql", `query { oops`)
	writeOperationFile(t, dir, "readme.md", `not graphql`)

	nested := filepath.Join(dir, "node_modules", "pkg")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	writeOperationFile(t, nested, "ignored.graphql", `query Ignored { x }`)

	ops := DiscoverOperations([]string{dir})
	var names []string
	for _, op := range ops {
		names = append(names, op.Name)
	}
	want := []string{"GetCollection", "GetProducts", "UpdateProduct"}
	if len(names) != len(want) {
		t.Fatalf("operations = %v, want %v", names, want)
	}
	for i, w := range want {
		if names[i] != w {
			t.Fatalf("operations = %v, want sorted %v", names, want)
		}
	}
}

func testDefs() []types.TypeDefinition {
	return []types.TypeDefinition{
		{
			Name: "Product",
			Fields: []types.FieldDefinition{
				{Name: "title", Type: types.FieldTypeString, Required: true},
				{Name: "price", Type: types.FieldTypeNumber},
				{Name: "collection", Type: types.FieldTypeReference, ReferenceType: "Collection"},
			},
		},
		{
			Name: "Collection",
			Fields: []types.FieldDefinition{
				{Name: "handle", Type: types.FieldTypeString, Required: true},
			},
		},
	}
}

func discoverOne(t *testing.T, source string) []Operation {
	t.Helper()
	dir := t.TempDir()
	writeOperationFile(t, dir, "op.graphql", source)
	ops := DiscoverOperations([]string{dir})
	if len(ops) == 0 {
		t.Fatal("no operations discovered")
	}
	return ops
}

func TestEmitOperationsResultAndVariables(t *testing.T) {
	ops := discoverOne(t, `
query GetProduct($id: ID!, $limit: Int) {
  product {
    title
    price
    __typename
    collection {
      handle
    }
  }
}
`)
	out := EmitOperations(ops, testDefs(), Config{})

	for _, want := range []string{
		"export interface GetProductResult {",
		"title: string;",
		"price?: number;",
		"__typename: string;",
		"collection: {",
		"handle: string;",
		"export interface GetProductVariables {",
		"id: string;",
		"limit?: number;",
		"export const getProductDocument = `",
		"` as const;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestEmitOperationsAlias(t *testing.T) {
	ops := discoverOne(t, `
query GetProduct {
  product {
    headline: title
  }
}
`)
	out := EmitOperations(ops, testDefs(), Config{})
	if !strings.Contains(out, "headline: string;") {
		t.Errorf("aliased field not renamed:\n%s", out)
	}
}

func TestEmitOperationsSingularRootHeuristic(t *testing.T) {
	// "products" resolves to the Product definition via singularization.
	ops := discoverOne(t, `
query ListProducts {
  products {
    title
  }
}
`)
	out := EmitOperations(ops, testDefs(), Config{})
	if !strings.Contains(out, "title: string;") {
		t.Errorf("plural root not resolved to Product:\n%s", out)
	}
}

func TestEmitOperationsUnknownFields(t *testing.T) {
	ops := discoverOne(t, `
query Mystery {
  somethingElse
}
`)
	out := EmitOperations(ops, testDefs(), Config{})
	if !strings.Contains(out, "somethingElse: unknown;") {
		t.Errorf("unresolvable field should be unknown:\n%s", out)
	}
}

func TestEmitOperationsDocumentIncludesFragments(t *testing.T) {
	ops := discoverOne(t, `
query GetProduct {
  product {
    ...ProductBits
  }
}

fragment ProductBits on Product {
  title
}
`)
	out := EmitOperations(ops, testDefs(), Config{})
	if !strings.Contains(out, "fragment ProductBits on Product") {
		t.Errorf("fragment missing from document constant:\n%s", out)
	}
}

func TestVariableTSTypeLists(t *testing.T) {
	ops := discoverOne(t, `
query Search($ids: [ID!]!, $flags: [Boolean]) {
  products {
    title
  }
}
`)
	out := EmitOperations(ops, testDefs(), Config{})
	if !strings.Contains(out, "ids: string[];") {
		t.Errorf("list variable not rendered:\n%s", out)
	}
	if !strings.Contains(out, "flags?: boolean[];") {
		t.Errorf("optional list variable not rendered:\n%s", out)
	}
}
