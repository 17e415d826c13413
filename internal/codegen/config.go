// Package codegen emits typed TypeScript client artifacts from inferred
// or declared type definitions: declaration files, runtime type guards,
// and typed GraphQL operation documents. Output writes are diffed so
// regeneration never touches files whose content is unchanged.
package codegen

import (
	"github.com/udl-dev/udl/internal/types"
)

// Config controls what the generator emits and where.
type Config struct {
	// Endpoint is a GraphQL URL to introspect for definitions.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Headers are sent with introspection requests.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// OutputDir receives the generated files.
	OutputDir string `json:"output,omitempty" yaml:"output,omitempty"`

	// Types and Owners filter which definitions are emitted.
	Types  []string `json:"types,omitempty" yaml:"types,omitempty"`
	Owners []string `json:"owners,omitempty" yaml:"owners,omitempty"`

	// Guards emits runtime type guards alongside declarations.
	Guards bool `json:"guards,omitempty" yaml:"guards,omitempty"`
	// GuardArrayChecks verifies array element types in guards (only for
	// checkable primitive item types).
	GuardArrayChecks bool `json:"guardArrayChecks,omitempty" yaml:"guardArrayChecks,omitempty"`
	// GuardDeepChecks recurses guards through known object fields.
	GuardDeepChecks bool `json:"guardDeepChecks,omitempty" yaml:"guardDeepChecks,omitempty"`

	// EmitInternal appends the internal descriptor field to each type.
	EmitInternal bool `json:"emitInternal,omitempty" yaml:"emitInternal,omitempty"`
	// EmitJSDoc emits field descriptions as JSDoc comments.
	EmitJSDoc bool `json:"emitJsdoc,omitempty" yaml:"emitJsdoc,omitempty"`
	// ExportType emits `export type X = {...}` instead of interfaces.
	ExportType bool `json:"exportType,omitempty" yaml:"exportType,omitempty"`

	// OperationRoots are directories scanned for .graphql/.gql files.
	OperationRoots []string `json:"operationRoots,omitempty" yaml:"operationRoots,omitempty"`
	// ScalarMap maps custom GraphQL scalars to field types.
	ScalarMap map[string]types.FieldType `json:"scalarMap,omitempty" yaml:"scalarMap,omitempty"`

	// Clean removes generated files no longer produced.
	Clean bool `json:"clean,omitempty" yaml:"clean,omitempty"`
	// DryRun reports what would be written without touching disk.
	DryRun bool `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`
}

// Merge overlays other onto c: any value set in other wins. Used to
// apply CLI flags over a loaded config file.
func (c Config) Merge(other Config) Config {
	out := c
	if other.Endpoint != "" {
		out.Endpoint = other.Endpoint
	}
	if len(other.Headers) > 0 {
		out.Headers = other.Headers
	}
	if other.OutputDir != "" {
		out.OutputDir = other.OutputDir
	}
	if len(other.Types) > 0 {
		out.Types = other.Types
	}
	if len(other.Owners) > 0 {
		out.Owners = other.Owners
	}
	if other.Guards {
		out.Guards = true
	}
	if other.GuardArrayChecks {
		out.GuardArrayChecks = true
	}
	if other.GuardDeepChecks {
		out.GuardDeepChecks = true
	}
	if other.EmitInternal {
		out.EmitInternal = true
	}
	if other.EmitJSDoc {
		out.EmitJSDoc = true
	}
	if other.ExportType {
		out.ExportType = true
	}
	if len(other.OperationRoots) > 0 {
		out.OperationRoots = other.OperationRoots
	}
	if len(other.ScalarMap) > 0 {
		out.ScalarMap = other.ScalarMap
	}
	if other.Clean {
		out.Clean = true
	}
	if other.DryRun {
		out.DryRun = true
	}
	return out
}
