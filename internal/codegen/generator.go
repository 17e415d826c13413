package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/udl-dev/udl/internal/refs"
	"github.com/udl-dev/udl/internal/schema"
	"github.com/udl-dev/udl/internal/store"
	"github.com/udl-dev/udl/internal/types"
)

// Source selects where type definitions come from.
type Source struct {
	// Endpoint introspects a GraphQL endpoint (Config.Endpoint).
	Endpoint bool
	// ResponseFile infers from a sample JSON document; TypeName names
	// the resulting definition.
	ResponseFile string
	TypeName     string
	// Store infers from the live node store.
	Store *store.Store
	Refs  *refs.Registry
}

// Generator derives definitions from a source and writes the emitted
// artifacts.
type Generator struct {
	introspector *schema.Introspector
}

// NewGenerator creates a generator with a fresh introspector.
func NewGenerator() *Generator {
	return &Generator{introspector: schema.NewIntrospector()}
}

// Definitions resolves type definitions from the configured source.
func (g *Generator) Definitions(ctx context.Context, src Source, cfg Config) ([]types.TypeDefinition, error) {
	switch {
	case src.Endpoint:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("no endpoint configured")
		}
		return g.introspector.Introspect(ctx, cfg.Endpoint, schema.IntrospectOptions{
			Headers:   cfg.Headers,
			ScalarMap: cfg.ScalarMap,
			UseCache:  true,
		})
	case src.ResponseFile != "":
		if src.TypeName == "" {
			return nil, fmt.Errorf("inferring from a response requires a type name")
		}
		data, err := os.ReadFile(src.ResponseFile) // #nosec G304 - CLI-provided path
		if err != nil {
			return nil, fmt.Errorf("reading sample response: %w", err)
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parsing sample response: %w", err)
		}
		return []types.TypeDefinition{schema.InferJSON(src.TypeName, v)}, nil
	case src.Store != nil:
		return schema.InferStore(src.Store, schema.StoreOptions{
			Types:  cfg.Types,
			Owners: cfg.Owners,
			Refs:   src.Refs,
		}), nil
	default:
		return nil, fmt.Errorf("no definition source configured")
	}
}

// Generate resolves definitions, emits the configured artifacts, and
// writes them into cfg.OutputDir.
func (g *Generator) Generate(ctx context.Context, src Source, cfg Config) ([]WriteResult, error) {
	defs, err := g.Definitions(ctx, src, cfg)
	if err != nil {
		return nil, err
	}
	defs = filterDefinitions(defs, cfg)

	files := map[string]string{
		"types.ts": EmitTypes(defs, cfg),
	}
	if cfg.Guards {
		files["guards.ts"] = EmitGuards(defs, cfg)
	}
	if len(cfg.OperationRoots) > 0 {
		ops := DiscoverOperations(cfg.OperationRoots)
		if len(ops) > 0 {
			files["operations.ts"] = EmitOperations(ops, defs, cfg)
		}
	}

	dir := cfg.OutputDir
	if dir == "" {
		dir = "./generated"
	}
	return WriteFiles(dir, files, cfg)
}

// filterDefinitions applies the Types/Owners filters.
func filterDefinitions(defs []types.TypeDefinition, cfg Config) []types.TypeDefinition {
	if len(cfg.Types) == 0 && len(cfg.Owners) == 0 {
		return defs
	}
	typeSet := make(map[string]bool, len(cfg.Types))
	for _, t := range cfg.Types {
		typeSet[t] = true
	}
	ownerSet := make(map[string]bool, len(cfg.Owners))
	for _, o := range cfg.Owners {
		ownerSet[o] = true
	}

	out := make([]types.TypeDefinition, 0, len(defs))
	for _, def := range defs {
		if len(typeSet) > 0 && !typeSet[def.Name] {
			continue
		}
		if len(ownerSet) > 0 && !ownerSet[def.Owner] {
			continue
		}
		out = append(out, def)
	}
	return out
}
