package source

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/udl-dev/udl/internal/actions"
	"github.com/udl-dev/udl/internal/codegen"
	"github.com/udl-dev/udl/internal/deletions"
	"github.com/udl-dev/udl/internal/eventbus"
	"github.com/udl-dev/udl/internal/refs"
	"github.com/udl-dev/udl/internal/schema"
	"github.com/udl-dev/udl/internal/store"
	"github.com/udl-dev/udl/internal/types"
	"github.com/udl-dev/udl/internal/webhook"
)

func newLoaderForTest() *Loader {
	actionsCtx := actions.Context{
		Store:     store.New(),
		Bus:       eventbus.New(),
		Deletions: deletions.New(),
	}
	return NewLoader(actionsCtx, refs.NewRegistry(), webhook.NewRegistry())
}

func TestRefUnmarshalForms(t *testing.T) {
	var jsonRefs []Ref
	if err := json.Unmarshal([]byte(`["csv", {"name":"shopify","options":{"shop":"demo"}}]`), &jsonRefs); err != nil {
		t.Fatal(err)
	}
	if jsonRefs[0].Name != "csv" || jsonRefs[0].Options != nil {
		t.Errorf("string form = %+v", jsonRefs[0])
	}
	if jsonRefs[1].Name != "shopify" || jsonRefs[1].Options["shop"] != "demo" {
		t.Errorf("object form = %+v", jsonRefs[1])
	}

	var yamlRefs []Ref
	doc := "- csv\n- name: shopify\n  options:\n    shop: demo\n"
	if err := yaml.Unmarshal([]byte(doc), &yamlRefs); err != nil {
		t.Fatal(err)
	}
	if yamlRefs[0].Name != "csv" || yamlRefs[1].Options["shop"] != "demo" {
		t.Errorf("yaml refs = %+v", yamlRefs)
	}
}

func TestLoaderLifecycleOrder(t *testing.T) {
	l := newLoaderForTest()
	var order []string

	_ = l.Register(&Plugin{
		Name: "demo",
		OnLoad: func(ctx *LoadContext) error {
			order = append(order, "onLoad")
			if ctx.PluginName() != "demo" {
				t.Errorf("PluginName = %q", ctx.PluginName())
			}
			if ctx.Options["shop"] != "test" {
				t.Errorf("options = %v", ctx.Options)
			}
			return nil
		},
		RegisterTypes: func(ctx *LoadContext) error {
			order = append(order, "registerTypes")
			ctx.DeclareType(schema.NewType("Product").Field("title", types.FieldTypeString).Build())
			return nil
		},
		SourceNodes: func(ctx *SourceContext) error {
			order = append(order, "sourceNodes")
			_, err := ctx.CreateNode(&types.Node{
				Internal: types.NodeInternal{ID: "p-1", Type: "Product"},
				Fields:   map[string]any{"title": "Socks"},
			})
			return err
		},
	})

	err := l.Load([]Ref{{Name: "demo", Options: map[string]any{"shop": "test"}}}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"onLoad", "registerTypes", "sourceNodes"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	// Sourced nodes carry the plugin as owner.
	n := l.Actions.Store.Get("p-1")
	if n == nil || n.Internal.Owner != "demo" {
		t.Errorf("node = %+v, want owner demo", n)
	}
	// Declared schema is registered.
	if l.Actions.Store.TypeSchema("Product") == nil {
		t.Error("declared type schema missing")
	}
}

func TestLoaderSkipsUnknownPlugins(t *testing.T) {
	l := newLoaderForTest()
	if err := l.Load([]Ref{{Name: "missing"}}, t.TempDir()); err != nil {
		t.Errorf("unknown plugin should be skipped, got %v", err)
	}
}

func TestLoaderResolvesPackageName(t *testing.T) {
	l := newLoaderForTest()
	ran := false
	_ = l.Register(&Plugin{
		Name:        "shopify",
		PackageName: "udl-source-shopify",
		SourceNodes: func(*SourceContext) error { ran = true; return nil },
	})
	if err := l.Load([]Ref{{Name: "udl-source-shopify"}}, t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("package-name resolution failed")
	}
}

func TestLoaderRegistersResolverWebhooksAndIndexes(t *testing.T) {
	l := newLoaderForTest()
	_ = l.Register(&Plugin{
		Name: "cms",
		Config: Config{
			Indexes: map[string][]string{"Article": {"slug"}},
		},
		ReferenceResolver: &refs.Resolver{
			ID:        "cms-ref",
			Predicate: func(v any) bool { _, ok := v.(map[string]any); return ok },
		},
		EntityKeys: map[string]refs.EntityKeyConfig{"Article": {IDField: "slug"}},
		Webhooks: []webhook.Handler{
			{Path: "content", Handle: func(webhook.HandlerContext) error { return nil }},
		},
	})

	if err := l.Load([]Ref{{Name: "cms"}}, t.TempDir()); err != nil {
		t.Fatal(err)
	}

	if l.Refs.Resolve(map[string]any{"any": true}) == nil {
		t.Error("reference resolver not registered")
	}
	if _, ok := l.Webhooks.Lookup("cms", "content"); !ok {
		t.Error("webhook handler not registered")
	}
	if got := l.Actions.Store.RegisteredIndexes("Article"); len(got) != 1 || got[0] != "slug" {
		t.Errorf("indexes = %v", got)
	}
	if key := l.Refs.EntityKey(map[string]any{"__typename": "Article", "slug": "hello"}); key != "Article:hello" {
		t.Errorf("entity key config not applied: %q", key)
	}
}

func TestLoaderNestedPluginsAndCodegen(t *testing.T) {
	l := newLoaderForTest()
	var loaded []string
	_ = l.Register(&Plugin{
		Name: "child",
		SourceNodes: func(*SourceContext) error {
			loaded = append(loaded, "child")
			return nil
		},
	})
	_ = l.Register(&Plugin{
		Name: "parent",
		Config: Config{
			Plugins: []Ref{{Name: "child"}},
			Codegen: &codegen.Config{OutputDir: "./generated"},
		},
		SourceNodes: func(*SourceContext) error {
			loaded = append(loaded, "parent")
			return nil
		},
	})

	if err := l.Load([]Ref{{Name: "parent"}}, t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[0] != "parent" || loaded[1] != "child" {
		t.Errorf("load order = %v", loaded)
	}

	entries := l.CodegenEntries()
	if len(entries) != 1 || entries[0].PluginName != "parent" {
		t.Errorf("codegen entries = %+v", entries)
	}
}

func TestLoaderDepthLimit(t *testing.T) {
	l := newLoaderForTest()
	runs := 0
	// A plugin that loads itself; the depth limit must stop the cycle.
	_ = l.Register(&Plugin{
		Name:        "loop",
		Config:      Config{Plugins: []Ref{{Name: "loop"}}},
		SourceNodes: func(*SourceContext) error { runs++; return nil },
	})

	if err := l.Load([]Ref{{Name: "loop"}}, t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if runs != maxDepth {
		t.Errorf("runs = %d, want %d (stopped at depth limit)", runs, maxDepth)
	}
}

func TestDeclareOverrides(t *testing.T) {
	l := newLoaderForTest()
	_ = l.Register(&Plugin{
		Name: "cms",
		RegisterTypes: func(ctx *LoadContext) error {
			ctx.DeclareType(types.TypeDefinition{Name: "Article", Fields: []types.FieldDefinition{
				{Name: "status", Type: types.FieldTypeString, Required: true},
			}})
			ctx.DeclareOverrides("Article", schema.Overrides{
				"status": {Type: types.FieldTypeString, LiteralValues: []any{"draft", "live"}},
			})
			return nil
		},
	})
	if err := l.Load([]Ref{{Name: "cms"}}, t.TempDir()); err != nil {
		t.Fatal(err)
	}

	def := l.Actions.Store.TypeSchema("Article")
	if def == nil {
		t.Fatal("schema missing")
	}
	status := def.Field("status")
	if len(status.LiteralValues) != 2 || !status.Required {
		t.Errorf("override result = %+v", status)
	}
}

func TestCacheSnapshotAndRestore(t *testing.T) {
	baseDir := t.TempDir()

	build := func() *Loader {
		l := newLoaderForTest()
		sourced := false
		_ = l.Register(&Plugin{
			Name:   "csv",
			Config: Config{Cache: true, Indexes: map[string][]string{"Row": {"path"}}},
			SourceNodes: func(ctx *SourceContext) error {
				// Second run sources nothing: the cache must carry the nodes.
				if sourced {
					return nil
				}
				sourced = true
				_, err := ctx.CreateNode(&types.Node{
					Internal: types.NodeInternal{ID: "r-1", Type: "Row"},
					Fields:   map[string]any{"path": "a.csv"},
				})
				return err
			},
		})
		return l
	}

	first := build()
	if err := first.Load([]Ref{{Name: "csv"}}, baseDir); err != nil {
		t.Fatal(err)
	}
	created := first.Actions.Store.Get("r-1")
	if created == nil {
		t.Fatal("node not sourced")
	}

	// Fresh loader, same directory: restore must rebuild the node with
	// its original timestamps and the registered index.
	second := newLoaderForTest()
	_ = second.Register(&Plugin{
		Name:        "csv",
		Config:      Config{Cache: true},
		SourceNodes: func(*SourceContext) error { return nil },
	})
	if err := second.Load([]Ref{{Name: "csv"}}, baseDir); err != nil {
		t.Fatal(err)
	}

	restored := second.Actions.Store.Get("r-1")
	if restored == nil {
		t.Fatal("node not restored from cache")
	}
	if restored.Internal.CreatedAt != created.Internal.CreatedAt ||
		restored.Internal.ModifiedAt != created.Internal.ModifiedAt {
		t.Error("restore must keep the snapshot's timestamps")
	}
	if restored.Internal.Owner != "csv" {
		t.Errorf("owner = %q", restored.Internal.Owner)
	}
	if got := second.Actions.Store.GetByField("Row", "path", "a.csv"); got == nil {
		t.Error("index registration not restored")
	}
}

func TestCacheIgnoresForeignSnapshots(t *testing.T) {
	baseDir := t.TempDir()

	// Write a snapshot under plugin dir "a" owned by someone else.
	cache := &nodeCache{plugin: "other", dir: filepath.Join(baseDir, "a")}
	st := store.New()
	_ = st.Set(&types.Node{Internal: types.NodeInternal{ID: "x-1", Type: "X", Owner: "other"}})
	if err := cache.snapshot(st); err != nil {
		t.Fatal(err)
	}

	l := newLoaderForTest()
	_ = l.Register(&Plugin{Name: "a", Config: Config{Cache: true}})
	if err := l.Load([]Ref{{Name: "a"}}, baseDir); err != nil {
		t.Fatal(err)
	}
	if l.Actions.Store.Get("x-1") != nil {
		t.Error("owner-mismatched snapshot restored")
	}
}

func TestBuiltinRegistration(t *testing.T) {
	RegisterBuiltin(&Plugin{Name: "builtin-test"})
	found := false
	for _, p := range Builtins() {
		if p.Name == "builtin-test" {
			found = true
		}
	}
	if !found {
		t.Fatal("builtin not listed")
	}

	l := newLoaderForTest()
	if _, dir := l.resolve(Ref{Name: "builtin-test"}, "base"); dir == "" {
		t.Error("loader not seeded with builtins")
	}
}
