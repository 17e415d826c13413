package refs

import "testing"

func markerResolver(id, marker string, possible ...string) Resolver {
	return Resolver{
		ID:          id,
		MarkerField: marker,
		LookupField: "slug",
		Predicate: func(v any) bool {
			obj, ok := v.(map[string]any)
			if !ok {
				return false
			}
			_, present := obj[marker]
			return present
		},
		LookupValue: func(ref map[string]any) string {
			s, _ := ref["slug"].(string)
			return s
		},
		PossibleTypes: func(ref map[string]any) []string { return possible },
	}
}

func TestRegisterRequiresIDAndPredicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Resolver{Predicate: func(any) bool { return false }}); err == nil {
		t.Error("missing id accepted")
	}
	if err := r.Register(Resolver{ID: "x"}); err == nil {
		t.Error("missing predicate accepted")
	}
}

func TestResolveOrder(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(markerResolver("first", "kind", "Product"))
	_ = r.Register(markerResolver("second", "kind", "Collection"))

	// Both predicates match; registration order decides ownership.
	res := r.Resolve(map[string]any{"kind": "ref", "slug": "socks"})
	if res == nil || res.ID != "first" {
		t.Errorf("Resolve picked %v, want the earlier registration", res)
	}
}

func TestRegisterReplacesInPlace(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(markerResolver("a", "aRef", "Product"))
	_ = r.Register(markerResolver("b", "kind", "Collection"))
	// Re-register "a" with a predicate that also matches "kind" values.
	_ = r.Register(markerResolver("a", "kind", "Product"))

	res := r.Resolve(map[string]any{"kind": "ref"})
	if res == nil || res.ID != "a" {
		t.Errorf("replaced resolver lost its original position: %v", res)
	}
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(markerResolver("a", "kind", "Product"))
	r.Unregister("a")
	if r.Resolve(map[string]any{"kind": "ref"}) != nil {
		t.Error("unregistered resolver still resolves")
	}
}

func TestResolveNonMatching(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(markerResolver("a", "kind", "Product"))
	if r.Resolve("a plain string") != nil {
		t.Error("non-map value resolved")
	}
	if r.Resolve(map[string]any{"other": true}) != nil {
		t.Error("map without marker resolved")
	}
}

func TestEntityKeyFromTypename(t *testing.T) {
	r := NewRegistry()

	got := r.EntityKey(map[string]any{"__typename": "Product", "id": "p-1"})
	if got != "Product:p-1" {
		t.Errorf("EntityKey = %q, want Product:p-1", got)
	}

	// Numeric ids are stringified.
	got = r.EntityKey(map[string]any{"__typename": "Product", "id": float64(7)})
	if got != "Product:7" {
		t.Errorf("EntityKey = %q, want Product:7", got)
	}
}

func TestEntityKeyConfiguredIDField(t *testing.T) {
	r := NewRegistry()
	r.SetEntityKeyConfig("Page", EntityKeyConfig{IDField: "slug"})

	got := r.EntityKey(map[string]any{"__typename": "Page", "slug": "about"})
	if got != "Page:about" {
		t.Errorf("EntityKey = %q, want Page:about", got)
	}
}

func TestEntityKeyViaResolver(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(markerResolver("single", "kind", "Product"))

	got := r.EntityKey(map[string]any{"kind": "ref", "slug": "socks"})
	if got != "Product:socks" {
		t.Errorf("EntityKey = %q, want Product:socks", got)
	}
}

func TestEntityKeyAmbiguousTypes(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(markerResolver("multi", "kind", "Product", "Collection"))

	// More than one possible type: no stable key.
	if got := r.EntityKey(map[string]any{"kind": "ref", "slug": "socks"}); got != "" {
		t.Errorf("EntityKey = %q, want empty for ambiguous target", got)
	}
}

func TestEntityKeyUnrecognized(t *testing.T) {
	r := NewRegistry()
	if r.EntityKey("not an object") != "" {
		t.Error("non-object produced a key")
	}
	if r.EntityKey(map[string]any{"plain": true}) != "" {
		t.Error("plain object produced a key")
	}
}
