package schema

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/udl-dev/udl/internal/types"
)

// DefaultCacheTTL is how long introspection results stay fresh.
const DefaultCacheTTL = 5 * time.Minute

// DefaultTimeout bounds one introspection round trip.
const DefaultTimeout = 30 * time.Second

// introspectionQuery is the standard query covering every type, field,
// and (recursively nested) type reference we convert.
const introspectionQuery = `query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types {
      kind
      name
      description
      fields(includeDeprecated: false) {
        name
        description
        type {
          kind name
          ofType { kind name
            ofType { kind name
              ofType { kind name
                ofType { kind name
                  ofType { kind name
                    ofType { kind name } } } } } }
        }
      }
    }
  }
}`

// IntrospectOptions tunes one introspection call.
type IntrospectOptions struct {
	Headers map[string]string
	Timeout time.Duration
	// ScalarMap extends the built-in GraphQL scalar table (ID, String,
	// Int, Float, Boolean); unmapped scalars infer as unknown.
	ScalarMap map[string]types.FieldType
	// UseCache serves a fresh cached result instead of hitting the
	// endpoint again.
	UseCache bool
	CacheTTL time.Duration
}

// Introspector fetches type definitions from a GraphQL endpoint by
// running the standard introspection query. Results are cached per
// (endpoint, headers) and concurrent calls for the same key collapse
// into one request.
type Introspector struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
	group singleflight.Group
}

type cacheEntry struct {
	defs      []types.TypeDefinition
	fetchedAt time.Time
}

// NewIntrospector creates an introspector with its own HTTP client.
func NewIntrospector() *Introspector {
	return &Introspector{
		client: &http.Client{},
		cache:  make(map[string]cacheEntry),
	}
}

// Introspect runs the introspection query against endpoint and converts
// the result. Operation root types and __-prefixed builtins are
// stripped.
func (in *Introspector) Introspect(ctx context.Context, endpoint string, opts IntrospectOptions) ([]types.TypeDefinition, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	key := cacheKey(endpoint, opts.Headers)

	if opts.UseCache {
		if defs, ok := in.cached(key, ttl); ok {
			return defs, nil
		}
	}

	v, err, _ := in.group.Do(key, func() (any, error) {
		defs, err := in.fetch(ctx, endpoint, opts)
		if err != nil {
			return nil, err
		}
		in.mu.Lock()
		in.cache[key] = cacheEntry{defs: defs, fetchedAt: time.Now()}
		in.mu.Unlock()
		return defs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.TypeDefinition), nil
}

// ClearCache drops every cached introspection result.
func (in *Introspector) ClearCache() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.cache = make(map[string]cacheEntry)
}

func (in *Introspector) cached(key string, ttl time.Duration) ([]types.TypeDefinition, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	entry, ok := in.cache[key]
	if !ok || time.Since(entry.fetchedAt) >= ttl {
		return nil, false
	}
	return entry.defs, true
}

// cacheKey is the endpoint plus a digest of the sorted header set, so
// differently-authenticated calls never share a cache slot.
func cacheKey(endpoint string, headers map[string]string) string {
	if len(headers) == 0 {
		return endpoint
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(headers[k]))
		h.Write([]byte{0})
	}
	return endpoint + "#" + hex.EncodeToString(h.Sum(nil))
}

func (in *Introspector) fetch(ctx context.Context, endpoint string, opts IntrospectOptions) ([]types.TypeDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"query": introspectionQuery})
	if err != nil {
		return nil, fmt.Errorf("marshaling introspection query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := in.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Endpoint: endpoint, Limit: opts.Timeout}
		}
		return nil, fmt.Errorf("introspection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading introspection response: %w", err)
	}

	var parsed introspectionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing introspection response: %w", err)
	}
	return convertSchema(parsed.Data.Schema, opts.ScalarMap), nil
}

type introspectionResponse struct {
	Data struct {
		Schema introspectionSchema `json:"__schema"`
	} `json:"data"`
}

type introspectionSchema struct {
	QueryType        *namedType          `json:"queryType"`
	MutationType     *namedType          `json:"mutationType"`
	SubscriptionType *namedType          `json:"subscriptionType"`
	Types            []introspectionType `json:"types"`
}

type namedType struct {
	Name string `json:"name"`
}

type introspectionType struct {
	Kind        string               `json:"kind"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Fields      []introspectionField `json:"fields"`
}

type introspectionField struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        *typeRef `json:"type"`
}

type typeRef struct {
	Kind   string   `json:"kind"`
	Name   string   `json:"name"`
	OfType *typeRef `json:"ofType"`
}

// convertSchema turns the introspection payload into type definitions,
// dropping the operation roots and builtin __ types.
func convertSchema(s introspectionSchema, scalarMap map[string]types.FieldType) []types.TypeDefinition {
	roots := make(map[string]bool, 3)
	for _, rt := range []*namedType{s.QueryType, s.MutationType, s.SubscriptionType} {
		if rt != nil {
			roots[rt.Name] = true
		}
	}

	var defs []types.TypeDefinition
	for _, t := range s.Types {
		if t.Kind != "OBJECT" || roots[t.Name] || strings.HasPrefix(t.Name, "__") {
			continue
		}
		def := types.TypeDefinition{Name: t.Name}
		for _, f := range t.Fields {
			field := convertTypeRef(f.Type, scalarMap)
			field.Name = f.Name
			field.Description = f.Description
			def.Fields = append(def.Fields, field)
		}
		defs = append(defs, def)
	}
	return defs
}

// convertTypeRef walks the (possibly wrapped) type reference: NON_NULL
// marks required, LIST produces an array, OBJECT a reference, scalars
// map through the table.
func convertTypeRef(ref *typeRef, scalarMap map[string]types.FieldType) types.FieldDefinition {
	if ref == nil {
		return types.FieldDefinition{Type: types.FieldTypeUnknown}
	}

	switch ref.Kind {
	case "NON_NULL":
		inner := convertTypeRef(ref.OfType, scalarMap)
		inner.Required = true
		return inner
	case "LIST":
		item := convertTypeRef(ref.OfType, scalarMap)
		item.Name = "item"
		return types.FieldDefinition{Type: types.FieldTypeArray, ArrayItemType: &item}
	case "OBJECT", "INTERFACE", "UNION":
		return types.FieldDefinition{Type: types.FieldTypeReference, ReferenceType: ref.Name}
	case "ENUM":
		return types.FieldDefinition{Type: types.FieldTypeString}
	case "SCALAR":
		return types.FieldDefinition{Type: scalarFieldType(ref.Name, scalarMap)}
	default:
		return types.FieldDefinition{Type: types.FieldTypeUnknown}
	}
}

func scalarFieldType(name string, scalarMap map[string]types.FieldType) types.FieldType {
	switch name {
	case "ID", "String":
		return types.FieldTypeString
	case "Int", "Float":
		return types.FieldTypeNumber
	case "Boolean":
		return types.FieldTypeBoolean
	}
	if ft, ok := scalarMap[name]; ok {
		return ft
	}
	return types.FieldTypeUnknown
}
