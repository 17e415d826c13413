package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/udl-dev/udl/internal/actions"
	"github.com/udl-dev/udl/internal/store"
	"github.com/udl-dev/udl/internal/types"
)

// cacheVersion guards against reading snapshots written by an
// incompatible layout; mismatches are ignored, not migrated.
const cacheVersion = 1

const cacheDirName = ".udl-cache"

// nodeCache snapshots one plugin's nodes and index registrations.
type nodeCache struct {
	plugin string
	dir    string
}

type cacheSnapshot struct {
	Version int                 `json:"version"`
	Owner   string              `json:"owner"`
	Nodes   []*types.Node       `json:"nodes"`
	Indexes map[string][]string `json:"indexes,omitempty"`
}

func (c *nodeCache) path() string {
	return filepath.Join(c.dir, cacheDirName, "nodes.json")
}

// restore replays a snapshot through the create action so digests,
// edges, and events behave exactly as a live source run. Returns the
// number of nodes restored; corrupt or mismatched snapshots restore
// nothing without error.
func (c *nodeCache) restore(actionsCtx actions.Context) (int, error) {
	data, err := os.ReadFile(c.path()) // #nosec G304 - path derived from plugin dir
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache: %w", err)
	}

	var snap cacheSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, nil // corrupt snapshot: source fresh
	}
	if snap.Version != cacheVersion || snap.Owner != c.plugin {
		return 0, nil
	}

	for typeName, fields := range snap.Indexes {
		for _, field := range fields {
			actionsCtx.Store.RegisterIndex(typeName, field)
		}
	}

	restored := 0
	for _, n := range snap.Nodes {
		if n == nil || n.Internal.ID == "" {
			continue
		}
		if _, err := actions.CreateNode(actionsCtx, n); err != nil {
			return restored, fmt.Errorf("restoring node %s: %w", n.Internal.ID, err)
		}
		restored++
	}
	return restored, nil
}

// snapshot writes this plugin's current nodes atomically
// (write-then-rename) so a crash mid-write never corrupts the cache.
func (c *nodeCache) snapshot(st *store.Store) error {
	var nodes []*types.Node
	for _, n := range st.GetAll() {
		if n.Internal.Owner == c.plugin {
			nodes = append(nodes, n)
		}
	}

	indexes := make(map[string][]string)
	for _, typeName := range st.GetTypes() {
		if fields := st.RegisteredIndexes(typeName); len(fields) > 0 {
			indexes[typeName] = fields
		}
	}

	snap := cacheSnapshot{
		Version: cacheVersion,
		Owner:   c.plugin,
		Nodes:   nodes,
		Indexes: indexes,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	dir := filepath.Dir(c.path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "nodes.json.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path()); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}
