// Package deletions maintains the deletion log: an append-only record
// of node tombstones that lets delta-sync clients which reconnect later
// learn what disappeared while they were away. The log lives in memory
// for the process lifetime and can optionally be mirrored to a JSONL
// manifest on disk.
package deletions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/udl-dev/udl/internal/types"
)

// Log is an append-only list of deletion records.
type Log struct {
	mu      sync.RWMutex
	records []types.DeletionRecord

	// path, when non-empty, mirrors every append to a JSONL manifest.
	path string
}

// New creates an empty in-memory log.
func New() *Log {
	return &Log{}
}

// NewPersistent creates a log mirrored to the JSONL manifest at path.
// Existing records are loaded first; corrupt lines are skipped with a
// warning rather than failing the load.
func NewPersistent(path string) (*Log, error) {
	l := &Log{path: path}
	records, skipped, err := load(path)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		fmt.Fprintf(os.Stderr, "Warning: skipped %d corrupt lines in deletion log %s\n", skipped, path)
	}
	l.records = records
	return l, nil
}

// Append adds a record to the log (and the manifest, when configured).
func (l *Log) Append(rec types.DeletionRecord) error {
	l.mu.Lock()
	l.records = append(l.records, rec)
	path := l.path
	l.mu.Unlock()

	if path == "" {
		return nil
	}
	return appendToManifest(path, rec)
}

// Since returns every record with DeletedAt strictly after t. When
// nodeTypes is non-empty only records of those types are returned.
func (l *Log) Since(t time.Time, nodeTypes ...string) []types.DeletionRecord {
	typeSet := make(map[string]bool, len(nodeTypes))
	for _, nt := range nodeTypes {
		typeSet[nt] = true
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []types.DeletionRecord
	for _, rec := range l.records {
		if !rec.DeletedAt.After(t) {
			continue
		}
		if len(typeSet) > 0 && !typeSet[rec.NodeType] {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// All returns a copy of every record in append order.
func (l *Log) All() []types.DeletionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]types.DeletionRecord(nil), l.records...)
}

// Len returns the number of records in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Clear drops every record. The manifest, when configured, is truncated
// by rewriting it empty. Used by tests and runtime resets.
func (l *Log) Clear() {
	l.mu.Lock()
	l.records = nil
	path := l.path
	l.mu.Unlock()

	if path != "" {
		_ = writeManifest(path, nil)
	}
}

// Compact drops records deleted before the cutoff and rewrites the
// manifest atomically. Compaction is never automatic: callers decide
// when every sync client has moved past the cutoff.
func (l *Log) Compact(cutoff time.Time) error {
	l.mu.Lock()
	kept := l.records[:0]
	for _, rec := range l.records {
		if rec.DeletedAt.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	l.records = kept
	path := l.path
	records := append([]types.DeletionRecord(nil), kept...)
	l.mu.Unlock()

	if path == "" {
		return nil
	}
	return writeManifest(path, records)
}

// load reads a JSONL manifest, returning records, the count of skipped
// corrupt lines, and any error.
func load(path string) ([]types.DeletionRecord, int, error) {
	f, err := os.Open(path) // #nosec G304 - controlled path from caller
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("opening deletion log: %w", err)
	}
	defer f.Close()

	var records []types.DeletionRecord
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var rec types.DeletionRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		if rec.NodeID == "" {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("reading deletion log: %w", err)
	}
	return records, skipped, nil
}

func appendToManifest(path string, rec types.DeletionRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating deletion log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // #nosec G304 - controlled path
	if err != nil {
		return fmt.Errorf("opening deletion log for append: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling deletion record: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing deletion record: %w", err)
	}
	return nil
}

// writeManifest atomically replaces the manifest with the given records
// using write-then-rename.
func writeManifest(path string, records []types.DeletionRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating deletion log directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling deletion record: %w", err)
		}
		if _, err := tmp.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("writing deletion record: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing deletion log: %w", err)
	}
	return nil
}
