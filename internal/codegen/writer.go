package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStatus reports what the writer did with one output file.
type FileStatus string

// Writer outcomes
const (
	StatusWritten   FileStatus = "written"
	StatusUnchanged FileStatus = "unchanged"
	StatusRemoved   FileStatus = "removed"
	StatusPlanned   FileStatus = "planned"
)

// WriteResult is one file's outcome.
type WriteResult struct {
	Path   string
	Status FileStatus
}

// WriteFiles writes the generated files into dir, comparing each
// against what is on disk and skipping identical content so repeated
// generation is a no-op for consumers watching the output. With Clean
// set, previously generated files absent from this run are removed.
// DryRun reports planned work without touching disk.
func WriteFiles(dir string, files map[string]string, cfg Config) ([]WriteResult, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []WriteResult

	if !cfg.DryRun {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	for _, name := range names {
		path := filepath.Join(dir, name)
		content := files[name]

		existing, err := os.ReadFile(path) // #nosec G304 - output dir is caller-controlled
		if err == nil && string(existing) == content {
			results = append(results, WriteResult{Path: path, Status: StatusUnchanged})
			continue
		}

		if cfg.DryRun {
			results = append(results, WriteResult{Path: path, Status: StatusPlanned})
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return results, fmt.Errorf("writing %s: %w", path, err)
		}
		results = append(results, WriteResult{Path: path, Status: StatusWritten})
	}

	if cfg.Clean {
		removed, err := cleanStale(dir, files, cfg.DryRun)
		if err != nil {
			return results, err
		}
		results = append(results, removed...)
	}
	return results, nil
}

// cleanStale removes generated files in dir that this run no longer
// produces. Only files carrying a generated extension are candidates,
// so user files sharing the directory survive.
func cleanStale(dir string, files map[string]string, dryRun bool) ([]WriteResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading output directory: %w", err)
	}

	var results []WriteResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, produced := files[name]; produced {
			continue
		}
		if !strings.HasSuffix(name, ".ts") && !strings.HasSuffix(name, ".d.ts") {
			continue
		}
		path := filepath.Join(dir, name)
		if dryRun {
			results = append(results, WriteResult{Path: path, Status: StatusPlanned})
			continue
		}
		if err := os.Remove(path); err != nil {
			return results, fmt.Errorf("removing stale file %s: %w", path, err)
		}
		results = append(results, WriteResult{Path: path, Status: StatusRemoved})
	}
	return results, nil
}
