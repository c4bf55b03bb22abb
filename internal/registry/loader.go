package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sidekick/internal/common/fsutil"
	"sidekick/pkg/types"
)

// DefaultExtensions lists the model file extensions recognized by LoadDir.
var DefaultExtensions = []string{".gguf", ".ggml", ".bin"}

// LoadDir scans a directory for model files with one of the given extensions
// (DefaultExtensions when none are passed). ID is the file name, Path the
// absolute file path. Results are sorted by ID so discovery is deterministic.
func LoadDir(dir string, exts ...string) ([]types.Model, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name(), exts) {
			continue
		}
		m := types.Model{ID: e.Name(), Path: filepath.Join(abs, e.Name())}
		if fi, err := e.Info(); err == nil {
			m.SizeBytes = fi.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Match picks the model whose ID best matches hint: an exact ID first, then
// the first ID containing hint (case-insensitive). An empty hint selects the
// first model. ok is false when models is empty or nothing matches.
func Match(models []types.Model, hint string) (types.Model, bool) {
	if len(models) == 0 {
		return types.Model{}, false
	}
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return models[0], true
	}
	for _, m := range models {
		if strings.ToLower(m.ID) == hint {
			return m, true
		}
	}
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.ID), hint) {
			return m, true
		}
	}
	return types.Model{}, false
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
