package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"sidekick/internal/common/fsutil"
	"sidekick/internal/registry"
)

// resolveModel picks the model file: an explicit path first, then a scan of
// modelsDir preferring a file whose name contains id.
func resolveModel(id, path, modelsDir string, exts []string) (string, error) {
	if p := strings.TrimSpace(path); p != "" {
		exp, err := fsutil.ExpandHome(p)
		if err != nil {
			return "", ErrModelNotFound(err.Error())
		}
		if !fsutil.IsRegularFile(exp) {
			return "", ErrModelNotFound(exp)
		}
		return exp, nil
	}
	if strings.TrimSpace(modelsDir) == "" {
		return "", ErrModelNotFound("no model path or models directory configured")
	}
	models, err := registry.LoadDir(modelsDir, exts...)
	if err != nil {
		return "", ErrModelNotFound(fmt.Sprintf("%s: %v", modelsDir, err))
	}
	if len(models) == 0 {
		return "", ErrModelNotFound(fmt.Sprintf("no %s files in %s", strings.Join(exts, "/"), modelsDir))
	}
	if mdl, ok := registry.Match(models, id); ok {
		return mdl.Path, nil
	}
	return models[0].Path, nil
}

// resolveExecutable returns the configured llama-server binary or discovers one.
func resolveExecutable(configured string) (string, error) {
	if bin := strings.TrimSpace(configured); bin != "" {
		exp, err := fsutil.ExpandHome(bin)
		if err != nil {
			return "", ErrExecutableNotFound(err.Error())
		}
		if !fsutil.IsExecutable(exp) {
			return "", ErrExecutableNotFound(fmt.Sprintf("llama-server not found or not executable: %s", exp))
		}
		return exp, nil
	}
	if bin := discoverLlamaBin(); bin != "" {
		return bin, nil
	}
	return "", ErrExecutableNotFound("llama-server not found: set llama_bin or install llama.cpp")
}

// llamaBinCandidates are conventional install locations checked before PATH.
var llamaBinCandidates = func() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, "llama.cpp", "build", "bin", "llama-server"),
		filepath.Join(home, "apps", "llama.cpp", "build", "bin", "llama-server"),
		filepath.Join(home, ".local", "bin", "llama-server"),
		"/usr/local/bin/llama-server",
		"/opt/homebrew/bin/llama-server",
	}
}

// discoverLlamaBin attempts to locate a llama.cpp server binary in common
// paths, then on PATH.
func discoverLlamaBin() string {
	for _, p := range llamaBinCandidates() {
		if fsutil.IsExecutable(p) {
			return p
		}
	}
	if lp, err := exec.LookPath("llama-server"); err == nil {
		return lp
	}
	return ""
}

// Report describes what discovery would use, without launching anything.
type Report struct {
	BaseURL         string `json:"base_url"`
	ExternalHealthy bool   `json:"external_healthy"`
	ModelID         string `json:"model_id,omitempty"`
	ModelPath       string `json:"model_path,omitempty"`
	ModelError      string `json:"model_error,omitempty"`
	LlamaFound      bool   `json:"llama_found"`
	LlamaPath       string `json:"llama_path,omitempty"`
	LlamaError      string `json:"llama_error,omitempty"`
}

// Discover resolves the model and executable and probes for an already running
// backend. It does not mutate state and is safe to call at any time.
func (m *Manager) Discover(ctx context.Context) Report {
	id, path := m.modelSelection()
	r := Report{BaseURL: m.client.BaseURL()}
	r.ExternalHealthy = m.client.Probe(ctx, m.cfg.ProbeTimeout)
	if p, err := resolveModel(id, path, m.cfg.ModelsDir, m.cfg.Extensions); err != nil {
		r.ModelError = err.Error()
	} else {
		r.ModelPath = p
		r.ModelID = filepath.Base(p)
	}
	if bin, err := resolveExecutable(m.cfg.LlamaBin); err != nil {
		r.LlamaError = err.Error()
	} else {
		r.LlamaFound = true
		r.LlamaPath = bin
	}
	return r
}
