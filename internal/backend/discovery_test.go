package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveModelExplicitPath(t *testing.T) {
	dir := t.TempDir()
	p := writeModel(t, dir, "custom.gguf")
	got, err := resolveModel("ignored", p, "", nil)
	if err != nil || got != p {
		t.Fatalf("got %q err=%v", got, err)
	}
	if _, err := resolveModel("", filepath.Join(dir, "missing.gguf"), dir, nil); !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
}

func TestResolveModelScanPrefersID(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "a-tinyllama.gguf")
	want := writeModel(t, dir, "starcoder2-3b.Q4.gguf")
	writeModel(t, dir, "notes.txt")
	got, err := resolveModel("starcoder2", "", dir, []string{".gguf"})
	if err != nil || got != want {
		t.Fatalf("got %q err=%v", got, err)
	}
	// Unknown ids fall back to the first model in name order.
	got, err = resolveModel("mistral", "", dir, []string{".gguf"})
	if err != nil || filepath.Base(got) != "a-tinyllama.gguf" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestResolveModelEmptyDir(t *testing.T) {
	dir := t.TempDir()
	if _, err := resolveModel("x", "", dir, []string{".gguf"}); !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
	if _, err := resolveModel("x", "", "", nil); !IsModelNotFound(err) {
		t.Fatalf("expected model not found without dir, got %v", err)
	}
}

func TestResolveExecutableConfigured(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "llama-server")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := resolveExecutable(bin); !IsExecutableNotFound(err) {
		t.Fatalf("non-executable file accepted: %v", err)
	}
	if err := os.Chmod(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	if got, err := resolveExecutable(bin); err != nil || got != bin {
		t.Fatalf("got %q err=%v", got, err)
	}
	if _, err := resolveExecutable(filepath.Join(dir, "nope")); !IsExecutableNotFound(err) {
		t.Fatalf("missing binary accepted: %v", err)
	}
}

func TestDiscoverReport(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "codellama-7b.gguf")
	m := NewManager(Config{Port: freePort(t), ModelsDir: dir, LlamaBin: filepath.Join(dir, "missing")})
	r := m.Discover(context.Background())
	if r.ExternalHealthy || r.ModelID != "codellama-7b.gguf" || r.LlamaFound || r.LlamaError == "" {
		t.Fatalf("unexpected report: %+v", r)
	}
	if !strings.HasPrefix(r.BaseURL, "http://127.0.0.1:") {
		t.Fatalf("base url %q", r.BaseURL)
	}
	if m.State() != StateNotInitialized {
		t.Fatalf("Discover changed state to %s", m.State())
	}
}

func TestLaunchArgs(t *testing.T) {
	cfg := Config{Host: "127.0.0.1", Port: 8080, ContextSize: 4096, GPULayers: 99, Threads: 4, ExtraArgs: []string{"--mlock"}}
	got := strings.Join(launchArgs(cfg, "/m/x.gguf"), " ")
	want := "-m /m/x.gguf --host 127.0.0.1 --port 8080 -c 4096 -ngl 99 -t 4 --mlock"
	if got != want {
		t.Fatalf("args = %q, want %q", got, want)
	}
	got = strings.Join(launchArgs(Config{Host: "::1", Port: 1}, "m"), " ")
	if got != "-m m --host ::1 --port 1" {
		t.Fatalf("args = %q", got)
	}
}
