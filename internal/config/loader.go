package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Fields absent from a config file keep their Default() values.
type Config struct {
	Addr        string   `json:"addr" yaml:"addr" toml:"addr"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	LogLevel    string   `json:"log_level" yaml:"log_level" toml:"log_level"`

	// Model is the active model identifier. It selects the prompt family and
	// is preferred when scanning ModelsDir.
	Model     string `json:"model" yaml:"model" toml:"model"`
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`

	LlamaBin    string   `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	LlamaHost   string   `json:"llama_host" yaml:"llama_host" toml:"llama_host"`
	LlamaPort   int      `json:"llama_port" yaml:"llama_port" toml:"llama_port"`
	LlamaArgs   []string `json:"llama_args" yaml:"llama_args" toml:"llama_args"`
	ContextSize int      `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads     int      `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers   int      `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`

	HealthIntervalMS int `json:"health_interval_ms" yaml:"health_interval_ms" toml:"health_interval_ms"`
	HealthAttempts   int `json:"health_attempts" yaml:"health_attempts" toml:"health_attempts"`
	RequestTimeoutMS int `json:"request_timeout_ms" yaml:"request_timeout_ms" toml:"request_timeout_ms"`

	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	LinesBefore int     `json:"lines_before" yaml:"lines_before" toml:"lines_before"`
	LinesAfter  int     `json:"lines_after" yaml:"lines_after" toml:"lines_after"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:             "127.0.0.1:7700",
		LogLevel:         "info",
		ModelsDir:        "~/models",
		LlamaHost:        "127.0.0.1",
		LlamaPort:        8080,
		Threads:          4,
		GPULayers:        99,
		HealthIntervalMS: 1000,
		HealthAttempts:   30,
		RequestTimeoutMS: 3000,
		MaxTokens:        64,
		Temperature:      0.2,
		LinesBefore:      40,
		LinesAfter:       10,
	}
}

// Load reads a configuration file based on its extension on top of Default().
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Validate checks ranges and rejects non-loopback backend hosts: completion
// traffic must never leave the machine.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("addr %q: %w", c.Addr, err)
	}
	if !IsLoopbackHost(c.LlamaHost) {
		return fmt.Errorf("llama_host %q is not a loopback address", c.LlamaHost)
	}
	if c.LlamaPort <= 0 || c.LlamaPort > 65535 {
		return fmt.Errorf("llama_port %d out of range", c.LlamaPort)
	}
	if c.HealthIntervalMS <= 0 || c.HealthAttempts <= 0 {
		return fmt.Errorf("health_interval_ms and health_attempts must be positive")
	}
	if c.RequestTimeoutMS <= 0 {
		return fmt.Errorf("request_timeout_ms must be positive")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if c.Temperature < 0 {
		return fmt.Errorf("temperature must not be negative")
	}
	if c.LinesBefore < 0 || c.LinesAfter < 0 || c.ContextSize < 0 || c.Threads < 0 || c.GPULayers < 0 {
		return fmt.Errorf("negative window, context, thread or layer count")
	}
	return nil
}

// IsLoopbackHost reports whether host names the local machine.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

// BackendURL is the base URL of the llama.cpp server.
func (c Config) BackendURL() string {
	return "http://" + net.JoinHostPort(c.LlamaHost, strconv.Itoa(c.LlamaPort))
}

func (c Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalMS) * time.Millisecond
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}
