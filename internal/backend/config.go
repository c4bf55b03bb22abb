package backend

import (
	"time"

	"github.com/rs/zerolog"

	"sidekick/internal/registry"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultHost           = "127.0.0.1"
	defaultPort           = 8080
	defaultHealthInterval = time.Second
	defaultHealthAttempts = 30
	defaultProbeTimeout   = 500 * time.Millisecond
	defaultStopGrace      = 2 * time.Second
	tailBytes             = 4096
)

// Config encapsulates all tunables for Manager construction. No environment
// variables are read; callers set everything explicitly.
type Config struct {
	Host string
	Port int

	// ModelID selects the preferred model file when scanning ModelsDir.
	ModelID    string
	ModelPath  string
	ModelsDir  string
	Extensions []string

	LlamaBin    string
	ContextSize int
	Threads     int
	GPULayers   int
	ExtraArgs   []string

	HealthInterval time.Duration
	HealthAttempts int
	ProbeTimeout   time.Duration
	StopGrace      time.Duration

	Publisher EventPublisher
	Logger    *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if len(c.Extensions) == 0 {
		c.Extensions = registry.DefaultExtensions
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = defaultHealthInterval
	}
	if c.HealthAttempts <= 0 {
		c.HealthAttempts = defaultHealthAttempts
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.StopGrace <= 0 {
		c.StopGrace = defaultStopGrace
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	if c.Logger == nil {
		l := zerolog.Nop()
		c.Logger = &l
	}
	return c
}
