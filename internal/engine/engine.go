// Package engine orchestrates inline completions and the editor-invoked
// long-form operations on top of the backend manager.
package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sidekick/internal/backend"
	"sidekick/internal/cache"
	"sidekick/internal/prompt"
)

// Backend is the lifecycle surface the engine needs. *backend.Manager
// implements it.
type Backend interface {
	Start()
	State() backend.State
	LastError() error
	ModelID() string
	PID() int
	BaseURL() string
	Recover() bool
	ReportFailure(err error) bool
	Retry(ctx context.Context) error
	SwitchModel(ctx context.Context, id string, contextSize int) error
	Shutdown(ctx context.Context) error
}

// Completer performs one backend completion call. *backend.Client
// implements it.
type Completer interface {
	Complete(ctx context.Context, req backend.CompletionRequest) (backend.CompletionResponse, error)
}

// Defaults applied when corresponding Options fields are unset.
const (
	defaultMaxTokens     = 64
	defaultLongMaxTokens = 512
	defaultTimeout       = 3 * time.Second
	defaultLongTimeout   = 60 * time.Second
	defaultLinesBefore   = 40
	defaultLinesAfter    = 10
	defaultContextBudget = 256
)

// Options tunes an Engine.
type Options struct {
	// Model is the initial model identifier; empty defers to the backend.
	Model       string
	ContextSize int
	GPUOffload  bool

	MaxTokens     int
	LongMaxTokens int
	Temperature   float64
	Timeout       time.Duration
	LongTimeout   time.Duration
	LinesBefore   int
	LinesAfter    int
	ContextBudget int

	Sanitizer       Sanitizer
	ContextProvider ContextProvider
	Cache           *cache.Cache
	Logger          *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.LongMaxTokens <= 0 {
		o.LongMaxTokens = defaultLongMaxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.LongTimeout <= 0 {
		o.LongTimeout = defaultLongTimeout
	}
	if o.LinesBefore <= 0 {
		o.LinesBefore = defaultLinesBefore
	}
	if o.LinesAfter <= 0 {
		o.LinesAfter = defaultLinesAfter
	}
	if o.ContextBudget <= 0 {
		o.ContextBudget = defaultContextBudget
	}
	if o.Sanitizer == nil {
		o.Sanitizer = IdentitySanitizer{}
	}
	if o.Cache == nil {
		o.Cache = cache.New(cache.Capacity, cache.WithEvictHook(func(string) { cacheEvictions.Inc() }))
	}
	if o.Logger == nil {
		l := zerolog.Nop()
		o.Logger = &l
	}
	return o
}

// Engine is the per-process orchestration context: it owns the completion
// cache and the active model profile and drives the backend manager.
type Engine struct {
	opts      Options
	backend   Backend
	completer Completer
	cache     *cache.Cache
	log       zerolog.Logger

	mu      sync.RWMutex
	profile prompt.Profile
	// gen counts model switches; a completion started under an older
	// generation must not reach the cache.
	gen     uint64
	started time.Time
}

// New constructs an Engine. It has no side effects until Start.
func New(b Backend, c Completer, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		opts:      opts,
		backend:   b,
		completer: c,
		cache:     opts.Cache,
		log:       opts.Logger.With().Str("component", "engine").Logger(),
	}
	e.profile = e.selectProfile(opts.Model)
	return e
}

func (e *Engine) selectProfile(id string) prompt.Profile {
	if id != "" {
		id = filepath.Base(id)
	}
	return prompt.Select(id).WithOverrides(e.opts.ContextSize, e.opts.GPUOffload)
}

// Start begins backend initialization in the background. When no model was
// configured the profile follows the model the backend resolves.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.started = time.Now()
	e.mu.Unlock()
	e.backend.Start()
	return nil
}

// Shutdown stops the backend and drops cached completions.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cache.Clear()
	return e.backend.Shutdown(ctx)
}

// Profile returns the active model profile.
func (e *Engine) Profile() prompt.Profile {
	p, _ := e.snapshot()
	return p
}

// snapshot returns the active profile with the generation it belongs to.
func (e *Engine) snapshot() (prompt.Profile, uint64) {
	e.mu.RLock()
	p, gen := e.profile, e.gen
	e.mu.RUnlock()
	if p.ID == "" {
		if id := e.backend.ModelID(); id != "" {
			p = e.selectProfile(id)
		}
	}
	return p, gen
}

// store caches a completion unless a model switch happened since gen.
func (e *Engine) store(gen uint64, key, value string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen != gen {
		return false
	}
	e.cache.Put(key, value)
	return true
}

// Cache exposes the completion cache for inspection.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Status summarizes readiness for the editor.
type Status struct {
	Ready       bool
	ActiveModel string
	Family      prompt.Family
	State       backend.State
	LastError   string
	BackendURL  string
	PID         int
	GPUOffload  bool
	CacheLen    int
	Uptime      time.Duration
}

func (e *Engine) Status() Status {
	st := e.backend.State()
	p := e.Profile()
	s := Status{
		Ready:       st == backend.StateHealthy,
		ActiveModel: p.ID,
		Family:      p.Family,
		State:       st,
		BackendURL:  e.backend.BaseURL(),
		PID:         e.backend.PID(),
		GPUOffload:  p.GPUOffload,
		CacheLen:    e.cache.Len(),
	}
	if err := e.backend.LastError(); err != nil {
		s.LastError = err.Error()
	}
	e.mu.RLock()
	if !e.started.IsZero() {
		s.Uptime = time.Since(e.started)
	}
	e.mu.RUnlock()
	return s
}

// ErrEmptyModel is returned by SwitchModel for a blank identifier.
var ErrEmptyModel = errors.New("model identifier is empty")

// SwitchModel installs the profile for id, clears the cache and re-runs
// backend discovery in the background.
func (e *Engine) SwitchModel(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyModel
	}
	p := e.selectProfile(id)
	e.mu.Lock()
	e.profile = p
	e.gen++
	e.cache.Clear()
	e.mu.Unlock()
	e.log.Info().Str("model", id).Str("family", string(p.Family)).Msg("switching model")
	return e.backend.SwitchModel(ctx, id, p.ContextSize)
}

// Retry re-runs backend discovery from scratch.
func (e *Engine) Retry(ctx context.Context) error {
	return e.backend.Retry(ctx)
}
