package main

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"sidekick/internal/backend"
	"sidekick/internal/config"
	"sidekick/internal/engine"
	"sidekick/internal/prompt"
	"sidekick/internal/registry"
	"sidekick/pkg/types"
)

// runtime is the per-process wiring of manager, engine and event fan-out.
type runtime struct {
	manager *backend.Manager
	engine  *engine.Engine
	events  *backend.Broadcaster
	cfg     config.Config
}

func newRuntime(cfg config.Config, log zerolog.Logger) *runtime {
	events := backend.NewBroadcaster(32)
	model := cfg.Model
	if model == "" && cfg.ModelPath != "" {
		model = filepath.Base(cfg.ModelPath)
	}
	gpu := cfg.GPULayers > 0
	contextSize := cfg.ContextSize
	if model != "" {
		// Launch with the family default when the config leaves it unset.
		contextSize = prompt.Select(model).WithOverrides(cfg.ContextSize, gpu).ContextSize
	}
	mgr := backend.NewManager(backend.Config{
		Host:           cfg.LlamaHost,
		Port:           cfg.LlamaPort,
		ModelID:        cfg.Model,
		ModelPath:      cfg.ModelPath,
		ModelsDir:      cfg.ModelsDir,
		LlamaBin:       cfg.LlamaBin,
		ContextSize:    contextSize,
		Threads:        cfg.Threads,
		GPULayers:      cfg.GPULayers,
		ExtraArgs:      cfg.LlamaArgs,
		HealthInterval: cfg.HealthInterval(),
		HealthAttempts: cfg.HealthAttempts,
		Publisher:      backend.MultiPublisher{events, logPublisher{log: log}},
		Logger:         &log,
	})
	eng := engine.New(mgr, mgr.Client(), engine.Options{
		Model:       model,
		ContextSize: cfg.ContextSize,
		GPUOffload:  gpu,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.RequestTimeout(),
		LinesBefore: cfg.LinesBefore,
		LinesAfter:  cfg.LinesAfter,
		Logger:      &log,
	})
	return &runtime{manager: mgr, engine: eng, events: events, cfg: cfg}
}

// service adapts the engine to the HTTP layer, adding model listing and the
// event stream.
type service struct {
	*engine.Engine
	modelsDir string
	events    *backend.Broadcaster
}

func (rt *runtime) service() *service {
	return &service{Engine: rt.engine, modelsDir: rt.cfg.ModelsDir, events: rt.events}
}

func (s *service) ListModels() ([]types.Model, error) {
	models, err := registry.LoadDir(s.modelsDir)
	if err != nil {
		return nil, err
	}
	for i := range models {
		models[i].Family = string(prompt.Select(models[i].ID).Family)
	}
	return models, nil
}

func (s *service) Subscribe() (<-chan backend.Event, func()) { return s.events.Subscribe() }

// logPublisher writes lifecycle events to the process log.
type logPublisher struct {
	log zerolog.Logger
}

func (p logPublisher) Publish(e backend.Event) {
	ev := p.log.Info()
	if e.State == backend.StateUnhealthy {
		ev = p.log.Warn()
	}
	ev.Str("component", "backend").
		Str("event", e.Name).
		Str("state", e.State.String()).
		Str("model", e.ModelID).
		Fields(e.Fields).
		Msg("backend event")
}
