package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sidekick/internal/config"
	"sidekick/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	addr        string
	model       string
	modelPath   string
	modelsDir   string
	llamaBin    string
	llamaPort   int
	corsOrigins string
	requestLog  string
	maxBody     int64
}

func newServeCmd(root *rootOptions) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon and supervise the llama.cpp backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			o.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), root, o, cfg)
		},
	}
	def := config.Default()
	addr := def.Addr
	if v := os.Getenv("SIDEKICK_ADDR"); v != "" {
		addr = v
	}
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", addr, "HTTP listen address (defaults SIDEKICK_ADDR)")
	f.StringVar(&o.model, "model", "", "Model identifier; selects the prompt family and the model file")
	f.StringVar(&o.modelPath, "model-path", "", "Explicit model file path")
	f.StringVar(&o.modelsDir, "models-dir", def.ModelsDir, "Directory scanned for model files")
	f.StringVar(&o.llamaBin, "llama-bin", "", "llama-server executable (discovered when empty)")
	f.IntVar(&o.llamaPort, "llama-port", def.LlamaPort, "Port of the llama.cpp server")
	f.StringVar(&o.corsOrigins, "cors-origins", os.Getenv("SIDEKICK_CORS_ORIGINS"), "Comma-separated CORS origins (defaults SIDEKICK_CORS_ORIGINS)")
	requestLog := os.Getenv("SIDEKICK_REQUEST_LOG")
	if requestLog == "" {
		requestLog = "error"
	}
	f.StringVar(&o.requestLog, "request-log", requestLog, "Per-request log level: off|error|info|debug (defaults SIDEKICK_REQUEST_LOG)")
	f.Int64Var(&o.maxBody, "max-body-bytes", 1<<20, "Maximum JSON request body size")
	return cmd
}

// apply copies explicitly set flags over the file config.
func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") || os.Getenv("SIDEKICK_ADDR") != "" {
		cfg.Addr = o.addr
	}
	if f.Changed("model") {
		cfg.Model = o.model
	}
	if f.Changed("model-path") {
		cfg.ModelPath = o.modelPath
	}
	if f.Changed("models-dir") {
		cfg.ModelsDir = o.modelsDir
	}
	if f.Changed("llama-bin") {
		cfg.LlamaBin = o.llamaBin
	}
	if f.Changed("llama-port") {
		cfg.LlamaPort = o.llamaPort
	}
	if origins := splitCSV(o.corsOrigins); origins != nil {
		cfg.CORSOrigins = origins
	}
}

func runServe(parent context.Context, root *rootOptions, o *serveOptions, cfg config.Config) error {
	log, err := root.newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(o.maxBody)
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)
	httpapi.SetRequestLogLevel(o.requestLog)

	rt := newRuntime(cfg, log)
	srv := &http.Server{
		Handler:           httpapi.NewMux(rt.service()),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	if err := rt.engine.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Str("backend", rt.manager.BaseURL()).Msg("sidekickd listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shCtx), rt.engine.Shutdown(shCtx))
	})
	return g.Wait()
}
