package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sidekick/internal/backend"
	"sidekick/internal/engine"
	"sidekick/internal/trigger"
	"sidekick/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *engine.Engine implements it.
type Service interface {
	Suggest(ctx context.Context, doc engine.Document, kind trigger.Kind) engine.Result
	Explain(ctx context.Context, code, extra string) (string, error)
	Refactor(ctx context.Context, code, instruction, extra string) (string, error)
	GenerateTests(ctx context.Context, code, extra string) (string, error)
	Status() engine.Status
	SwitchModel(ctx context.Context, id string) error
	Retry(ctx context.Context) error
}

// ModelLister is implemented by services that can enumerate local models.
type ModelLister interface {
	ListModels() ([]types.Model, error)
}

// EventSource is implemented by services that expose backend lifecycle events.
type EventSource interface {
	Subscribe() (<-chan backend.Event, func())
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if c := corsMiddleware(); c != nil {
		r.Use(c)
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/complete", func(w http.ResponseWriter, r *http.Request) {
			var req types.CompleteRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if req.Line < 0 || req.Character < 0 {
				writeJSONError(w, http.StatusBadRequest, "line and character must be non-negative")
				return
			}
			start := time.Now()
			ctx, cancel := joinContexts(serverBaseCtx, r.Context())
			defer cancel()
			doc := engine.Document{Path: req.Path, Text: req.Text, Line: req.Line, Character: req.Character}
			kind := trigger.ParseKind(req.Trigger)
			res := svc.Suggest(ctx, doc, kind)
			observeCompletion(kind, res)
			writeJSON(w, http.StatusOK, types.CompleteResponse{
				Completion: res.Text,
				Source:     string(res.Source),
				LatencyMS:  res.Latency.Milliseconds(),
				Skipped:    res.Skipped,
			})
			logRequest(r, http.StatusOK, start, nil, map[string]any{"source": string(res.Source)})
		})

		r.Post("/explain", func(w http.ResponseWriter, r *http.Request) {
			var req types.ExplainRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			runText(w, r, req.Code, func(ctx context.Context) (string, error) {
				return svc.Explain(ctx, req.Code, req.Context)
			})
		})

		r.Post("/refactor", func(w http.ResponseWriter, r *http.Request) {
			var req types.RefactorRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			runText(w, r, req.Code, func(ctx context.Context) (string, error) {
				return svc.Refactor(ctx, req.Code, req.Instruction, req.Context)
			})
		})

		r.Post("/tests", func(w http.ResponseWriter, r *http.Request) {
			var req types.TestsRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			runText(w, r, req.Code, func(ctx context.Context) (string, error) {
				return svc.GenerateTests(ctx, req.Code, req.Context)
			})
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, statusResponse(svc.Status()))
		})

		r.Post("/model", func(w http.ResponseWriter, r *http.Request) {
			var req types.SwitchModelRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			start := time.Now()
			if err := svc.SwitchModel(r.Context(), req.ID); err != nil {
				status := statusForError(err)
				writeJSONError(w, status, err.Error())
				logRequest(r, status, start, err, nil)
				return
			}
			writeJSON(w, http.StatusAccepted, statusResponse(svc.Status()))
			logRequest(r, http.StatusAccepted, start, nil, map[string]any{"model": req.ID})
		})

		r.Post("/retry", func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			if err := svc.Retry(r.Context()); err != nil {
				status := statusForError(err)
				writeJSONError(w, status, err.Error())
				logRequest(r, status, start, err, nil)
				return
			}
			writeJSON(w, http.StatusAccepted, statusResponse(svc.Status()))
			logRequest(r, http.StatusAccepted, start, nil, nil)
		})

		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			ml, ok := svc.(ModelLister)
			if !ok {
				writeJSONError(w, http.StatusNotImplemented, "model listing not available")
				return
			}
			models, err := ml.ListModels()
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if models == nil {
				models = []types.Model{}
			}
			writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
		})

		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			es, ok := svc.(EventSource)
			if !ok {
				writeJSONError(w, http.StatusNotImplemented, "event stream not available")
				return
			}
			streamEvents(w, r, es)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Status().Ready {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// decodeJSON enforces the content type and body limit and decodes into v.
// It writes the error response itself and reports whether to continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// runText validates code, runs a long-form operation and writes a TextResponse.
func runText(w http.ResponseWriter, r *http.Request, code string, op func(context.Context) (string, error)) {
	if strings.TrimSpace(code) == "" {
		writeJSONError(w, http.StatusBadRequest, "code is required")
		observeText(r, "", http.StatusBadRequest)
		return
	}
	start := time.Now()
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	text, err := op(ctx)
	if err != nil {
		// Client went away; nothing useful to write.
		if r.Context().Err() != nil {
			return
		}
		status := statusForError(err)
		writeJSONError(w, status, err.Error())
		observeText(r, "", status)
		logRequest(r, status, start, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, types.TextResponse{Text: text})
	observeText(r, text, http.StatusOK)
	logRequest(r, http.StatusOK, start, nil, nil)
}

func streamEvents(w http.ResponseWriter, r *http.Request, es EventSource) {
	ch, unsubscribe := es.Subscribe()
	defer unsubscribe()
	eventStreams.Inc()
	defer eventStreams.Dec()

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	_ = rc.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := enc.Encode(eventMessage(ev)); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func eventMessage(ev backend.Event) types.EventMessage {
	return types.EventMessage{
		Name:       ev.Name,
		State:      ev.State.String(),
		Model:      ev.ModelID,
		TimeUnixMS: ev.Time.UnixMilli(),
		Fields:     ev.Fields,
	}
}

func statusResponse(s engine.Status) types.StatusResponse {
	return types.StatusResponse{
		Ready:         s.Ready,
		ActiveModel:   s.ActiveModel,
		Family:        string(s.Family),
		State:         s.State.String(),
		LastError:     s.LastError,
		BackendURL:    s.BackendURL,
		PID:           s.PID,
		GPUOffload:    s.GPUOffload,
		CacheEntries:  s.CacheLen,
		UptimeSeconds: int64(s.Uptime / time.Second),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Err(err).Msg("encode response")
	}
}
