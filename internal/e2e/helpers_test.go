package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sidekick/internal/backend"
	"sidekick/internal/engine"
	"sidekick/internal/httpapi"
)

// fakeLlama is an in-process stand-in for llama-server.
type fakeLlama struct {
	srv     *httptest.Server
	content atomic.Value // string
	calls   atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func newFakeLlama(t *testing.T, content string) *fakeLlama {
	t.Helper()
	f := &fakeLlama{}
	f.content.Store(content)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		var req backend.CompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.calls.Add(1)
		f.mu.Lock()
		f.prompts = append(f.prompts, req.Prompt)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":          f.content.Load().(string),
			"tokens_predicted": 8,
			"stop":             true,
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLlama) hostPort(t *testing.T) (string, int) {
	t.Helper()
	u, err := url.Parse(f.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return u.Hostname(), port
}

func (f *fakeLlama) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// daemon is the HTTP surface wired to a real engine and manager.
type daemon struct {
	srv     *httptest.Server
	manager *backend.Manager
	engine  *engine.Engine
	events  *backend.Broadcaster
}

// eventService adds the event stream to the engine.
type eventService struct {
	*engine.Engine
	events *backend.Broadcaster
}

func (s eventService) Subscribe() (<-chan backend.Event, func()) { return s.events.Subscribe() }

func newDaemon(t *testing.T, host string, port int, model string) *daemon {
	t.Helper()
	log := zerolog.Nop()
	events := backend.NewBroadcaster(32)
	mgr := backend.NewManager(backend.Config{
		Host:           host,
		Port:           port,
		ModelID:        model,
		LlamaBin:       filepath.Join(t.TempDir(), "no-llama-server"),
		HealthInterval: 20 * time.Millisecond,
		HealthAttempts: 5,
		Publisher:      events,
		Logger:         &log,
	})
	eng := engine.New(mgr, mgr.Client(), engine.Options{Model: model, Timeout: 2 * time.Second, Logger: &log})
	srv := httptest.NewServer(httpapi.NewMux(eventService{Engine: eng, events: events}))
	d := &daemon{srv: srv, manager: mgr, engine: eng, events: events}
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return d
}

// waitReady blocks until initialization settles and returns its error.
func (d *daemon) waitReady(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := d.manager.EnsureReady(ctx)
	return err
}

// closedPort returns a loopback port with nothing listening.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("json: %v body=%s", err, body)
	}
	return v
}
