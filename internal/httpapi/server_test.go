package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sidekick/internal/backend"
	"sidekick/internal/engine"
	"sidekick/internal/prompt"
	"sidekick/internal/trigger"
	"sidekick/pkg/types"
)

type mockService struct {
	mu        sync.Mutex
	result    engine.Result
	lastDoc   engine.Document
	lastKind  trigger.Kind
	text      string
	textErr   error
	status    engine.Status
	switched  string
	switchErr error
	retried   int
}

func (m *mockService) Suggest(ctx context.Context, doc engine.Document, kind trigger.Kind) engine.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDoc, m.lastKind = doc, kind
	return m.result
}

func (m *mockService) Explain(ctx context.Context, code, extra string) (string, error) {
	return m.text, m.textErr
}

func (m *mockService) Refactor(ctx context.Context, code, instruction, extra string) (string, error) {
	return m.text + ":" + instruction, m.textErr
}

func (m *mockService) GenerateTests(ctx context.Context, code, extra string) (string, error) {
	return m.text, m.textErr
}

func (m *mockService) Status() engine.Status { return m.status }

func (m *mockService) SwitchModel(ctx context.Context, id string) error {
	if m.switchErr != nil {
		return m.switchErr
	}
	m.switched = id
	return nil
}

func (m *mockService) Retry(ctx context.Context) error {
	m.retried++
	return nil
}

// listingService adds the optional interfaces.
type listingService struct {
	*mockService
	models []types.Model
	events *backend.Broadcaster
}

func (l *listingService) ListModels() ([]types.Model, error) { return l.models, nil }

func (l *listingService) Subscribe() (<-chan backend.Event, func()) { return l.events.Subscribe() }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCompleteHandler(t *testing.T) {
	svc := &mockService{result: engine.Result{Text: "n - 1);", Source: engine.SourceBackend, Latency: 42 * time.Millisecond}}
	h := NewMux(svc)
	w := postJSON(h, "/v1/complete", `{"text":"return fact(","line":0,"character":12,"trigger":"explicit","path":"a.js"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body types.CompleteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Completion != "n - 1);" || body.Source != "backend" || body.LatencyMS != 42 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if svc.lastKind != trigger.Explicit {
		t.Fatalf("kind=%v", svc.lastKind)
	}
	if svc.lastDoc.Path != "a.js" || svc.lastDoc.Character != 12 {
		t.Fatalf("doc=%+v", svc.lastDoc)
	}
}

func TestCompleteSkipped(t *testing.T) {
	svc := &mockService{result: engine.Result{Source: engine.SourceSkipped, Skipped: true}}
	w := postJSON(NewMux(svc), "/v1/complete", `{"text":"const x = ","line":0,"character":10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.CompleteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if !body.Skipped || body.Completion != "" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if svc.lastKind != trigger.Automatic {
		t.Fatalf("default trigger should be automatic, got %v", svc.lastKind)
	}
}

func TestCompleteRejectsNegativePosition(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/v1/complete", `{"text":"x","line":-1,"character":0}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestContentTypeEnforced(t *testing.T) {
	h := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodPost, "/v1/explain", strings.NewReader(`{"code":"x"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Code != http.StatusUnsupportedMediaType || body.Error == "" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestBadJSON(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/v1/complete", "not-json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestBodyTooLarge(t *testing.T) {
	SetMaxBodyBytes(64)
	defer SetMaxBodyBytes(0)
	big := `{"code":"` + strings.Repeat("a", 256) + `"}`
	w := postJSON(NewMux(&mockService{}), "/v1/explain", big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestTextEndpoints(t *testing.T) {
	svc := &mockService{text: "out"}
	h := NewMux(svc)
	cases := []struct {
		path, body, want string
	}{
		{"/v1/explain", `{"code":"x := 1"}`, "out"},
		{"/v1/refactor", `{"code":"x := 1","instruction":"rename"}`, "out:rename"},
		{"/v1/tests", `{"code":"func f() {}"}`, "out"},
	}
	for _, c := range cases {
		w := postJSON(h, c.path, c.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", c.path, w.Code, w.Body.String())
		}
		var body types.TextResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s json: %v", c.path, err)
		}
		if body.Text != c.want {
			t.Fatalf("%s text=%q want %q", c.path, body.Text, c.want)
		}
	}
}

func TestTextEndpointRequiresCode(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/v1/tests", `{"code":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestTextEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{engine.ErrEmptyResponse, http.StatusBadGateway},
		{backend.ErrModelNotFound("x.gguf"), http.StatusNotFound},
		{mockHTTPError{msg: "busy", code: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, c := range cases {
		svc := &mockService{textErr: c.err}
		w := postJSON(NewMux(svc), "/v1/explain", `{"code":"x"}`)
		if w.Code != c.want {
			t.Fatalf("%v: status=%d want %d", c.err, w.Code, c.want)
		}
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: engine.Status{
		Ready:       true,
		ActiveModel: "deepseek-coder.gguf",
		Family:      prompt.FamilyFIMDeepSeek,
		State:       backend.StateHealthy,
		BackendURL:  "http://127.0.0.1:8080",
		GPUOffload:  true,
		CacheLen:    3,
		Uptime:      90 * time.Second,
	}}
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !body.Ready || body.State != "healthy" || body.Family != "fim-deepseek" || body.CacheEntries != 3 || body.UptimeSeconds != 90 || !body.GPUOffload {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestSwitchModel(t *testing.T) {
	svc := &mockService{}
	w := postJSON(NewMux(svc), "/v1/model", `{"id":"starcoder2-3b.gguf"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d", w.Code)
	}
	if svc.switched != "starcoder2-3b.gguf" {
		t.Fatalf("switched=%q", svc.switched)
	}
}

func TestSwitchModelErrors(t *testing.T) {
	w := postJSON(NewMux(&mockService{switchErr: engine.ErrEmptyModel}), "/v1/model", `{"id":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty id status=%d", w.Code)
	}
	w = postJSON(NewMux(&mockService{switchErr: backend.ErrStopped}), "/v1/model", `{"id":"x"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("stopped status=%d", w.Code)
	}
}

func TestRetry(t *testing.T) {
	svc := &mockService{}
	req := httptest.NewRequest(http.MethodPost, "/v1/retry", nil)
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, req)
	if w.Code != http.StatusAccepted || svc.retried != 1 {
		t.Fatalf("status=%d retried=%d", w.Code, svc.retried)
	}
}

func TestModelsHandler(t *testing.T) {
	svc := &listingService{mockService: &mockService{}, models: []types.Model{{ID: "m1"}, {ID: "m2"}}}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("models len=%d", len(body.Models))
	}
}

func TestOptionalEndpointsNotImplemented(t *testing.T) {
	h := NewMux(&mockService{})
	for _, p := range []string{"/v1/models", "/v1/events"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusNotImplemented {
			t.Fatalf("%s status=%d", p, w.Code)
		}
	}
}

func TestEventsStream(t *testing.T) {
	b := backend.NewBroadcaster(8)
	b.Publish(backend.Event{Name: "discovery_start", State: backend.StateDiscovering, Time: time.Now()})
	svc := &listingService{mockService: &mockService{}, events: b}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type=%s", ct)
	}
	sc := bufio.NewScanner(resp.Body)

	next := func() types.EventMessage {
		t.Helper()
		if !sc.Scan() {
			t.Fatalf("stream ended: %v", sc.Err())
		}
		var m types.EventMessage
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("json: %v", err)
		}
		return m
	}
	if m := next(); m.Name != "discovery_start" || m.State != "discovering" {
		t.Fatalf("replayed event=%+v", m)
	}
	b.Publish(backend.Event{Name: "spawn_ready", State: backend.StateHealthy, ModelID: "m.gguf", Time: time.Now()})
	if m := next(); m.Name != "spawn_ready" || m.State != "healthy" || m.Model != "m.gguf" {
		t.Fatalf("event=%+v", m)
	}
	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReadyz(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{status: engine.Status{Ready: true}}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "loading") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestHealthzAndNosniff(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff header=%q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	SetCORSOptions(true, []string{"vscode-webview://abc"}, nil, nil)
	defer SetCORSOptions(false, nil, nil, nil)
	h := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodOptions, "/v1/complete", nil)
	req.Header.Set("Origin", "vscode-webview://abc")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "vscode-webview://abc" {
		t.Fatalf("allow-origin=%q status=%d", got, w.Code)
	}
}

func TestCORSDisabledByDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}

func TestStatusForErrorWrapped(t *testing.T) {
	err := errors.Join(errors.New("ctx"), engine.ErrEmptyModel)
	if got := statusForError(err); got != http.StatusBadRequest {
		t.Fatalf("status=%d", got)
	}
}
