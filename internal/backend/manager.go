package backend

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"sidekick/internal/common/fsutil"
)

const initKey = "init"

// Manager supervises one llama.cpp server. It either adopts a server that is
// already healthy at the configured address or launches and owns a child
// process. Construction has no side effects; call EnsureReady to start.
type Manager struct {
	cfg    Config
	client *Client
	log    zerolog.Logger
	pub    EventPublisher

	mu          sync.RWMutex
	state       State
	lastErr     error
	recoverable bool
	modelID     string
	modelPath   string
	contextSize int
	resolved    string
	proc        *process
	stopping    bool
	healthyAt   time.Time

	sf     singleflight.Group
	life   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager constructs a Manager from cfg, applying package defaults.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	life, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:         cfg,
		client:      NewClient("http://"+net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), nil),
		log:         cfg.Logger.With().Str("component", "backend").Logger(),
		pub:         cfg.Publisher,
		state:       StateNotInitialized,
		modelID:     cfg.ModelID,
		modelPath:   cfg.ModelPath,
		contextSize: cfg.ContextSize,
		life:        life,
		cancel:      cancel,
	}
}

// Client returns the HTTP client bound to the backend address.
func (m *Manager) Client() *Client { return m.client }

// BaseURL is the backend address.
func (m *Manager) BaseURL() string { return m.client.BaseURL() }

// Start begins initialization in the background and returns immediately.
func (m *Manager) Start() { m.startBackground() }

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastError returns the most recent discovery or runtime failure, or nil.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// PID returns the owned child's pid, or 0 for none or an adopted backend.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.proc == nil {
		return 0
	}
	return m.proc.pid
}

// ModelID returns the resolved model file name once launched, otherwise the
// configured model identifier.
func (m *Manager) ModelID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.resolved != "" {
		return filepath.Base(m.resolved)
	}
	return m.modelID
}

// HealthySince returns when the backend last became healthy.
func (m *Manager) HealthySince() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthyAt
}

func (m *Manager) modelSelection() (string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modelID, m.modelPath
}

// EnsureReady brings the backend to Healthy. Concurrent callers share one
// initialization. When ctx ends first the caller returns early while the
// initialization continues in the background.
func (m *Manager) EnsureReady(ctx context.Context) (State, error) {
	m.mu.RLock()
	st, stopping := m.state, m.stopping
	m.mu.RUnlock()
	if stopping {
		return StateStopped, ErrStopped
	}
	if st == StateHealthy {
		return st, nil
	}
	ch := m.sf.DoChan(initKey, m.initialize)
	select {
	case r := <-ch:
		s, _ := r.Val.(State)
		return s, r.Err
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

// startBackground kicks off initialization without waiting for it.
func (m *Manager) startBackground() {
	m.mu.RLock()
	stopping := m.stopping
	m.mu.RUnlock()
	if stopping {
		return
	}
	// The result channel is buffered; nobody needs to read it.
	_ = m.sf.DoChan(initKey, m.initialize)
}

func (m *Manager) initialize() (any, error) {
	ctx := m.life
	if ctx.Err() != nil {
		return StateStopped, ErrStopped
	}
	if st := m.State(); st == StateHealthy {
		return st, nil
	}
	m.transition(StateDiscovering, nil, false, "discovery_start", nil)

	if m.client.Probe(ctx, m.cfg.ProbeTimeout) {
		m.mu.Lock()
		m.resolved = ""
		m.mu.Unlock()
		m.log.Info().Str("url", m.client.BaseURL()).Msg("adopting running llama-server")
		m.transition(StateHealthy, nil, false, "backend_adopted", map[string]any{"url": m.client.BaseURL()})
		return StateHealthy, nil
	}

	id, path := m.modelSelection()
	modelPath, err := resolveModel(id, path, m.cfg.ModelsDir, m.cfg.Extensions)
	if err != nil {
		return m.fail(err, false, "model_not_found")
	}
	bin, err := resolveExecutable(m.cfg.LlamaBin)
	if err != nil {
		return m.fail(err, false, "executable_not_found")
	}

	m.transition(StateLaunching, nil, false, "spawn_start", map[string]any{"bin": bin, "model": modelPath})
	p, err := m.spawn(bin, modelPath)
	if err != nil {
		backendLaunches.WithLabelValues("start_error").Inc()
		return m.fail(ErrBackendUnhealthy("start failed", "", err), false, "spawn_error")
	}
	if err := m.waitHealthy(ctx, p); err != nil {
		m.release(p)
		if ctx.Err() != nil {
			return StateStopped, ErrStopped
		}
		backendLaunches.WithLabelValues("unhealthy").Inc()
		return m.fail(err, false, "spawn_timeout")
	}
	if !m.promote(p) {
		m.release(p)
		backendLaunches.WithLabelValues("unhealthy").Inc()
		return m.fail(ErrBackendUnhealthy("exited before ready", p.tail.String(), p.err), false, "spawn_exit")
	}
	backendLaunches.WithLabelValues("ready").Inc()
	m.log.Info().Int("pid", p.pid).Str("model", modelPath).Str("url", m.client.BaseURL()).Msg("llama-server ready")
	return StateHealthy, nil
}

// promote marks the backend Healthy if p is still the live owned child. The
// check and the state change share the lock the watcher takes after p exits,
// so an exit is either seen here or demoted by the watcher.
func (m *Manager) promote(p *process) bool {
	m.mu.Lock()
	if m.stopping || m.proc != p || p.exited() {
		m.mu.Unlock()
		return false
	}
	m.state = StateHealthy
	m.lastErr = nil
	m.recoverable = false
	m.healthyAt = time.Now()
	m.mu.Unlock()
	observeState(StateHealthy)
	m.publish("spawn_ready", StateHealthy, map[string]any{"pid": p.pid, "url": m.client.BaseURL()})
	return true
}

// spawn starts the child and its watcher. It refuses once Shutdown began so
// no process outlives the manager.
func (m *Manager) spawn(bin, modelPath string) (*process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopping {
		return nil, ErrStopped
	}
	cfg := m.cfg
	cfg.ContextSize = m.contextSize
	p, err := startProcess(bin, launchArgs(cfg, modelPath), modelPath, m.log)
	if err != nil {
		return nil, err
	}
	m.proc = p
	m.resolved = modelPath
	m.wg.Add(1)
	go m.watch(p)
	return p, nil
}

// watch reaps p and demotes a healthy backend when p exits on its own.
func (m *Manager) watch(p *process) {
	defer m.wg.Done()
	p.wait()
	m.mu.Lock()
	current := m.proc == p && !m.stopping
	healthy := m.state == StateHealthy
	if current && healthy {
		m.proc = nil
	}
	m.mu.Unlock()
	if !current || !healthy {
		// Launch-time exits are reported by waitHealthy.
		return
	}
	backendCrashes.Inc()
	err := ErrBackendUnhealthy("process exited", p.tail.String(), p.err)
	m.log.Warn().Int("pid", p.pid).Err(p.err).Msg("llama-server exited unexpectedly")
	m.transition(StateUnhealthy, err, true, "spawn_exit", map[string]any{"pid": p.pid})
}

// waitHealthy polls /health until success, child exit, ctx end or the
// attempt budget runs out.
func (m *Manager) waitHealthy(ctx context.Context, p *process) error {
	for i := 0; i < m.cfg.HealthAttempts; i++ {
		if p.exited() {
			return ErrBackendUnhealthy("exited before ready", p.tail.String(), p.err)
		}
		if m.client.Probe(ctx, m.cfg.ProbeTimeout) {
			return nil
		}
		t := time.NewTimer(m.cfg.HealthInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ErrBackendUnhealthy("launch cancelled", "", ctx.Err())
		case <-p.done:
			t.Stop()
			return ErrBackendUnhealthy("exited before ready", p.tail.String(), p.err)
		case <-t.C:
		}
	}
	return ErrBackendUnhealthy(fmt.Sprintf("not healthy after %d attempts", m.cfg.HealthAttempts), p.tail.String(), nil)
}

// release detaches p from the manager and terminates it.
func (m *Manager) release(p *process) {
	if p == nil {
		return
	}
	m.mu.Lock()
	if m.proc == p {
		m.proc = nil
	}
	m.mu.Unlock()
	p.terminate(m.cfg.StopGrace)
	m.publish("spawn_stop", m.State(), map[string]any{"pid": p.pid})
}

func (m *Manager) fail(err error, recoverable bool, name string) (any, error) {
	m.log.Error().Err(err).Msg("backend initialization failed")
	m.transition(StateUnhealthy, err, recoverable, name, map[string]any{"error": err.Error()})
	return StateUnhealthy, err
}

// transition records a state change and publishes it.
func (m *Manager) transition(s State, err error, recoverable bool, name string, fields map[string]any) {
	m.mu.Lock()
	if m.stopping && s != StateStopped {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.lastErr = err
	m.recoverable = recoverable
	if s == StateHealthy {
		m.healthyAt = time.Now()
	}
	m.mu.Unlock()
	observeState(s)
	m.publish(name, s, fields)
}

func (m *Manager) publish(name string, s State, fields map[string]any) {
	m.pub.Publish(Event{Name: name, State: s, ModelID: m.ModelID(), Time: time.Now(), Fields: fields})
}

// Recover starts a background re-initialization when the backend crashed at
// runtime. Discovery failures are not retried; it reports whether a restart
// was started.
func (m *Manager) Recover() bool {
	m.mu.RLock()
	ok := m.state == StateUnhealthy && m.recoverable && !m.stopping
	m.mu.RUnlock()
	if !ok {
		return false
	}
	m.log.Info().Msg("restarting llama-server after crash")
	m.startBackground()
	return true
}

// ReportFailure tells the manager that a request could not reach the
// backend. An adopted server has no watcher, so when err is a connection
// failure and a health probe also fails, the backend is demoted to Unhealthy
// and marked recoverable. Owned children are left to their watcher. It
// reports whether the backend was demoted.
func (m *Manager) ReportFailure(err error) bool {
	if !IsConnectionFailure(err) {
		return false
	}
	m.mu.RLock()
	adopted := m.state == StateHealthy && m.proc == nil && !m.stopping
	m.mu.RUnlock()
	if !adopted || m.client.Probe(m.life, m.cfg.ProbeTimeout) {
		return false
	}
	lost := ErrBackendUnhealthy("adopted backend unreachable", "", err)
	m.mu.Lock()
	if m.stopping || m.state != StateHealthy || m.proc != nil {
		m.mu.Unlock()
		return false
	}
	m.state = StateUnhealthy
	m.lastErr = lost
	m.recoverable = true
	m.mu.Unlock()
	observeState(StateUnhealthy)
	backendCrashes.Inc()
	m.log.Warn().Err(err).Str("url", m.client.BaseURL()).Msg("adopted llama-server unreachable")
	m.publish("backend_lost", StateUnhealthy, map[string]any{"url": m.client.BaseURL()})
	return true
}

// Retry stops any owned child and re-runs discovery from scratch in the
// background.
func (m *Manager) Retry(ctx context.Context) error {
	return m.restart(ctx, "retry", nil)
}

// SwitchModel selects a new model and re-runs discovery in the background.
// id may be a model identifier or a path to a model file. A positive
// contextSize replaces the launch context size.
func (m *Manager) SwitchModel(ctx context.Context, id string, contextSize int) error {
	return m.restart(ctx, "switch_model", func() {
		if contextSize > 0 {
			m.contextSize = contextSize
		}
		m.modelID, m.modelPath = id, ""
		if exp, err := fsutil.ExpandHome(id); err == nil && fsutil.IsRegularFile(exp) {
			m.modelID, m.modelPath = filepath.Base(exp), exp
		}
	})
}

func (m *Manager) restart(ctx context.Context, name string, mutate func()) error {
	// Wait out an in-flight initialization so it cannot overwrite the reset.
	ch := m.sf.DoChan(initKey, func() (any, error) { return m.State(), nil })
	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return ErrStopped
	}
	p := m.proc
	m.proc = nil
	m.resolved = ""
	if mutate != nil {
		mutate()
	}
	m.mu.Unlock()
	if p != nil {
		p.terminate(m.cfg.StopGrace)
	}
	m.transition(StateNotInitialized, nil, false, name, nil)
	m.startBackground()
	return nil
}

// Shutdown stops the owned child (SIGTERM, then SIGKILL after the grace
// period), waits for background work and leaves the manager Stopped. It is
// idempotent and safe when nothing was ever started.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Joins an in-flight initialization, if any, and waits for it.
		_, _, _ = m.sf.Do(initKey, func() (any, error) { return StateStopped, ErrStopped })
		m.mu.Lock()
		p := m.proc
		m.proc = nil
		m.mu.Unlock()
		if p != nil {
			p.terminate(m.cfg.StopGrace)
		}
		m.wg.Wait()
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	m.transition(StateStopped, nil, false, "stopped", nil)
	m.client.CloseIdleConnections()
	return err
}
