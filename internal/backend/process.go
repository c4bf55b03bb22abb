package backend

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// process is one spawned llama-server child.
type process struct {
	cmd  *exec.Cmd
	pid  int
	tail *tailBuffer
	// done is closed once Wait has returned; err is valid afterwards.
	done chan struct{}
	err  error
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// launchArgs builds the llama-server command line.
func launchArgs(cfg Config, modelPath string) []string {
	args := []string{
		"-m", modelPath,
		"--host", cfg.Host,
		"--port", strconv.Itoa(cfg.Port),
	}
	if cfg.ContextSize > 0 {
		args = append(args, "-c", strconv.Itoa(cfg.ContextSize))
	}
	if cfg.GPULayers > 0 {
		args = append(args, "-ngl", strconv.Itoa(cfg.GPULayers))
	}
	if cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(cfg.Threads))
	}
	return append(args, cfg.ExtraArgs...)
}

// startProcess launches bin. Output goes to the debug log and a bounded tail;
// it is never parsed.
func startProcess(bin string, args []string, modelPath string, log zerolog.Logger) (*process, error) {
	tail := newTailBuffer(tailBytes)
	cmd := exec.Command(bin, args...)
	// Run from the model directory so relative assets resolve.
	cmd.Dir = filepath.Dir(modelPath)
	cmd.Stdout = &procWriter{log: log, stream: "stdout", tail: tail}
	cmd.Stderr = &procWriter{log: log, stream: "stderr", tail: tail}
	// Do not hang in Wait if a grandchild keeps the output pipes open.
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start llama-server: %w", err)
	}
	return &process{cmd: cmd, pid: cmd.Process.Pid, tail: tail, done: make(chan struct{})}, nil
}

// wait blocks until the child exits and closes done.
func (p *process) wait() {
	p.err = p.cmd.Wait()
	close(p.done)
}

// terminate sends SIGTERM, then kills after grace. It returns once the child
// has been reaped.
func (p *process) terminate(grace time.Duration) {
	if p.exited() {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-p.done:
	case <-t.C:
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer { return &tailBuffer{max: max} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}

// procWriter logs complete lines of child output at debug level and copies
// everything into the shared tail.
type procWriter struct {
	log    zerolog.Logger
	stream string
	tail   *tailBuffer
	buf    []byte
}

func (w *procWriter) Write(p []byte) (int, error) {
	_, _ = w.tail.Write(p)
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		if line := bytes.TrimSpace(w.buf[:idx]); len(line) > 0 {
			w.log.Debug().Str("stream", w.stream).Msg(string(line))
		}
		w.buf = w.buf[idx+1:]
	}
	// Bound partial lines from a child that never writes a newline.
	if len(w.buf) > tailBytes {
		w.buf = w.buf[len(w.buf)-tailBytes:]
	}
	return len(p), nil
}
