package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	var model, host, port string
	var ctxSize, ngl, threads int
	var content string
	var readyAfter, crashAfter, completionDelay time.Duration
	var failStart, ignoreTerm bool
	// Accept the subset of llama-server flags the manager passes.
	flag.StringVar(&model, "m", "", "model path")
	flag.StringVar(&host, "host", "127.0.0.1", "host")
	flag.StringVar(&port, "port", "0", "port")
	flag.IntVar(&ctxSize, "c", 0, "context size")
	flag.IntVar(&ngl, "ngl", 0, "gpu layers")
	flag.IntVar(&threads, "t", 0, "threads")
	// Test knobs.
	flag.StringVar(&content, "fake-content", "return n * factorial(n - 1);\nfoo();", "completion content")
	flag.DurationVar(&readyAfter, "fake-ready-after", 0, "report 503 on /health until this elapses")
	flag.DurationVar(&crashAfter, "fake-crash-after", 0, "exit(2) this long after start")
	flag.DurationVar(&completionDelay, "fake-completion-delay", 0, "delay before answering /completion")
	flag.BoolVar(&failStart, "fake-fail-start", false, "exit(1) immediately")
	flag.BoolVar(&ignoreTerm, "fake-ignore-term", false, "ignore SIGTERM")
	flag.Parse()

	if failStart {
		fmt.Fprintln(os.Stderr, "error: failed to load model", model)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "fake llama-server model=%s ctx=%d ngl=%d threads=%d\n", model, ctxSize, ngl, threads)

	start := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if time.Since(start) < readyAfter {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"Loading model"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if completionDelay > 0 {
			select {
			case <-time.After(completionDelay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":          content,
			"tokens_predicted": 7,
			"tokens_evaluated": len(req.Prompt) / 4,
			"stop_type":        "word",
		})
	})

	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	if crashAfter > 0 {
		go func() {
			time.Sleep(crashAfter)
			fmt.Fprintln(os.Stderr, "fatal: simulated crash")
			os.Exit(2)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	if ignoreTerm {
		signal.Ignore(syscall.SIGTERM)
		signal.Notify(sigCh, syscall.SIGINT)
	} else {
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	}
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
