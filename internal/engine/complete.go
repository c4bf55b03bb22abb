package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"sidekick/internal/backend"
	"sidekick/internal/cache"
	"sidekick/internal/fallback"
	"sidekick/internal/normalize"
	"sidekick/internal/prompt"
	"sidekick/internal/trigger"
)

// Source tells where a completion came from.
type Source string

const (
	SourceBackend  Source = "backend"
	SourceCached   Source = "cached"
	SourceFallback Source = "fallback"
	SourceSkipped  Source = "skipped"
)

// Request is one inline completion request. Cancellation travels in the
// context passed to Complete.
type Request struct {
	ID       string
	Context  string
	Prefix   string
	Suffix   string
	Semantic string
	// MaxTokens overrides the inline token budget when positive.
	MaxTokens int
}

// text is the combined context and line prefix the cache key and the
// fallback rules are computed from.
func (r Request) text() string {
	if r.Context == "" {
		return r.Prefix
	}
	return r.Context + "\n" + r.Prefix
}

// Result is the outcome of a completion request.
type Result struct {
	Text       string
	Source     Source
	Latency    time.Duration
	Skipped    bool
	SkipReason string
}

// Complete returns an inline suggestion. It never returns an error: any
// backend problem degrades to the fallback heuristics.
func (e *Engine) Complete(ctx context.Context, req Request) Result {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	log := e.log.With().Str("request_id", req.ID).Logger()
	full := req.text()
	key := cache.Fingerprint(full)

	profile, gen := e.snapshot()

	if v, ok := e.cache.Get(key); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return e.finish(start, v, SourceCached)
	}
	cacheLookups.WithLabelValues("miss").Inc()

	if st := e.backend.State(); st != backend.StateHealthy {
		// Never wait for startup here; a crashed backend gets restarted in
		// the background.
		e.backend.Recover()
		log.Debug().Str("state", st.String()).Msg("backend not healthy; using fallback")
		return e.fallback(start, full)
	}

	in := prompt.Input{
		Context:  e.opts.Sanitizer.Sanitize(req.Context),
		Prefix:   e.opts.Sanitizer.Sanitize(req.Prefix),
		Suffix:   e.opts.Sanitizer.Sanitize(req.Suffix),
		Semantic: e.opts.Sanitizer.Sanitize(req.Semantic),
	}
	maxTokens := e.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	resp, err := e.completer.Complete(callCtx, backend.CompletionRequest{
		Prompt:        prompt.Build(profile, in),
		NPredict:      maxTokens,
		Temperature:   e.opts.Temperature,
		TopK:          40,
		TopP:          0.9,
		RepeatPenalty: 1.1,
		Stop:          profile.Stop,
		CachePrompt:   true,
	})
	cancel()
	if err != nil {
		backendErrors.WithLabelValues(errorKind(err)).Inc()
		log.Debug().Err(err).Msg("completion request failed; using fallback")
		if e.backend.ReportFailure(err) {
			e.backend.Recover()
		}
		return e.fallback(start, full)
	}

	out := normalize.Normalize(resp.Content, in.Prefix)
	if out == "" {
		log.Debug().Msg("empty completion after normalization; using fallback")
		return e.fallback(start, full)
	}
	// A superseded request must not touch the cache.
	if ctx.Err() != nil {
		backendErrors.WithLabelValues("cancelled").Inc()
		return e.fallback(start, full)
	}
	// A model switch mid-call makes out stale for the new profile.
	if !e.store(gen, key, out) {
		backendErrors.WithLabelValues("superseded").Inc()
		return e.fallback(start, full)
	}
	log.Debug().Int("tokens", resp.TokensPredicted).Str("stop", resp.StopType).Msg("completion generated")
	return e.finish(start, out, SourceBackend)
}

func (e *Engine) fallback(start time.Time, text string) Result {
	return e.finish(start, fallback.Complete(text), SourceFallback)
}

func (e *Engine) finish(start time.Time, text string, src Source) Result {
	d := time.Since(start)
	completionsTotal.WithLabelValues(string(src)).Inc()
	completionLatency.WithLabelValues(string(src)).Observe(d.Seconds())
	return Result{Text: text, Source: src, Latency: d}
}

func errorKind(err error) string {
	switch {
	case backend.IsCancelled(err):
		return "cancelled"
	case backend.IsMalformedResponse(err):
		return "malformed_response"
	case backend.IsRequestFailed(err):
		return "request_failed"
	default:
		return "other"
	}
}

// Document is an editor buffer with a cursor. Line and Character are
// zero-based; Character counts runes.
type Document struct {
	Path      string
	Text      string
	Line      int
	Character int
}

// Suggest applies the trigger policy, builds a bounded window around the
// cursor and completes it.
func (e *Engine) Suggest(ctx context.Context, doc Document, kind trigger.Kind) Result {
	start := time.Now()
	req := e.window(doc)
	if reason := trigger.Reason(trigger.Document{LinePrefix: req.Prefix}, kind); reason != "" {
		completionSkips.WithLabelValues(reason).Inc()
		return Result{Source: SourceSkipped, Skipped: true, SkipReason: reason, Latency: time.Since(start)}
	}
	if cp := e.opts.ContextProvider; cp != nil {
		loc := Location{Path: doc.Path, Line: doc.Line, Character: doc.Character}
		sem, err := cp.RelevantContext(ctx, loc, e.opts.ContextBudget)
		if err != nil {
			e.log.Debug().Err(err).Msg("semantic context unavailable")
		} else {
			req.Semantic = sem
		}
	}
	return e.Complete(ctx, req)
}

// window cuts the lines around the cursor into a Request.
func (e *Engine) window(doc Document) Request {
	lines := strings.Split(doc.Text, "\n")
	line := clamp(doc.Line, 0, len(lines)-1)
	cur := []rune(lines[line])
	ch := clamp(doc.Character, 0, len(cur))

	from := max(0, line-e.opts.LinesBefore)
	to := min(len(lines), line+1+e.opts.LinesAfter)

	suffix := string(cur[ch:])
	if line+1 < to {
		suffix += "\n" + strings.Join(lines[line+1:to], "\n")
	}
	return Request{
		Context: strings.Join(lines[from:line], "\n"),
		Prefix:  string(cur[:ch]),
		Suffix:  suffix,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
