package engine

import (
	"context"
	"errors"
	"fmt"

	"sidekick/internal/backend"
	"sidekick/internal/normalize"
	"sidekick/internal/prompt"
)

// UnavailableMessage is returned by the long-form operations while the
// backend is not serving.
const UnavailableMessage = "The local model is not available right now. Check the backend status, then retry or switch models."

// ErrEmptyResponse means the backend answered with nothing usable.
var ErrEmptyResponse = errors.New("backend returned an empty response")

// Explain describes code. extra is optional surrounding context.
func (e *Engine) Explain(ctx context.Context, code, extra string) (string, error) {
	return e.instruct(ctx, prompt.TaskExplain, code, "", extra)
}

// Refactor rewrites code according to instruction.
func (e *Engine) Refactor(ctx context.Context, code, instruction, extra string) (string, error) {
	return e.instruct(ctx, prompt.TaskRefactor, code, instruction, extra)
}

// GenerateTests writes tests for code.
func (e *Engine) GenerateTests(ctx context.Context, code, extra string) (string, error) {
	return e.instruct(ctx, prompt.TaskTests, code, "", extra)
}

// instruct runs a long-form operation. Unlike Complete, failures are
// reported: the user asked for this explicitly.
func (e *Engine) instruct(ctx context.Context, task prompt.Task, code, instruction, extra string) (string, error) {
	if st := e.backend.State(); st != backend.StateHealthy {
		e.backend.Recover()
		operationsTotal.WithLabelValues(string(task), "unavailable").Inc()
		return e.unavailable(), nil
	}
	san := e.opts.Sanitizer
	p, err := prompt.BuildInstruction(task, san.Sanitize(code), san.Sanitize(instruction), san.Sanitize(extra))
	if err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.opts.LongTimeout)
	defer cancel()
	resp, err := e.completer.Complete(callCtx, backend.CompletionRequest{
		Prompt:        p,
		NPredict:      e.opts.LongMaxTokens,
		Temperature:   e.opts.Temperature,
		TopK:          40,
		TopP:          0.95,
		RepeatPenalty: 1.1,
		Stop:          prompt.InstructionStop,
		CachePrompt:   true,
	})
	if err != nil {
		operationsTotal.WithLabelValues(string(task), "error").Inc()
		if e.backend.ReportFailure(err) {
			e.backend.Recover()
		}
		return "", fmt.Errorf("%s: %w", task, err)
	}
	out := normalize.Clean(resp.Content)
	if out == "" {
		operationsTotal.WithLabelValues(string(task), "empty").Inc()
		return "", fmt.Errorf("%s: %w", task, ErrEmptyResponse)
	}
	operationsTotal.WithLabelValues(string(task), "ok").Inc()
	return out, nil
}

func (e *Engine) unavailable() string {
	if err := e.backend.LastError(); err != nil {
		return UnavailableMessage + " (" + err.Error() + ")"
	}
	return UnavailableMessage
}
