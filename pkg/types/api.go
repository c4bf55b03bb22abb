package types

// CompleteRequest asks for an inline completion at a cursor position.
type CompleteRequest struct {
	// Full document text (or a window of it) as seen by the editor.
	Text string `json:"text"`
	// Zero-based cursor line within Text.
	// example: 12
	Line int `json:"line" example:"12"`
	// Zero-based cursor column (in characters) within the line.
	// example: 17
	Character int `json:"character" example:"17"`
	// Trigger kind: "automatic" (typing) or "explicit" (user invoked).
	// example: automatic
	Trigger string `json:"trigger,omitempty" example:"automatic"`
	// Optional workspace-relative path, forwarded to the context provider.
	// example: src/math.js
	Path string `json:"path,omitempty" example:"src/math.js"`
}

// CompleteResponse carries the suggestion for a CompleteRequest.
type CompleteResponse struct {
	// Completion text to insert at the cursor (possibly empty).
	// example: return n * factorial(n - 1);
	Completion string `json:"completion" example:"return n * factorial(n - 1);"`
	// Where the text came from: backend, cached or fallback.
	// example: backend
	Source string `json:"source" example:"backend"`
	// End-to-end latency in milliseconds.
	// example: 142
	LatencyMS int64 `json:"latency_ms" example:"142"`
	// True when the suppression policy decided not to request a completion.
	Skipped bool `json:"skipped,omitempty"`
}

// ExplainRequest asks for an explanation of a code fragment.
type ExplainRequest struct {
	// Code to explain.
	Code string `json:"code"`
	// Optional surrounding context.
	Context string `json:"context,omitempty"`
}

// RefactorRequest asks for a rewrite of a code fragment.
type RefactorRequest struct {
	// Code to rewrite.
	Code string `json:"code"`
	// What the rewrite should achieve.
	// example: extract the loop body into a helper
	Instruction string `json:"instruction" example:"extract the loop body into a helper"`
	// Optional surrounding context.
	Context string `json:"context,omitempty"`
}

// TestsRequest asks for unit tests covering a code fragment.
type TestsRequest struct {
	// Code under test.
	Code string `json:"code"`
	// Optional surrounding context.
	Context string `json:"context,omitempty"`
}

// TextResponse is returned by explain, refactor and tests.
type TextResponse struct {
	// Generated text.
	Text string `json:"text"`
}

// SwitchModelRequest selects a different model.
type SwitchModelRequest struct {
	// Model identifier or path.
	// example: deepseek-coder-1.3b-base.Q4_K_M.gguf
	ID string `json:"id" example:"deepseek-coder-1.3b-base.Q4_K_M.gguf"`
}

// ModelsResponse wraps the list of models returned by GET /v1/models.
type ModelsResponse struct {
	// List of model files found in the models directory.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	// True when the backend is healthy and completions hit the model.
	// example: true
	Ready bool `json:"ready" example:"true"`
	// Active model identifier.
	// example: deepseek-coder-1.3b-base.Q4_K_M.gguf
	ActiveModel string `json:"active_model" example:"deepseek-coder-1.3b-base.Q4_K_M.gguf"`
	// Prompt template family of the active model.
	// example: fim-deepseek
	Family string `json:"family" example:"fim-deepseek"`
	// Backend lifecycle state.
	// example: healthy
	State string `json:"state" example:"healthy"`
	// Last backend error, meant for display to the user.
	LastError string `json:"last_error,omitempty"`
	// Base URL of the inference backend.
	// example: http://127.0.0.1:8080
	BackendURL string `json:"backend_url" example:"http://127.0.0.1:8080"`
	// PID of the owned backend process (0 when externally managed).
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Whether the backend offloads layers to the GPU.
	// example: true
	GPUOffload bool `json:"gpu_offload" example:"true"`
	// Number of cached completions.
	// example: 17
	CacheEntries int `json:"cache_entries" example:"17"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// EventMessage is one line of the GET /v1/events NDJSON stream.
type EventMessage struct {
	// Event name, e.g. discovery_start, spawn_ready, spawn_exit.
	// example: spawn_ready
	Name string `json:"name" example:"spawn_ready"`
	// Backend state after the event.
	// example: healthy
	State string `json:"state" example:"healthy"`
	// Model the event refers to.
	Model string `json:"model,omitempty"`
	// Unix milliseconds.
	// example: 1700000000000
	TimeUnixMS int64 `json:"time_unix_ms" example:"1700000000000"`
	// Optional event fields.
	Fields map[string]any `json:"fields,omitempty"`
}
