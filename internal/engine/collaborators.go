package engine

import "context"

// Sanitizer scrubs text before it is sent to the backend.
type Sanitizer interface {
	Sanitize(text string) string
}

// SanitizerFunc adapts a function to Sanitizer.
type SanitizerFunc func(string) string

func (f SanitizerFunc) Sanitize(s string) string { return f(s) }

// IdentitySanitizer passes text through unchanged.
type IdentitySanitizer struct{}

func (IdentitySanitizer) Sanitize(s string) string { return s }

// Location identifies the cursor for context lookups.
type Location struct {
	Path      string
	Line      int
	Character int
}

// ContextProvider returns opaque workspace context relevant to a location,
// within roughly budget tokens.
type ContextProvider interface {
	RelevantContext(ctx context.Context, loc Location, budget int) (string, error)
}
