// Package trigger decides whether an inline completion should be attempted.
//
// The checks are cheap heuristics, not a parser. They aim to avoid wasted
// backend calls while the user is typing a comment or inside a string.
package trigger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind tells whether the user asked for a suggestion or the editor did.
type Kind int

const (
	Automatic Kind = iota
	Explicit
)

func (k Kind) String() string {
	if k == Explicit {
		return "explicit"
	}
	return "automatic"
}

// ParseKind maps "explicit"/"invoke" to Explicit; anything else is Automatic.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "explicit", "invoke", "manual":
		return Explicit
	}
	return Automatic
}

// Document is the cursor line as seen by the policy.
type Document struct {
	// LinePrefix is the text of the cursor line before the cursor.
	LinePrefix string
}

// MinPrefix is the shortest trimmed line prefix that may trigger.
const MinPrefix = 3

// CommentOpeners marks line prefixes that are inside a comment.
var CommentOpeners = []string{"//", "/*", "<!--", "# "}

var quoteChars = []rune{'"', '\'', '`'}

// Reason explains why a request is skipped; empty means do not skip.
func Reason(doc Document, kind Kind) string {
	p := doc.LinePrefix
	if utf8.RuneCountInString(strings.TrimSpace(p)) < MinPrefix {
		return "short-prefix"
	}
	for _, o := range CommentOpeners {
		if strings.Contains(p, o) {
			return "comment"
		}
	}
	for _, q := range quoteChars {
		if unescapedCount(p, q)%2 == 1 {
			return "string"
		}
	}
	if kind == Automatic {
		last, _ := utf8.DecodeLastRuneInString(p)
		if unicode.IsSpace(last) {
			return "trailing-space"
		}
	}
	return ""
}

// ShouldSkip reports whether completion should be suppressed.
func ShouldSkip(doc Document, kind Kind) bool {
	return Reason(doc, kind) != ""
}

func unescapedCount(s string, q rune) int {
	n := 0
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == q:
			n++
		}
	}
	return n
}
