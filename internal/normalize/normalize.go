// Package normalize turns raw backend output into a single inline suggestion.
package normalize

import (
	"regexp"
	"strings"

	"sidekick/internal/prompt"
)

// MaxLen is the longest inline suggestion, in runes.
const MaxLen = 50

// breakChars are the preferred truncation points for long suggestions.
const breakChars = ";{)],"

var controlTokenRE = func() *regexp.Regexp {
	toks := prompt.ControlTokens()
	quoted := make([]string, len(toks))
	for i, t := range toks {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(strings.Join(quoted, "|"))
}()

// StripControlTokens removes every known control token of every family.
func StripControlTokens(s string) string {
	return controlTokenRE.ReplaceAllString(s, "")
}

// Clean strips control tokens and surrounding whitespace without truncating.
// Long-form answers (explain, refactor, tests) use it.
func Clean(raw string) string {
	return strings.TrimSpace(StripControlTokens(raw))
}

// Normalize reduces raw generated text to one line of at most MaxLen runes.
// Control tokens are removed first so they never count toward the length. An
// exact repeat of prefix at the start of the output is dropped.
func Normalize(raw, prefix string) string {
	s := StripControlTokens(raw)
	if prefix != "" && strings.HasPrefix(s, prefix) {
		s = s[len(prefix):]
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	return truncate(s)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxLen {
		return s
	}
	for i := 0; i < MaxLen; i++ {
		if strings.ContainsRune(breakChars, r[i]) {
			return string(r[:i+1])
		}
	}
	return string(r[:MaxLen])
}
