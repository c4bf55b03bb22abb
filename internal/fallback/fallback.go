// Package fallback produces cheap syntactic completions when the backend can
// not answer. Rules are evaluated in order on the last line of the input; the
// first rule that fires wins.
package fallback

import (
	"strings"
)

// Rule inspects the last line of a document and returns a completion.
type Rule struct {
	Name  string
	Apply func(line string) (string, bool)
}

// Rules is the ordered rule table.
var Rules = []Rule{
	{Name: "close-brackets", Apply: closeBrackets},
	{Name: "close-quote", Apply: closeQuote},
	{Name: "assignment-space", Apply: assignmentSpace},
	{Name: "statement-newline", Apply: statementNewline},
}

// Complete returns the first matching rule's completion for text, or "".
func Complete(text string) string {
	s, _ := Explain(text)
	return s
}

// Explain is Complete that also names the rule that fired.
func Explain(text string) (string, string) {
	line := lastLine(text)
	for _, r := range Rules {
		if s, ok := r.Apply(line); ok {
			return s, r.Name
		}
	}
	return "", ""
}

func lastLine(text string) string {
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		return text[i+1:]
	}
	return text
}

var closers = map[rune]rune{'(': ')', '[': ']', '{': '}'}

// closeBrackets closes brackets left open on the line, innermost first.
// Brackets inside string literals are ignored. A string still open at the
// end of the line is closed before the brackets.
func closeBrackets(line string) (string, bool) {
	var stack []rune
	var quote rune
	escaped := false
	for _, r := range line {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'', '`':
			quote = r
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if n := len(stack); n > 0 && closers[stack[n-1]] == r {
				stack = stack[:n-1]
			}
		}
	}
	if len(stack) == 0 {
		return "", false
	}
	var b strings.Builder
	if quote != 0 {
		b.WriteRune(quote)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteRune(closers[stack[i]])
	}
	return b.String(), true
}

// closeQuote closes the first quote kind with an odd unescaped count.
func closeQuote(line string) (string, bool) {
	for _, q := range []rune{'"', '\'', '`'} {
		if unescapedCount(line, q)%2 == 1 {
			return string(q), true
		}
	}
	return "", false
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

// assignmentSpace adds the space after a trailing assignment operator.
// Comparisons (==, !=, <=, >=) do not count.
func assignmentSpace(line string) (string, bool) {
	if !strings.HasSuffix(line, "=") {
		return "", false
	}
	head := strings.TrimSuffix(line, "=")
	if head == "" || strings.TrimSpace(head) == "" {
		return "", false
	}
	switch {
	case strings.HasSuffix(head, "<<"), strings.HasSuffix(head, ">>"):
		return " ", true
	case strings.HasSuffix(head, "="), strings.HasSuffix(head, "!"),
		strings.HasSuffix(head, "<"), strings.HasSuffix(head, ">"):
		return "", false
	}
	return " ", true
}

// statementNewline starts a new line at the current indentation after a
// statement terminator.
func statementNewline(line string) (string, bool) {
	if !strings.HasSuffix(strings.TrimRight(line, " \t"), ";") {
		return "", false
	}
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	return "\n" + indent, true
}
