package prompt

import (
	"fmt"
	"strings"
)

// Input is the raw material for an inline completion prompt.
type Input struct {
	// Context holds the document lines before the cursor line.
	Context string
	// Prefix is the cursor line up to the cursor.
	Prefix string
	// Suffix is the document text after the cursor (FIM families only).
	Suffix string
	// Semantic is optional workspace context prepended to the prompt.
	Semantic string
}

// before joins semantic context, preceding lines and the line prefix.
func (in Input) before() string {
	var b strings.Builder
	if s := strings.TrimSpace(in.Semantic); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	if in.Context != "" {
		b.WriteString(in.Context)
		if !strings.HasSuffix(in.Context, "\n") {
			b.WriteByte('\n')
		}
	}
	b.WriteString(in.Prefix)
	return b.String()
}

type templateFunc func(Input) string

var templates = map[Family]templateFunc{
	FamilyGeneric: func(in Input) string {
		return "Continue the following text verbatim. Output only the continuation.\n\n" + in.before()
	},
	FamilyFIMCodeLlama: func(in Input) string {
		return "<PRE> " + in.before() + " <SUF>" + in.Suffix + " <MID>"
	},
	FamilyFIMStarCoder: func(in Input) string {
		return "<fim_prefix>" + in.before() + "<fim_suffix>" + in.Suffix + "<fim_middle>"
	},
	FamilyFIMDeepSeek: func(in Input) string {
		return "<｜fim▁begin｜>" + in.before() + "<｜fim▁hole｜>" + in.Suffix + "<｜fim▁end｜>"
	},
}

// Build renders the inline completion prompt for p.
func Build(p Profile, in Input) string {
	tmpl, ok := templates[p.Family]
	if !ok {
		tmpl = templates[FamilyGeneric]
	}
	return tmpl(in)
}

// Task names a long-form operation.
type Task string

const (
	TaskExplain  Task = "explain"
	TaskRefactor Task = "refactor"
	TaskTests    Task = "tests"
)

var taskHeaders = map[Task]string{
	TaskExplain:  "Explain what the following code does. Be concise and precise.",
	TaskRefactor: "Rewrite the following code. Output only the rewritten code.",
	TaskTests:    "Write unit tests for the following code. Output only the test code.",
}

// InstructionStop ends long-form generations; it deliberately omits the
// blank-line stops used for inline suggestions.
var InstructionStop = []string{"### Instruction:", "</s>", "<|endoftext|>", "<｜end▁of▁sentence｜>", "<EOT>"}

// BuildInstruction renders a prompt for explain/refactor/tests. instruction
// is appended to the task header when non-empty (refactor goal).
func BuildInstruction(task Task, code, instruction, extra string) (string, error) {
	header, ok := taskHeaders[task]
	if !ok {
		return "", fmt.Errorf("unknown task %q", task)
	}
	var b strings.Builder
	b.WriteString("### Instruction:\n")
	b.WriteString(header)
	if s := strings.TrimSpace(instruction); s != "" {
		b.WriteString("\nGoal: ")
		b.WriteString(s)
	}
	if s := strings.TrimSpace(extra); s != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(s)
	}
	b.WriteString("\n\nCode:\n```\n")
	b.WriteString(strings.TrimRight(code, "\n"))
	b.WriteString("\n```\n\n### Response:\n")
	return b.String(), nil
}

// controlTokens lists every control marker any supported family may emit.
// Normalization strips all of them regardless of the active family.
var controlTokens = []string{
	"<PRE>", "<SUF>", "<MID>", "<EOT>",
	"<fim_prefix>", "<fim_suffix>", "<fim_middle>", "<fim_pad>", "<file_sep>", "<|endoftext|>",
	"<|fim_prefix|>", "<|fim_suffix|>", "<|fim_middle|>", "<|fim_pad|>", "<|file_sep|>", "<|im_end|>",
	"<｜fim▁begin｜>", "<｜fim▁hole｜>", "<｜fim▁end｜>", "<｜end▁of▁sentence｜>", "<｜EOT｜>",
	"<s>", "</s>",
}

// ControlTokens returns a copy of the known control tokens.
func ControlTokens() []string { return append([]string(nil), controlTokens...) }
