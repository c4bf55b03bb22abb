// Package prompt selects a model-family prompt template and renders prompts
// for the inference backend. Family detection is a substring match on the
// model identifier; it is an approximation and lives in a single table so new
// families can be added without touching callers.
package prompt

import "strings"

// Family identifies a prompt-template convention.
type Family string

const (
	FamilyGeneric      Family = "generic"
	FamilyFIMCodeLlama Family = "fim-codellama"
	FamilyFIMStarCoder Family = "fim-starcoder"
	FamilyFIMDeepSeek  Family = "fim-deepseek"
)

// IsFIM reports whether the family uses fill-in-middle control tokens.
func (f Family) IsFIM() bool { return f != FamilyGeneric && f != "" }

// Profile describes how to talk to the active model. Treat it as immutable;
// switching models produces a new Profile.
type Profile struct {
	ID          string
	Family      Family
	Stop        []string
	ContextSize int
	GPUOffload  bool
}

// WithOverrides returns a copy of p with a non-zero context size applied and
// the GPU offload flag set.
func (p Profile) WithOverrides(contextSize int, gpuOffload bool) Profile {
	if contextSize > 0 {
		p.ContextSize = contextSize
	}
	p.GPUOffload = gpuOffload
	p.Stop = append([]string(nil), p.Stop...)
	return p
}

type familyRule struct {
	patterns    []string
	family      Family
	contextSize int
}

// familyRules is matched in order against the lower-cased model id.
var familyRules = []familyRule{
	{patterns: []string{"codellama", "code-llama"}, family: FamilyFIMCodeLlama, contextSize: 4096},
	{patterns: []string{"starcoder", "santacoder", "stable-code", "refact"}, family: FamilyFIMStarCoder, contextSize: 8192},
	{patterns: []string{"deepseek-coder", "deepseek"}, family: FamilyFIMDeepSeek, contextSize: 16384},
}

const defaultContextSize = 2048

// stopSets holds the per-family stop sequences sent with inline requests.
var stopSets = map[Family][]string{
	FamilyGeneric:      {"\n\n", "```", "</s>", "<|endoftext|>"},
	FamilyFIMCodeLlama: {"<EOT>", "</s>", "\n\n"},
	FamilyFIMStarCoder: {"<|endoftext|>", "<fim_prefix>", "<file_sep>", "\n\n"},
	FamilyFIMDeepSeek:  {"<｜end▁of▁sentence｜>", "<｜fim▁begin｜>", "<｜EOT｜>", "\n\n"},
}

// Select returns the profile for a model identifier. Unknown identifiers get
// the generic continue-verbatim family.
func Select(modelID string) Profile {
	id := strings.ToLower(modelID)
	fam, ctxSize := FamilyGeneric, defaultContextSize
	for _, r := range familyRules {
		if containsAny(id, r.patterns) {
			fam, ctxSize = r.family, r.contextSize
			break
		}
	}
	return Profile{
		ID:          modelID,
		Family:      fam,
		Stop:        append([]string(nil), stopSets[fam]...),
		ContextSize: ctxSize,
		GPUOffload:  true,
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
