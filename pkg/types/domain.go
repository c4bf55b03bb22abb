package types

// Model represents a model file discovered on disk.
type Model struct {
	// Stable identifier for the model (the file name).
	// example: qwen2.5-coder-1.5b-q4_k_m.gguf
	ID string `json:"id" example:"qwen2.5-coder-1.5b-q4_k_m.gguf"`
	// Absolute path to the model file on disk.
	// example: /home/user/project/models/qwen2.5-coder-1.5b-q4_k_m.gguf
	Path string `json:"path" example:"/home/user/project/models/qwen2.5-coder-1.5b-q4_k_m.gguf"`
	// File size in bytes.
	// example: 1117320736
	SizeBytes int64 `json:"size_bytes" example:"1117320736"`
	// Prompt template family selected for this model.
	// example: fim-deepseek
	Family string `json:"family,omitempty" example:"fim-deepseek"`
}
