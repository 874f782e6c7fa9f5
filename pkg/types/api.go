package types

// QueryRequest represents a generation request payload.
type QueryRequest struct {
	// Model reference: catalog id (namespace/name) or local directory path.
	// If empty, the server default is used.
	// example: mlx-community/Mistral-7B-Instruct-4bit
	Model string `json:"model,omitempty" example:"mlx-community/Mistral-7B-Instruct-4bit"`
	// Required prompt text.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Optional system prompt. When empty, a generic assistant persona is used.
	System string `json:"system,omitempty"`
	// Sampling temperature. Zero means the endpoint default.
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Maximum number of new tokens. Zero means auto-derived from the
	// memory headroom left after loading the model.
	// example: 2048
	MaxTokens int `json:"max_tokens,omitempty" example:"2048"`
}

// PullRequest asks the server to acquire a model from the hub.
type PullRequest struct {
	// Catalog id to acquire.
	// example: mlx-community/Mistral-7B-Instruct-4bit
	Model string `json:"model" example:"mlx-community/Mistral-7B-Instruct-4bit"`
	// If true, delete any cached copy and re-fetch every file.
	Force bool `json:"force,omitempty"`
}

// LoadRequest names a model for load/unload operations.
type LoadRequest struct {
	// Model reference: catalog id or local directory path.
	Model string `json:"model"`
}

// ModelsResponse wraps the list of locally available models.
type ModelsResponse struct {
	Models []ModelRecord `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not downloaded: mlx-community/Mistral-7B-Instruct-4bit
	Error string `json:"error" example:"model not downloaded"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
