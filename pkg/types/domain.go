package types

import "time"

// ModelRecord describes a model that is present in the local store.
// A record exists iff the model directory contains the descriptor file.
type ModelRecord struct {
	// Catalog id reconstructed from the directory name.
	// example: mlx-community/Mistral-7B-Instruct-4bit
	ID string `json:"id" example:"mlx-community/Mistral-7B-Instruct-4bit"`
	// Absolute path to the model directory on disk.
	// example: /home/user/.llmd/models/mlx-community_Mistral-7B-Instruct-4bit
	Path string `json:"path" example:"/home/user/.llmd/models/mlx-community_Mistral-7B-Instruct-4bit"`
	// Total size of the model directory in bytes.
	// example: 4026531840
	SizeBytes int64 `json:"size_bytes" example:"4026531840"`
	// When the model directory was created (acquisition time).
	AcquiredAt time.Time `json:"acquired_at"`
}

// QueryResult is returned by a completed query.
type QueryResult struct {
	// Generated text.
	Response string `json:"response"`
	// Resolved catalog id, or the local path for path references.
	// example: mlx-community/Mistral-7B-Instruct-4bit
	ModelID string `json:"model_id" example:"mlx-community/Mistral-7B-Instruct-4bit"`
	// Resolved on-disk directory the model was served from.
	ModelPath string `json:"model_path"`
	// Approximate number of generated tokens (len(response)/4, not a
	// tokenizer count).
	// example: 128
	ApproxTokens int `json:"approx_tokens" example:"128"`
	// Wall-clock generation time in seconds.
	// example: 2.41
	DurationSeconds float64 `json:"duration_seconds" example:"2.41"`
}
