package domain

import "time"

const (
	FileStatusSucceeded = "succeeded"
	FileStatusFailed    = "failed"
)

// FileResult is the outcome of one pipeline invocation.
type FileResult struct {
	RunID     string        `json:"run_id"`
	Source    string        `json:"source"`
	Output    string        `json:"output,omitempty"`
	Status    string        `json:"status"`
	Stage     string        `json:"stage"`
	Error     string        `json:"error,omitempty"`
	Width     int           `json:"width,omitempty"`
	Height    int           `json:"height,omitempty"`
	Bytes     int64         `json:"bytes,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

type RunSummary struct {
	RunID      string    `json:"run_id"`
	Input      string    `json:"input"`
	OutputDir  string    `json:"output_dir"`
	Discovered int       `json:"discovered"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
