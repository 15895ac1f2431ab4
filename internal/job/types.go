// Package job provides the job lifecycle service sitting between the HTTP
// API and a runner backend.
package job

import "jobrunner/internal/watch"

// Request represents a request to submit a new job.
type Request struct {
	Name       string          `json:"name"`
	WorkingDir string          `json:"workingDir"`
	Command    string          `json:"command"`
	Args       []string        `json:"args,omitempty"`
	Callback   *watch.Callback `json:"callback,omitempty"`
}

// Response represents the response when a job is submitted.
type Response struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "accepted"
}

// Status represents the current status of a job.
type Status struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Running bool   `json:"running"`
	LogFile string `json:"logFile,omitempty"`
	ErrFile string `json:"errFile,omitempty"`
}

// ListResponse represents the response for listing jobs.
type ListResponse struct {
	Jobs []Status `json:"jobs"`
}

// State constants
const (
	StateAccepted = "accepted"
)
