package models

import "time"

// Job kinds.
const (
	JobBatch = "batch"
	JobPages = "pages"
)

// Job statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// JobResponse is the immediate 202 response for an async job.
type JobResponse struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Total  int    `json:"total,omitempty"`
}

// Job is the state of an async job as returned by GET.
type Job struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	Status    string           `json:"status"`
	Completed int              `json:"completed"`
	Total     int              `json:"total,omitempty"`
	Results   []*FetchResponse `json:"results,omitempty"`
	Pages     []PageResult     `json:"pages,omitempty"`
	Error     *ErrorDetail     `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
