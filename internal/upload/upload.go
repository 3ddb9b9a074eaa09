// Package upload implements the client-side upload pipeline: per-file
// records with live progress, pushed to the backend under a bounded
// concurrency limit.
package upload

import "time"

type Status string

const (
	StatusQueued    Status = "queued"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Finished reports whether the upload will make no further progress.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// File is a named binary payload handed to Enqueue.
type File struct {
	Name string
	Data []byte
}

// Upload is a client-side-only record of a file queued for submission to
// the backend. Completed uploads are superseded by the Job they spawned and
// dropped from the tracked set; failed ones stay until cleared.
type Upload struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	Size        int64     `json:"size"`
	Destination string    `json:"destination"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	Error       string    `json:"error,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`

	order uint64
}
