// Package job defines the backend job domain model and the poller that keeps
// an eventually consistent view of job status by periodically listing jobs.
package job

import (
	"encoding/json"
	"time"
)

type Status string

type Job struct {
	ID          string     `json:"id"`
	Destination string     `json:"destination,omitempty"`
	FileName    string     `json:"file_name,omitempty"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Active reports whether the backend is still working on the job.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusInProgress
}

// Terminal reports whether the job reached a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Interesting reports whether the job should remain in the tracked set:
// active jobs, plus failed ones so their error can be surfaced.
func (s Status) Interesting() bool {
	return s.Active() || s == StatusFailed
}

func (j *Job) ToJSON() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func FromJSON(data string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, err
	}

	return &j, nil
}
