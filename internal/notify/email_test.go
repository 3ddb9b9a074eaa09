package notify

import (
	"testing"

	"github.com/ldelacroix/conveyor/internal/job"
	"github.com/stretchr/testify/assert"
)

func TestFailureSubject(t *testing.T) {
	withFile := job.Job{ID: "job-1", FileName: "guide.pdf", Status: job.StatusFailed}
	assert.Equal(t, `Ingestion of "guide.pdf" failed`, failureSubject(withFile))

	withoutFile := job.Job{ID: "job-1", Status: job.StatusFailed}
	assert.Equal(t, "Job job-1 failed", failureSubject(withoutFile))
}

func TestFailureBody(t *testing.T) {
	j := job.Job{
		ID:          "job-1",
		Destination: "handbook",
		FileName:    "guide.pdf",
		Status:      job.StatusFailed,
		Error:       "unsupported encoding",
	}

	body := failureBody(j)

	assert.Contains(t, body, "job-1")
	assert.Contains(t, body, "failed")
	assert.Contains(t, body, "Collection: handbook")
	assert.Contains(t, body, "File: guide.pdf")
	assert.Contains(t, body, "Error: unsupported encoding")
}

func TestFailureBodyOmitsEmptyFields(t *testing.T) {
	body := failureBody(job.Job{ID: "job-1", Status: job.StatusFailed})

	assert.NotContains(t, body, "Collection:")
	assert.NotContains(t, body, "File:")
	assert.NotContains(t, body, "Error:")
}

func TestNewEmailNotifier(t *testing.T) {
	n := NewEmailNotifier("key", "Conveyor", "noreply@example.com", "admin@example.com")

	assert.NotNil(t, n)
	assert.Equal(t, "noreply@example.com", n.from.Address)
	assert.Equal(t, "admin@example.com", n.to.Address)
}
