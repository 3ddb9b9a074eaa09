package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusQueued.Active())
	assert.True(t, StatusInProgress.Active())
	assert.False(t, StatusCompleted.Active())
	assert.False(t, StatusFailed.Active())

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusQueued.Terminal())

	assert.True(t, StatusQueued.Interesting())
	assert.True(t, StatusInProgress.Interesting())
	assert.True(t, StatusFailed.Interesting())
	assert.False(t, StatusCompleted.Interesting())
}

func TestJobJSONRoundTrip(t *testing.T) {
	original := &Job{
		ID:          "job-1",
		Destination: "handbook",
		FileName:    "guide.pdf",
		Status:      StatusInProgress,
		CreatedAt:   time.Now().UTC(),
	}

	jsonStr, err := original.ToJSON()
	assert.NoError(t, err)
	assert.Contains(t, jsonStr, "job-1")
	assert.Contains(t, jsonStr, "in_progress")

	restored, err := FromJSON(jsonStr)
	assert.NoError(t, err)
	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.Status, restored.Status)
	assert.Equal(t, original.Destination, restored.Destination)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON("invalid json")

	assert.Error(t, err)
}
