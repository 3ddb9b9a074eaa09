package snapshot

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ldelacroix/conveyor/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	s, err := NewStore(mr.Addr())
	require.NoError(t, err)

	return s, mr
}

func TestNewStore_InvalidAddress(t *testing.T) {
	_, err := NewStore("invalid:99999")
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = s.Close() }()

	jobs := []job.Job{
		{ID: "job-1", Status: job.StatusQueued, Destination: "handbook"},
		{ID: "job-2", Status: job.StatusFailed, Error: "parse error"},
	}

	err := s.Save(jobs)
	require.NoError(t, err)

	loaded, capturedAt, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "job-1", loaded[0].ID)
	assert.Equal(t, job.StatusFailed, loaded[1].Status)
	assert.WithinDuration(t, time.Now(), capturedAt, 5*time.Second)
}

func TestLoadMissingSnapshot(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = s.Close() }()

	jobs, capturedAt, err := s.Load()

	require.NoError(t, err)
	assert.Nil(t, jobs)
	assert.True(t, capturedAt.IsZero())
}

func TestSaveReplacesPrevious(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Save([]job.Job{{ID: "old", Status: job.StatusQueued}}))
	require.NoError(t, s.Save([]job.Job{{ID: "new", Status: job.StatusInProgress}}))

	loaded, _, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].ID)
}

func TestClear(t *testing.T) {
	s, mr := setupTestStore(t)
	defer mr.Close()
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Save([]job.Job{{ID: "job-1", Status: job.StatusQueued}}))
	require.NoError(t, s.Clear())

	jobs, _, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, jobs)
}
