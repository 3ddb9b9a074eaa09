// Package snapshot persists the most recent successful job reconcile to
// Redis so a restarted session can render a stale jobs panel immediately,
// before the first live poll completes.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ldelacroix/conveyor/internal/job"
	"github.com/redis/go-redis/v9"
)

const snapshotKey = "conveyor:jobs_snapshot"

type Store struct {
	client *redis.Client
	ctx    context.Context
}

type document struct {
	Jobs       []job.Job `json:"jobs"`
	CapturedAt time.Time `json:"captured_at"`
}

func NewStore(redisAddr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client: client,
		ctx:    ctx,
	}, nil
}

// Save replaces the stored snapshot with the given job list, stamped with
// the current time.
func (s *Store) Save(jobs []job.Job) error {
	doc := document{
		Jobs:       jobs,
		CapturedAt: time.Now(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	return s.client.Set(s.ctx, snapshotKey, data, 0).Err()
}

// Load returns the stored jobs and when they were captured. A missing
// snapshot is not an error; it returns a nil slice and a zero time.
func (s *Store) Load() ([]job.Job, time.Time, error) {
	data, err := s.client.Get(s.ctx, snapshotKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	var doc document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, time.Time{}, err
	}

	return doc.Jobs, doc.CapturedAt, nil
}

func (s *Store) Clear() error {
	return s.client.Del(s.ctx, snapshotKey).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
