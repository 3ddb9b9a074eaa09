package upload

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ldelacroix/conveyor/internal/job"
	"github.com/ldelacroix/conveyor/internal/metrics"
)

const DefaultConcurrency = 5

// Uploader is the backend transfer operation the queue depends on. The
// progress callback may be invoked zero or more times before the call
// returns.
type Uploader interface {
	UploadFile(ctx context.Context, destination string, f File, onProgress func(sent, total int64)) (job.Job, error)
}

// Queue accepts batches of files for upload and submits them to the backend
// with at most `limit` simultaneous transfers. All bookkeeping happens under
// a single mutex so the capacity check and the slot reservation cannot be
// interleaved.
type Queue struct {
	uploader Uploader
	limit    int

	mu      sync.Mutex
	uploads map[string]*Upload
	payload map[string]File
	waiting []string
	running map[string]struct{}
	nextSeq uint64

	onChange func([]Upload)
	onFailed func(Upload)
	onJob    func(job.Job)
}

func NewQueue(uploader Uploader, limit int) (*Queue, error) {
	if uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("concurrency limit must be positive, got %d", limit)
	}

	return &Queue{
		uploader: uploader,
		limit:    limit,
		uploads:  make(map[string]*Upload),
		payload:  make(map[string]File),
		running:  make(map[string]struct{}),
	}, nil
}

// OnChange registers a callback invoked with the full uploads snapshot
// whenever any upload's status or progress changes.
func (q *Queue) OnChange(fn func([]Upload)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = fn
}

// OnFailed registers a callback invoked once per upload that fails.
func (q *Queue) OnFailed(fn func(Upload)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailed = fn
}

// OnJob registers a callback invoked with the Job spawned by each
// successful upload.
func (q *Queue) OnJob(fn func(job.Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onJob = fn
}

// Enqueue appends one queued upload per file and triggers advancement.
// An empty file list is a no-op. There is no automatic retry on failure;
// callers re-enqueue if they want another attempt.
func (q *Queue) Enqueue(destination string, files []File) {
	if len(files) == 0 {
		return
	}

	q.mu.Lock()
	for _, f := range files {
		u := &Upload{
			ID:          uuid.New().String(),
			FileName:    f.Name,
			Size:        int64(len(f.Data)),
			Destination: destination,
			Status:      StatusQueued,
			EnqueuedAt:  time.Now(),
			order:       q.nextSeq,
		}
		q.nextSeq++
		q.uploads[u.ID] = u
		q.payload[u.ID] = f
		q.waiting = append(q.waiting, u.ID)
		metrics.RecordUploadEnqueued(destination)
	}
	started := q.advanceLocked()
	snap := q.snapshotLocked()
	onChange := q.onChange
	q.mu.Unlock()

	for _, id := range started {
		go q.transfer(id)
	}
	if onChange != nil {
		onChange(snap)
	}
}

// ClearFinished drops all completed and failed uploads from the tracked
// set. Idempotent; in-flight uploads are untouched.
func (q *Queue) ClearFinished() {
	q.mu.Lock()
	changed := false
	for id, u := range q.uploads {
		if u.Status.Finished() {
			delete(q.uploads, id)
			delete(q.payload, id)
			changed = true
		}
	}
	snap := q.snapshotLocked()
	onChange := q.onChange
	q.mu.Unlock()

	if changed && onChange != nil {
		onChange(snap)
	}
}

// Uploads returns all tracked uploads in enqueue order.
func (q *Queue) Uploads() []Upload {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Outstanding returns the number of uploads that are queued or uploading.
func (q *Queue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, u := range q.uploads {
		if u.Status == StatusQueued || u.Status == StatusUploading {
			n++
		}
	}
	return n
}

// advanceLocked moves waiting uploads into the running set while capacity
// remains and returns the IDs whose transfers the caller must start. The
// slot is reserved here, under the lock, so concurrent advancement can
// never exceed the limit or start the same upload twice.
func (q *Queue) advanceLocked() []string {
	var started []string
	for len(q.running) < q.limit && len(q.waiting) > 0 {
		id := q.waiting[0]
		q.waiting = q.waiting[1:]
		u, ok := q.uploads[id]
		if !ok {
			continue
		}
		q.running[id] = struct{}{}
		u.Status = StatusUploading
		started = append(started, id)
	}
	metrics.UpdateUploadsInFlight(len(q.running))

	return started
}

func (q *Queue) transfer(id string) {
	q.mu.Lock()
	u, ok := q.uploads[id]
	if !ok {
		delete(q.running, id)
		q.mu.Unlock()
		return
	}
	destination := u.Destination
	f := q.payload[id]
	q.mu.Unlock()

	start := time.Now()
	j, err := q.uploader.UploadFile(context.Background(), destination, f, func(sent, total int64) {
		q.setProgress(id, sent, total)
	})

	q.mu.Lock()
	delete(q.running, id)
	var failed *Upload
	if err != nil {
		if u, ok := q.uploads[id]; ok {
			u.Status = StatusFailed
			u.Error = err.Error()
			u.Progress = 0
			copied := *u
			failed = &copied
		}
		delete(q.payload, id)
		metrics.RecordUploadFailed(destination, time.Since(start))
	} else {
		delete(q.uploads, id)
		delete(q.payload, id)
		metrics.RecordUploadCompleted(destination, time.Since(start))
	}
	started := q.advanceLocked()
	snap := q.snapshotLocked()
	onChange, onFailed, onJob := q.onChange, q.onFailed, q.onJob
	q.mu.Unlock()

	for _, next := range started {
		go q.transfer(next)
	}
	if err == nil && onJob != nil {
		onJob(j)
	}
	if failed != nil && onFailed != nil {
		onFailed(*failed)
	}
	if onChange != nil {
		onChange(snap)
	}
}

// setProgress applies a transfer progress callback. Progress for an upload
// that has already been deleted or resolved is discarded.
func (q *Queue) setProgress(id string, sent, total int64) {
	q.mu.Lock()
	u, ok := q.uploads[id]
	if !ok || u.Status != StatusUploading || total <= 0 {
		q.mu.Unlock()
		return
	}
	pct := int(sent * 100 / total)
	if pct > 100 {
		pct = 100
	}
	if pct == u.Progress {
		q.mu.Unlock()
		return
	}
	u.Progress = pct
	snap := q.snapshotLocked()
	onChange := q.onChange
	q.mu.Unlock()

	if onChange != nil {
		onChange(snap)
	}
}

func (q *Queue) snapshotLocked() []Upload {
	snap := make([]Upload, 0, len(q.uploads))
	for _, u := range q.uploads {
		snap = append(snap, *u)
	}
	sort.Slice(snap, func(i, k int) bool {
		return snap[i].order < snap[k].order
	})

	return snap
}
