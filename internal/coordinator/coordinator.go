// Package coordinator ties the upload queue and the job poller into one
// explicitly constructed object per session: successful uploads feed the
// poller, resolved jobs invalidate cached resources, failures reach the
// audit trail and the notifier.
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ldelacroix/conveyor/internal/job"
	"github.com/ldelacroix/conveyor/internal/metrics"
	"github.com/ldelacroix/conveyor/internal/repository"
	"github.com/ldelacroix/conveyor/internal/snapshot"
	"github.com/ldelacroix/conveyor/internal/upload"
)

// Auditor records work outcomes. Implemented by repository.AuditRepository.
type Auditor interface {
	RecordEvent(ctx context.Context, e repository.Event) error
}

// Notifier alerts administrators about failed jobs. Implemented by
// notify.EmailNotifier.
type Notifier interface {
	JobFailed(j job.Job) error
}

const auditTimeout = 5 * time.Second

type Coordinator struct {
	queue  *upload.Queue
	poller *job.Poller

	snaps    *snapshot.Store
	audit    Auditor
	notifier Notifier

	mu           sync.Mutex
	stale        []job.Job
	staleAt      time.Time
	live         bool
	onInvalidate func()
}

// New builds a coordinator with its own upload queue and poller. The
// uploader and lister are usually the same backend client; tests inject
// fakes. A concurrency of 0 selects the default bound.
func New(uploader upload.Uploader, lister job.Lister, concurrency int) (*Coordinator, error) {
	if concurrency == 0 {
		concurrency = upload.DefaultConcurrency
	}
	q, err := upload.NewQueue(uploader, concurrency)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		queue:  q,
		poller: job.NewPoller(lister),
	}

	q.OnJob(func(j job.Job) {
		c.poller.Track(j)
		c.recordEvent(repository.Event{
			Kind:        repository.KindUploadCompleted,
			RefID:       j.ID,
			Destination: j.Destination,
			FileName:    j.FileName,
		})
		c.updateOutstanding()
	})
	q.OnFailed(func(u upload.Upload) {
		c.recordEvent(repository.Event{
			Kind:        repository.KindUploadFailed,
			RefID:       u.ID,
			Destination: u.Destination,
			FileName:    u.FileName,
			Detail:      u.Error,
		})
	})
	q.OnChange(func([]upload.Upload) {
		c.updateOutstanding()
	})

	c.poller.OnChange(func(jobs []job.Job) {
		c.mu.Lock()
		c.live = true
		c.mu.Unlock()
		c.saveSnapshot(jobs)
		c.updateOutstanding()
	})
	c.poller.OnResolved(func() {
		c.mu.Lock()
		fn := c.onInvalidate
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	c.poller.OnFailed(func(j job.Job) {
		c.recordEvent(repository.Event{
			Kind:        repository.KindJobFailed,
			RefID:       j.ID,
			Destination: j.Destination,
			FileName:    j.FileName,
			Detail:      j.Error,
		})
		if c.notifier != nil {
			if err := c.notifier.JobFailed(j); err != nil {
				log.Printf("Failed to notify about job %s: %v", j.ID, err)
			}
		}
	})

	return c, nil
}

// SetSnapshotStore wires the Redis snapshot store and seeds the stale job
// view from it. Until the first live reconcile, Jobs serves that snapshot.
func (c *Coordinator) SetSnapshotStore(s *snapshot.Store) {
	c.snaps = s
	jobs, capturedAt, err := s.Load()
	if err != nil {
		log.Printf("Failed to load job snapshot: %v", err)
		return
	}
	c.mu.Lock()
	c.stale = jobs
	c.staleAt = capturedAt
	c.mu.Unlock()
}

func (c *Coordinator) SetAuditor(a Auditor) {
	c.audit = a
}

func (c *Coordinator) SetNotifier(n Notifier) {
	c.notifier = n
}

// OnInvalidate registers a callback fired when a reconcile observed that
// some jobs finished, so callers can invalidate cached resource lists.
func (c *Coordinator) OnInvalidate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onInvalidate = fn
}

// Enqueue submits files for upload to the destination collection.
func (c *Coordinator) Enqueue(destination string, files []upload.File) {
	c.queue.Enqueue(destination, files)
}

// ClearFinished drops completed and failed uploads from the panel.
func (c *Coordinator) ClearFinished() {
	c.queue.ClearFinished()
}

// Uploads returns the uploads panel snapshot.
func (c *Coordinator) Uploads() []upload.Upload {
	return c.queue.Uploads()
}

// Jobs returns the jobs panel snapshot. Before the first live reconcile it
// serves the persisted snapshot, flagged with live=false and the time it
// was captured.
func (c *Coordinator) Jobs() (jobs []job.Job, capturedAt time.Time, live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live {
		return c.poller.Jobs(), time.Now(), true
	}
	return c.stale, c.staleAt, false
}

// Refresh performs one immediate poll-and-reconcile cycle.
func (c *Coordinator) Refresh(ctx context.Context) ([]job.Job, error) {
	return c.poller.Refresh(ctx)
}

// Track registers an externally created job, e.g. from an action that
// creates work without going through the upload queue.
func (c *Coordinator) Track(j job.Job) {
	c.poller.Track(j)
	c.recordEvent(repository.Event{
		Kind:        repository.KindJobTracked,
		RefID:       j.ID,
		Destination: j.Destination,
		FileName:    j.FileName,
	})
}

// Outstanding returns the badge count: active jobs plus queued and
// in-flight uploads.
func (c *Coordinator) Outstanding() int {
	return c.poller.ActiveCount() + c.queue.Outstanding()
}

// Close tears down the poller timers. In-flight transfers run to
// completion; there is no transfer cancellation.
func (c *Coordinator) Close() {
	c.poller.Close()
}

func (c *Coordinator) updateOutstanding() {
	metrics.UpdateOutstandingWork(c.Outstanding())
}

func (c *Coordinator) saveSnapshot(jobs []job.Job) {
	if c.snaps == nil {
		return
	}
	if err := c.snaps.Save(jobs); err != nil {
		log.Printf("Failed to save job snapshot: %v", err)
	}
}

func (c *Coordinator) recordEvent(e repository.Event) {
	if c.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := c.audit.RecordEvent(ctx, e); err != nil {
		log.Printf("Failed to record audit event %s for %s: %v", e.Kind, e.RefID, err)
	}
}
