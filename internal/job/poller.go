package job

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ldelacroix/conveyor/internal/metrics"
)

// Lister is the single backend operation the poller depends on.
type Lister interface {
	ListJobs(ctx context.Context) ([]Job, error)
}

const (
	DefaultPollInterval = 30 * time.Second
	DefaultRetryDelay   = 20 * time.Second
	DefaultMaxErrors    = 5
)

// Poller maintains the set of interesting jobs (queued, in progress, or
// failed) by polling the backend. Polling starts on demand via Track and
// stops itself once no tracked job is active.
type Poller struct {
	lister Lister

	mu      sync.Mutex
	tracked map[string]Job
	seq     uint64
	errors  int
	timer   *time.Timer
	closed  bool

	interval   time.Duration
	retryDelay time.Duration
	maxErrors  int

	onChange   func([]Job)
	onResolved func()
	onFailed   func(Job)
}

func NewPoller(lister Lister) *Poller {
	return &Poller{
		lister:     lister,
		tracked:    make(map[string]Job),
		interval:   DefaultPollInterval,
		retryDelay: DefaultRetryDelay,
		maxErrors:  DefaultMaxErrors,
	}
}

func (p *Poller) SetInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = d
}

func (p *Poller) SetRetryDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retryDelay = d
}

// OnChange registers a callback invoked with the interesting-jobs snapshot
// after every applied reconcile and every Track call.
func (p *Poller) OnChange(fn func([]Job)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// OnResolved registers a callback invoked at most once per reconcile when
// the tracked set shrank, i.e. some jobs finished since the last poll.
func (p *Poller) OnResolved(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onResolved = fn
}

// OnFailed registers a callback invoked for each job first observed in the
// failed state.
func (p *Poller) OnFailed(fn func(Job)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFailed = fn
}

// Track registers a job and ensures the poll timer is running. Tracking new
// work also restarts a poller that gave up after repeated listing errors.
func (p *Poller) Track(j Job) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.tracked[j.ID] = j
	snap := p.snapshotLocked()
	if p.timer == nil {
		p.timer = time.AfterFunc(p.interval, p.pollTick)
	}
	onChange := p.onChange
	p.mu.Unlock()

	metrics.RecordJobTracked(j.Destination)
	metrics.UpdateActiveJobs(countActive(snap))
	if onChange != nil {
		onChange(snap)
	}
}

// Refresh performs one immediate poll-and-reconcile cycle and returns the
// full job listing as reported by the backend, terminal jobs included.
func (p *Poller) Refresh(ctx context.Context) ([]Job, error) {
	return p.reconcile(ctx)
}

// Jobs returns the current interesting-jobs snapshot.
func (p *Poller) Jobs() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// ActiveCount returns the number of tracked jobs the backend is still
// working on. Failed jobs are tracked but not counted as outstanding work.
func (p *Poller) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, j := range p.tracked {
		if j.Status.Active() {
			n++
		}
	}
	return n
}

// Polling reports whether a poll or retry timer is currently scheduled.
func (p *Poller) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Close stops all timers. The poller must not be used afterwards.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.stopTimerLocked()
}

func (p *Poller) pollTick() {
	if _, err := p.reconcile(context.Background()); err != nil {
		log.Printf("Job poll failed: %v", err)
	}
}

func (p *Poller) reconcile(ctx context.Context) ([]Job, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil
	}
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	metrics.RecordPoll()
	jobs, err := p.lister.ListJobs(ctx)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return jobs, err
	}
	if seq != p.seq {
		// A newer reconcile was issued while this one was in flight; its
		// result wins and this one must not touch the tracked set.
		p.mu.Unlock()
		return jobs, err
	}

	if err != nil {
		metrics.RecordPollFailure()
		p.errors++
		p.stopTimerLocked()
		if p.errors < p.maxErrors {
			p.timer = time.AfterFunc(p.retryDelay, p.pollTick)
		}
		p.mu.Unlock()
		return nil, err
	}

	p.errors = 0
	next := make(map[string]Job, len(jobs))
	var newlyFailed []Job
	for _, j := range jobs {
		if !j.Status.Interesting() {
			continue
		}
		if j.Status == StatusFailed {
			if prev, ok := p.tracked[j.ID]; !ok || prev.Status != StatusFailed {
				newlyFailed = append(newlyFailed, j)
			}
		}
		next[j.ID] = j
	}

	shrunk := len(next) < len(p.tracked)
	p.tracked = next
	snap := p.snapshotLocked()

	p.stopTimerLocked()
	if countActive(snap) > 0 {
		p.timer = time.AfterFunc(p.interval, p.pollTick)
	}

	onChange, onResolved, onFailed := p.onChange, p.onResolved, p.onFailed
	p.mu.Unlock()

	metrics.UpdateActiveJobs(countActive(snap))
	if onChange != nil {
		onChange(snap)
	}
	if shrunk && onResolved != nil {
		onResolved()
	}
	if onFailed != nil {
		for _, j := range newlyFailed {
			onFailed(j)
		}
	}

	return jobs, nil
}

func (p *Poller) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Poller) snapshotLocked() []Job {
	snap := make([]Job, 0, len(p.tracked))
	for _, j := range p.tracked {
		snap = append(snap, j)
	}
	sort.Slice(snap, func(i, k int) bool {
		if snap[i].CreatedAt.Equal(snap[k].CreatedAt) {
			return snap[i].ID < snap[k].ID
		}
		return snap[i].CreatedAt.Before(snap[k].CreatedAt)
	})

	return snap
}

func countActive(jobs []Job) int {
	n := 0
	for _, j := range jobs {
		if j.Status.Active() {
			n++
		}
	}
	return n
}
