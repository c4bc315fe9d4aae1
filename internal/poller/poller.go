// Package poller keeps a subject's activity feed fresh by polling the
// gateway, sharing requests between pollers of the same subject and backing
// off when fetches fail.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/metrics"
)

const (
	DefaultInterval   = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultMaxBackoff = 5 * time.Minute
)

var ErrStopped = errors.New("poller stopped")

type State int

const (
	Idle State = iota
	Fetching
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is the renderable state of a poller.
type Snapshot struct {
	Key   string
	State State
	Items []activity.Record
	// NewItems is the number of items ahead of the newest item seen by the
	// previous successful fetch. It is zero on the first successful fetch.
	NewItems int
	Retries  int
	Err      error
	// Exhausted is set once automatic retries have stopped. Refresh resumes.
	Exhausted bool
}

// Scheduler runs f after d and returns a function that cancels it.
type Scheduler func(d time.Duration, f func()) (cancel func())

func afterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Key identifies a subject on a network.
func Key(subject activity.Subject, networkID string) string {
	return subject.Key() + "@" + networkID
}

// Backoff returns the delay before retry number retries (1-based).
func Backoff(interval time.Duration, retries int, max time.Duration) time.Duration {
	if retries < 1 {
		return interval
	}
	d := interval
	for i := 1; i < retries; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return min(d, max)
}

type Poller struct {
	key        string
	fetch      FetchFunc
	registry   *Registry
	interval   time.Duration
	maxRetries int
	maxBackoff time.Duration
	schedule   Scheduler
	onUpdate   func(Snapshot)
	metrics    *metrics.Metrics

	mu          sync.Mutex
	alive       bool
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
	cancelTimer func()
	state       State
	done        chan struct{}
	items       []activity.Record
	fetched     bool
	lastSeen    string
	newItems    int
	retries     int
	err         error
	exhausted   bool
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(p *Poller) { p.maxRetries = n }
}

func WithMaxBackoff(d time.Duration) Option {
	return func(p *Poller) { p.maxBackoff = d }
}

func WithScheduler(s Scheduler) Option {
	return func(p *Poller) { p.schedule = s }
}

// OnUpdate registers a callback invoked after every completed fetch.
func OnUpdate(f func(Snapshot)) Option {
	return func(p *Poller) { p.onUpdate = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

func New(key string, fetch FetchFunc, registry *Registry, opts ...Option) *Poller {
	p := &Poller{
		key:        key,
		fetch:      fetch,
		registry:   registry,
		interval:   DefaultInterval,
		maxRetries: DefaultMaxRetries,
		maxBackoff: DefaultMaxBackoff,
		schedule:   afterFunc,
		metrics:    metrics.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling with an immediate fetch.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.alive = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.scheduleLocked(0)
}

// Refresh fetches now, outside the schedule, and re-arms automatic retries.
// When a fetch is already in flight it waits for that one instead of
// starting another. It returns once the fetch has completed.
func (p *Poller) Refresh() error {
	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		return ErrStopped
	}
	p.retries = 0
	p.exhausted = false
	if p.cancelTimer != nil {
		p.cancelTimer()
		p.cancelTimer = nil
	}
	p.mu.Unlock()

	p.poll()
	return nil
}

// Stop cancels the pending tick and releases the subject's in-flight entry.
// A fetch already on the wire completes but its result is dropped.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive {
		return
	}
	p.alive = false
	p.state = Idle
	if p.cancelTimer != nil {
		p.cancelTimer()
		p.cancelTimer = nil
	}
	p.cancel()
	p.registry.Release(p.key)
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() Snapshot {
	return Snapshot{
		Key:       p.key,
		State:     p.state,
		Items:     p.items,
		NewItems:  p.newItems,
		Retries:   p.retries,
		Err:       p.err,
		Exhausted: p.exhausted,
	}
}

func (p *Poller) scheduleLocked(d time.Duration) {
	p.cancelTimer = p.schedule(d, p.poll)
}

func (p *Poller) poll() {
	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		return
	}
	if p.state == Fetching {
		done := p.done
		p.mu.Unlock()
		<-done
		return
	}
	p.state = Fetching
	p.cancelTimer = nil
	p.done = make(chan struct{})
	done := p.done
	ctx := p.ctx
	p.mu.Unlock()

	recs, _, err := p.registry.Do(ctx, p.key, p.fetch)

	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		close(done)
		return
	}
	if err != nil {
		p.failLocked(err)
	} else {
		p.succeedLocked(recs)
	}
	snap := p.snapshotLocked()
	onUpdate := p.onUpdate
	p.mu.Unlock()
	close(done)

	if onUpdate != nil {
		onUpdate(snap)
	}
}

func (p *Poller) succeedLocked(recs []activity.Record) {
	p.metrics.Polls.WithLabelValues(metrics.OK).Inc()

	// everything ahead of the previous head is new; after an empty feed
	// that is every item
	p.newItems = 0
	if p.fetched {
		p.newItems = len(recs)
		for i, r := range recs {
			if p.lastSeen != "" && r.ID == p.lastSeen {
				p.newItems = i
				break
			}
		}
	}
	p.fetched = true
	p.lastSeen = ""
	if len(recs) > 0 {
		p.lastSeen = recs[0].ID
	}

	p.items = recs
	p.retries = 0
	p.err = nil
	p.exhausted = false
	p.state = Success
	p.scheduleLocked(p.interval)
}

func (p *Poller) failLocked(err error) {
	p.metrics.Polls.WithLabelValues(metrics.Failed).Inc()

	p.retries++
	p.err = err
	p.state = Failed
	if p.retries > p.maxRetries {
		p.exhausted = true
		return
	}
	p.scheduleLocked(Backoff(p.interval, p.retries, p.maxBackoff))
}
