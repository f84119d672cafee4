// Package aiqueue orchestrates report requests against a single-slot LLM
// inference backend: a time-ordered queue drained under a concurrency
// ceiling, retry with exponential backoff, cooperative cancellation of
// in-flight calls, stale-job recovery, a health monitor and a fan-out of
// status events to listeners.
package aiqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/UniQw/aiqueue/internal/queue"
	rtm "github.com/UniQw/aiqueue/internal/runtime"
	"golang.org/x/sync/semaphore"
)

// Backend is the inference service the orchestrator calls.
// *inference.Client satisfies it.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
	IsAvailable(ctx context.Context) bool
}

// Orchestrator owns the request registry, the queue and the background
// goroutines that drain it.
type Orchestrator struct {
	backend Backend
	opts    options
	log     Logger

	queue *queue.Queue[*Record]
	sem   *semaphore.Weighted
	rt    *rtm.Runtime
	calls sync.WaitGroup

	mwMu        sync.Mutex
	middlewares []Middleware
	generate    GenerateFunc

	mu          sync.RWMutex
	records     map[string]*Record
	order       []*Record
	byFinding   map[string][]*Record
	batch       []*Record
	outstanding int

	lmu       sync.RWMutex
	listeners []Listener

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}

	healthy      atomic.Bool
	lastActivity atomic.Int64
	closed       atomic.Bool
	shutdownOnce sync.Once
}

// New creates an orchestrator for backend. Call Start to begin processing;
// records submitted before Start wait in the queue.
func New(backend Backend, opts ...Option) *Orchestrator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = NewFmtLogger()
	}
	orc := &Orchestrator{
		backend:   backend,
		opts:      o,
		log:       o.logger,
		queue:     queue.New[*Record](),
		sem:       semaphore.NewWeighted(int64(o.concurrency)),
		records:   make(map[string]*Record),
		byFinding: make(map[string][]*Record),
		timers:    make(map[*time.Timer]struct{}),
	}
	orc.healthy.Store(true)
	orc.touchActivity()
	orc.rt = rtm.New(rtm.Config{
		Logger: rtLogger{Logger: o.logger},
		Loops: []rtm.Loop{
			{Name: "dispatcher", Run: orc.dispatch},
			{Name: "health", Interval: o.healthInterval, Run: orc.checkHealth},
			{Name: "stale", Interval: o.staleInterval, Run: orc.sweepStale},
		},
	})
	return orc
}

// Start launches the dispatcher and the maintenance loops.
// It is idempotent and non-blocking.
func (o *Orchestrator) Start() {
	o.mwMu.Lock()
	if o.generate == nil {
		o.generate = o.wrapGenerate(o.backend.Generate)
	}
	o.mwMu.Unlock()
	if o.rt.Start() {
		o.log.Infof("orchestrator started: concurrency=%d max_retries=%d", o.opts.concurrency, o.opts.maxRetries)
	}
}

// Shutdown stops the loops, cancels in-flight calls and pending re-queue
// timers, and waits up to the shutdown grace for goroutines to exit.
// Records keep their current status; an unfinished batch is reported once
// through OnBatchComplete. It is idempotent.
func (o *Orchestrator) Shutdown() {
	o.shutdownOnce.Do(func() {
		o.closed.Store(true)
		o.stopTimers()
		deadline := time.Now().Add(o.opts.shutdownGrace)
		if !o.rt.Stop(o.opts.shutdownGrace) {
			o.log.Warnf("shutdown: background loops did not exit within %s", o.opts.shutdownGrace)
		}
		if !waitTimeout(&o.calls, time.Until(deadline)) {
			o.log.Warnf("shutdown: backend calls still running after %s", o.opts.shutdownGrace)
		}
		o.flushBatch()
		o.log.Infof("orchestrator stopped")
	})
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if d <= 0 {
		d = time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Submit registers a request for finding and enqueues it. Listeners are
// notified before Submit returns. After Shutdown the record is returned
// already CANCELLED.
func (o *Orchestrator) Submit(f Finding, prompt string, line int) *Record {
	r := newRecord(f, prompt, line)
	o.mu.Lock()
	o.register(r)
	o.mu.Unlock()
	o.enqueue(r)
	return r
}

// SubmitBatch renders template for every finding and submits them as one
// logical batch. lines maps finding ids to UI rows; a missing entry is -1.
func (o *Orchestrator) SubmitBatch(findings []Finding, template string, lines map[string]int) []*Record {
	out := make([]*Record, 0, len(findings))
	o.mu.Lock()
	for _, f := range findings {
		line, ok := lines[f.ID]
		if !ok {
			line = -1
		}
		r := newRecord(f, RenderPrompt(template, f), line)
		o.register(r)
		out = append(out, r)
	}
	o.mu.Unlock()
	for _, r := range out {
		o.enqueue(r)
	}
	return out
}

// register must be called with o.mu held.
func (o *Orchestrator) register(r *Record) {
	o.records[r.ID] = r
	o.order = append(o.order, r)
	o.byFinding[r.Finding.ID] = append(o.byFinding[r.Finding.ID], r)
	o.batch = append(o.batch, r)
	o.outstanding++
}

func (o *Orchestrator) enqueue(r *Record) {
	o.touchActivity()
	if o.closed.Load() {
		if ok, _ := r.markCancelled(); ok {
			r.mu.Lock()
			r.errMsg = ErrShutdown.Error()
			r.mu.Unlock()
			o.log.Warnf("submit after shutdown: id=%s finding=%s", r.ID, r.Finding.ID)
			o.notify(r)
			o.settle(r)
		}
		return
	}
	o.notify(r)
	o.queue.Push(r.ID, r.CreatedAt, r)
	o.log.Debugf("queued: id=%s finding=%s", r.ID, r.Finding.ID)
}

// Cancel cancels a PENDING or IN_PROGRESS record, closing its in-flight
// connection if any. It reports false when the record is unknown or not
// cancellable.
func (o *Orchestrator) Cancel(id string) bool {
	r := o.Get(id)
	if r == nil {
		return false
	}
	ok, handle := r.markCancelled()
	if !ok {
		return false
	}
	if o.queue.Remove(id) {
		r.markRemoved()
	}
	if handle != nil {
		handle()
	}
	o.log.Infof("cancelled: id=%s finding=%s", r.ID, r.Finding.ID)
	o.notify(r)
	o.settle(r)
	return true
}

// Retry re-submits a FAILED, TIMEOUT or RATE_LIMITED record as a new record
// that replaces the old id in the registry. The old record keeps its
// terminal status. It reports false and changes nothing for other records.
func (o *Orchestrator) Retry(id string) bool {
	o.mu.Lock()
	old, ok := o.records[id]
	if !ok || !old.Status().IsRetryable() {
		o.mu.Unlock()
		return false
	}
	r := o.replace(old)
	o.mu.Unlock()

	o.log.Infof("retry: old=%s new=%s finding=%s", old.ID, r.ID, r.Finding.ID)
	o.enqueue(r)
	return true
}

// RetryAllFailed applies Retry to every retryable record. It reports whether
// any record was re-submitted.
func (o *Orchestrator) RetryAllFailed() bool {
	o.mu.Lock()
	var fresh []*Record
	for _, old := range append([]*Record(nil), o.order...) {
		if old.Status().IsRetryable() {
			fresh = append(fresh, o.replace(old))
		}
	}
	o.mu.Unlock()

	for _, r := range fresh {
		o.enqueue(r)
	}
	if len(fresh) > 0 {
		o.log.Infof("retry all: resubmitted=%d", len(fresh))
	}
	return len(fresh) > 0
}

// replace must be called with o.mu held.
func (o *Orchestrator) replace(old *Record) *Record {
	r := newRecord(old.Finding, old.Prompt, old.Line)
	delete(o.records, old.ID)
	o.order = without(o.order, old)
	o.byFinding[old.Finding.ID] = without(o.byFinding[old.Finding.ID], old)
	o.batch = without(o.batch, old)
	o.register(r)
	return r
}

func without(list []*Record, r *Record) []*Record {
	for i, x := range list {
		if x == r {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// Get returns the record registered under id, or nil.
func (o *Orchestrator) Get(id string) *Record {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.records[id]
}

// Lookup is Get with an error for unknown ids.
func (o *Orchestrator) Lookup(id string) (*Record, error) {
	if r := o.Get(id); r != nil {
		return r, nil
	}
	return nil, ErrRecordNotFound
}

// ForFinding returns the registered records of a finding, oldest first.
func (o *Orchestrator) ForFinding(findingID string) []*Record {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]*Record(nil), o.byFinding[findingID]...)
}

// Records returns every registered record in submission order.
func (o *Orchestrator) Records() []*Record {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]*Record(nil), o.order...)
}

// Reset cancels outstanding records and clears the registry for a new scan.
func (o *Orchestrator) Reset() {
	for _, r := range o.Records() {
		o.Cancel(r.ID)
	}
	o.queue.Drain()
	o.mu.Lock()
	o.records = make(map[string]*Record)
	o.byFinding = make(map[string][]*Record)
	o.order = nil
	o.batch = nil
	o.outstanding = 0
	o.mu.Unlock()
	o.log.Infof("registry reset")
}

// Healthy reports the last known backend health.
func (o *Orchestrator) Healthy() bool { return o.healthy.Load() }

// Stats summarizes the registry.
type Stats struct {
	Total       int
	Pending     int
	InProgress  int
	Completed   int
	Failed      int
	Timeout     int
	RateLimited int
	Cancelled   int
	Queued      int
	Healthy     bool
}

// Finished returns the number of records in a terminal status.
func (s Stats) Finished() int {
	return s.Completed + s.Failed + s.Timeout + s.RateLimited + s.Cancelled
}

// Stats returns counts per status.
func (o *Orchestrator) Stats() Stats {
	s := Stats{Queued: o.queue.Len(), Healthy: o.Healthy()}
	for _, r := range o.Records() {
		s.Total++
		switch r.Status() {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusTimeout:
			s.Timeout++
		case StatusRateLimited:
			s.RateLimited++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// settle records that r reached a terminal status and fires OnBatchComplete
// when nothing is outstanding anymore.
func (o *Orchestrator) settle(r *Record) {
	o.mu.Lock()
	if _, ok := o.records[r.ID]; !ok || o.outstanding == 0 {
		o.mu.Unlock()
		return
	}
	o.outstanding--
	if o.outstanding > 0 {
		o.mu.Unlock()
		return
	}
	batch := o.batch
	o.batch = nil
	o.mu.Unlock()
	o.fireBatch(batch)
}

// flushBatch reports the current batch even though records are still
// outstanding. Used on shutdown.
func (o *Orchestrator) flushBatch() {
	o.mu.Lock()
	batch := o.batch
	o.batch = nil
	o.outstanding = 0
	o.mu.Unlock()
	if len(batch) > 0 {
		o.log.Warnf("shutdown: batch cut short")
		o.fireBatch(batch)
	}
}

func (o *Orchestrator) fireBatch(batch []*Record) {
	views := make([]RecordView, len(batch))
	for i, b := range batch {
		views[i] = b.View()
	}
	o.log.Infof("batch complete: records=%d", len(views))
	o.notifyBatch(views)
}

func (o *Orchestrator) touchActivity() { o.lastActivity.Store(time.Now().UnixNano()) }

func (o *Orchestrator) idleFor() time.Duration {
	return time.Since(time.Unix(0, o.lastActivity.Load()))
}
