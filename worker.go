package aiqueue

import (
	"context"
	"time"

	"github.com/UniQw/aiqueue/inference"
	"github.com/UniQw/aiqueue/internal/backoff"
	"github.com/UniQw/aiqueue/internal/hctx"
)

// dispatch drains the queue while holding one semaphore slot per outstanding
// backend call.
func (o *Orchestrator) dispatch(ctx context.Context) {
	for {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return
		}
		r, ok := o.queue.Poll(ctx, o.opts.pollInterval)
		if !ok {
			o.sem.Release(1)
			if ctx.Err() != nil {
				return
			}
			continue
		}
		attempt, ok := r.claim()
		if !ok {
			o.sem.Release(1)
			if r.Cancelled() {
				r.markRemoved()
			}
			o.log.Debugf("skip: id=%s status=%s", r.ID, r.Status())
			continue
		}
		o.log.Debugf("claimed: id=%s finding=%s attempt=%d", r.ID, r.Finding.ID, attempt)
		o.notify(r)
		o.calls.Add(1)
		go o.execute(ctx, r, attempt)
	}
}

// execute runs one attempt. The attempt context is the record's network
// handle: Cancel and the stale sweep close it.
func (o *Orchestrator) execute(parent context.Context, r *Record, attempt uint64) {
	defer o.calls.Done()
	defer o.sem.Release(1)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if !r.attach(attempt, cancel) {
		return
	}
	defer r.detach(attempt)

	retries := r.RetryCount()
	if retries > 0 {
		d := backoff.Exponential(o.opts.retryDelay, retries, o.opts.maxWorkerBackoff)
		o.log.Debugf("retry pause: id=%s retry=%d delay=%s", r.ID, retries, d)
		if !sleepCtx(ctx, d) || !r.resume(attempt) {
			return
		}
	}

	callCtx, callCancel := context.WithTimeout(ctx, o.opts.requestTimeout)
	callCtx = hctx.WithState(callCtx, hctx.State{
		RecordID:   r.ID,
		FindingID:  r.Finding.ID,
		Attempt:    attempt,
		RetryCount: retries,
	})
	text, err := o.generate(callCtx, r.Prompt)
	callCancel()
	o.touchActivity()

	if err == nil {
		if r.complete(attempt, text) {
			o.log.Infof("completed: id=%s finding=%s tokens=%d", r.ID, r.Finding.ID, inference.EstimateTokens(text))
			o.notify(r)
			o.settle(r)
		}
		return
	}
	o.handleFailure(r, attempt, err)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// handleFailure applies the retry policy to a failed attempt.
func (o *Orchestrator) handleFailure(r *Record, attempt uint64, err error) {
	kind := inference.KindOf(err)
	if kind == inference.KindCancelled {
		// Cancel or shutdown already decided the record's fate.
		return
	}

	r.mu.Lock()
	if !r.ownedLocked(attempt) {
		r.mu.Unlock()
		return
	}
	r.errMsg = err.Error()
	r.errKind = kind
	if kind == inference.KindValidation {
		r.status = StatusFailed
		r.completedAt = time.Now()
		r.touch()
		r.mu.Unlock()
		o.log.Warnf("failed: id=%s finding=%s kind=%s err=%v", r.ID, r.Finding.ID, kind, err)
		o.notify(r)
		o.settle(r)
		return
	}
	r.retryCount++
	retries := r.retryCount
	if retries >= o.opts.maxRetries {
		r.status = terminalStatus(kind)
		r.completedAt = time.Now()
		r.touch()
		r.mu.Unlock()
		o.log.Warnf("giving up: id=%s finding=%s status=%s retries=%d err=%v", r.ID, r.Finding.ID, r.Status(), retries, err)
		o.notify(r)
		o.settle(r)
		return
	}
	r.status = StatusPending
	r.touch()
	r.mu.Unlock()
	o.notify(r)

	switch kind {
	case inference.KindRateLimited:
		o.log.Warnf("rate limited: id=%s retry=%d/%d requeue_in=%s", r.ID, retries, o.opts.maxRetries, o.opts.rateLimitDelay)
		o.after(o.opts.rateLimitDelay, func() { o.requeue(r) })
	case inference.KindServiceUnavailable:
		if o.healthy.CompareAndSwap(true, false) {
			o.log.Warnf("backend unavailable; marking unhealthy")
		}
		o.log.Warnf("service unavailable: id=%s retry=%d/%d probe_in=%s", r.ID, retries, o.opts.maxRetries, o.opts.unavailableDelay)
		o.after(o.opts.unavailableDelay, func() { o.probeAndRequeue(r, err) })
	default:
		d := backoff.Exponential(o.opts.retryDelay, retries, o.opts.maxRetryBackoff)
		o.log.Warnf("failed attempt: id=%s kind=%s retry=%d/%d requeue_in=%s err=%v", r.ID, kind, retries, o.opts.maxRetries, d, err)
		o.after(d, func() { o.requeue(r) })
	}
}

func terminalStatus(k inference.Kind) Status {
	switch k {
	case inference.KindTimeout:
		return StatusTimeout
	case inference.KindRateLimited:
		return StatusRateLimited
	default:
		return StatusFailed
	}
}

// probeAndRequeue re-queues r once the backend answers the probe again.
// While it does not, every probe consumes one retry.
func (o *Orchestrator) probeAndRequeue(r *Record, cause error) {
	if !r.pending() {
		return
	}
	if o.backend.IsAvailable(o.rt.Context()) {
		if o.healthy.CompareAndSwap(false, true) {
			o.log.Infof("backend available again")
		}
		o.requeue(r)
		return
	}
	if o.closed.Load() {
		return
	}

	r.mu.Lock()
	if r.status != StatusPending || r.cancelled {
		r.mu.Unlock()
		return
	}
	r.retryCount++
	retries := r.retryCount
	r.touch()
	if retries >= o.opts.maxRetries {
		r.status = StatusFailed
		r.errMsg = cause.Error()
		r.errKind = inference.KindServiceUnavailable
		r.completedAt = time.Now()
		r.mu.Unlock()
		o.log.Warnf("giving up: id=%s finding=%s status=%s retries=%d backend still unavailable", r.ID, r.Finding.ID, StatusFailed, retries)
		o.notify(r)
		o.settle(r)
		return
	}
	r.mu.Unlock()
	o.log.Warnf("backend still unavailable: id=%s retry=%d/%d probe_in=%s", r.ID, retries, o.opts.maxRetries, o.opts.unavailableDelay)
	o.notify(r)
	o.after(o.opts.unavailableDelay, func() { o.probeAndRequeue(r, cause) })
}

func (o *Orchestrator) requeue(r *Record) {
	if !r.pending() {
		return
	}
	if o.queue.Push(r.ID, r.CreatedAt, r) {
		o.log.Debugf("requeued: id=%s retry=%d", r.ID, r.RetryCount())
	}
}

// after runs fn once d elapses unless the orchestrator shuts down first.
func (o *Orchestrator) after(d time.Duration, fn func()) {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	if o.closed.Load() {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		o.timersMu.Lock()
		delete(o.timers, t)
		o.timersMu.Unlock()
		if o.closed.Load() {
			return
		}
		fn()
	})
	o.timers[t] = struct{}{}
}

func (o *Orchestrator) stopTimers() {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	for t := range o.timers {
		t.Stop()
		delete(o.timers, t)
	}
}
