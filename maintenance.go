package aiqueue

import (
	"context"
	"time"

	"github.com/UniQw/aiqueue/inference"
)

var errStuck = &inference.Error{Kind: inference.KindTimeout, Msg: "stuck request timeout"}

// checkHealth probes the backend after a period without activity and
// logs transitions only.
func (o *Orchestrator) checkHealth(ctx context.Context) {
	if o.idleFor() < o.opts.idleThreshold {
		return
	}
	ok := o.backend.IsAvailable(ctx)
	if ctx.Err() != nil {
		return
	}
	if prev := o.healthy.Swap(ok); prev != ok {
		if ok {
			o.log.Infof("health: backend recovered")
		} else {
			o.log.Warnf("health: backend unreachable")
		}
	}
}

// sweepStale forces IN_PROGRESS records that have not changed for longer
// than the request timeout plus grace through the failure path.
func (o *Orchestrator) sweepStale(context.Context) {
	cutoff := time.Now().Add(-(o.opts.requestTimeout + o.opts.staleGrace))
	for _, r := range o.Records() {
		r.mu.Lock()
		if r.status != StatusInProgress || r.cancelled || !r.updatedAt.Before(cutoff) {
			r.mu.Unlock()
			continue
		}
		attempt := r.attempt
		handle := r.takeHandleLocked()
		r.mu.Unlock()

		if handle != nil {
			handle()
		}
		o.log.Warnf("stale: id=%s finding=%s attempt=%d", r.ID, r.Finding.ID, attempt)
		o.handleFailure(r, attempt, errStuck)
	}
}
