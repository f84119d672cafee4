package aiqueue

import (
	"context"

	"github.com/UniQw/aiqueue/internal/hctx"
)

// GenerateFunc is the signature of one backend call.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// Middleware wraps a GenerateFunc to provide cross-cutting concerns.
type Middleware func(GenerateFunc) GenerateFunc

// Attempt describes the dispatch attempt a backend call belongs to.
type Attempt struct {
	RecordID   string
	FindingID  string
	Number     uint64
	RetryCount int
}

// AttemptFrom returns the attempt metadata carried by a backend call's context.
func AttemptFrom(ctx context.Context) (Attempt, bool) {
	st, ok := hctx.From(ctx)
	if !ok {
		return Attempt{}, false
	}
	return Attempt{RecordID: st.RecordID, FindingID: st.FindingID, Number: st.Attempt, RetryCount: st.RetryCount}, true
}

// Use adds a middleware around backend calls. Middlewares are executed in the
// order they are added. Use has no effect once the orchestrator has started.
func (o *Orchestrator) Use(mw Middleware) {
	o.mwMu.Lock()
	defer o.mwMu.Unlock()
	if o.generate != nil {
		o.log.Warnf("middleware added after Start; ignoring")
		return
	}
	o.middlewares = append(o.middlewares, mw)
}

func (o *Orchestrator) wrapGenerate(g GenerateFunc) GenerateFunc {
	for i := len(o.middlewares) - 1; i >= 0; i-- {
		g = o.middlewares[i](g)
	}
	return g
}
