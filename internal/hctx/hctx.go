package hctx

import "context"

// State describes the dispatch attempt a generate call belongs to.
type State struct {
	RecordID   string
	FindingID  string
	Attempt    uint64
	RetryCount int
}

type ctxKey struct{}

// WithState returns a child context carrying the given attempt state.
func WithState(parent context.Context, s State) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the attempt state from context if present.
func From(ctx context.Context) (State, bool) {
	st, ok := ctx.Value(ctxKey{}).(State)
	return st, ok
}
