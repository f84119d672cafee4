package aiqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecord_ClaimAndComplete(t *testing.T) {
	r := newRecord(Finding{ID: "f"}, "prompt text", 3)
	require.Equal(t, StatusPending, r.Status())
	require.True(t, r.Valid())
	require.Positive(t, r.View().PromptTokens)

	a1, ok := r.claim()
	require.True(t, ok)
	require.Equal(t, StatusInProgress, r.Status())
	_, ok = r.claim()
	require.False(t, ok, "a record is claimed at most once per attempt")

	require.False(t, r.complete(a1+1, "stale"))
	require.True(t, r.complete(a1, "done"))
	require.Equal(t, "done", r.Response())
	v := r.View()
	require.Equal(t, StatusCompleted, v.Status)
	require.False(t, v.CompletedAt.IsZero())
	require.GreaterOrEqual(t, v.Duration(), time.Duration(0))
}

func TestRecord_CancelReleasesHandle(t *testing.T) {
	r := newRecord(Finding{ID: "f"}, "p", -1)
	a, _ := r.claim()
	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, r.attach(a, cancel))

	ok, h := r.markCancelled()
	require.True(t, ok)
	require.NotNil(t, h)
	h()
	require.Error(t, ctx.Err())

	require.Equal(t, StatusCancelled, r.Status())
	require.True(t, r.Cancelled())
	require.False(t, r.Valid())
	require.False(t, r.complete(a, "late"), "cancelled record never completes")

	ok, _ = r.markCancelled()
	require.False(t, ok)
}

func TestRecord_AttachAfterCancelFails(t *testing.T) {
	r := newRecord(Finding{ID: "f"}, "p", -1)
	a, _ := r.claim()
	r.markCancelled()
	require.False(t, r.attach(a, func() {}))
}

func TestRecord_UpdatedAtAdvances(t *testing.T) {
	r := newRecord(Finding{ID: "f"}, "p", -1)
	before := r.UpdatedAt()
	r.claim()
	require.False(t, r.UpdatedAt().Before(before))
}
