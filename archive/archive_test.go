package archive

import (
	"context"
	"testing"
	"time"

	"github.com/UniQw/aiqueue"
	ikeys "github.com/UniQw/aiqueue/internal/keys"
	mrd "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	cleanup := func() {
		_ = rdb.Close()
		s.Close()
	}
	return rdb, cleanup
}

func view(id, findingID string, created time.Time, st aiqueue.Status) aiqueue.RecordView {
	return aiqueue.RecordView{
		ID:        id,
		FindingID: findingID,
		Finding:   aiqueue.Finding{ID: findingID, Title: "Exported activity", Severity: aiqueue.SeverityMedium},
		Status:    st,
		Response:  "report " + id,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestArchive_SaveGet(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	a := New(rdb, Config{Namespace: "t-save"})
	ctx := context.Background()

	v := view("r1", "f1", time.Now(), aiqueue.StatusCompleted)
	require.NoError(t, a.Save(ctx, v))

	got, err := a.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "report r1", got.Response)
	require.Equal(t, aiqueue.StatusCompleted, got.Status)
	require.Equal(t, aiqueue.SeverityMedium, got.Finding.Severity)

	_, err = a.Get(ctx, "missing")
	require.ErrorIs(t, err, aiqueue.ErrRecordNotFound)

	// no retention: nothing scheduled for purge
	n, _ := rdb.ZCard(ctx, ikeys.For("t-save").Expiry).Result()
	require.Zero(t, n)
}

func TestArchive_ForFindingNewestFirst(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	a := New(rdb, Config{Namespace: "t-find"})
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, a.Save(ctx, view("old", "f", base, aiqueue.StatusFailed)))
	require.NoError(t, a.Save(ctx, view("new", "f", base.Add(time.Second), aiqueue.StatusCompleted)))
	require.NoError(t, a.Save(ctx, view("other", "g", base, aiqueue.StatusCompleted)))

	all, err := a.ForFinding(ctx, "f", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "new", all[0].ID)
	require.Equal(t, "old", all[1].ID)

	latest, err := a.ForFinding(ctx, "f", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, "new", latest[0].ID)

	none, err := a.ForFinding(ctx, "nobody", 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestArchive_PurgeExpired(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	a := New(rdb, Config{Namespace: "t-purge", Retention: time.Minute})
	ctx := context.Background()

	require.NoError(t, a.Save(ctx, view("r1", "path/with|pipe", time.Now(), aiqueue.StatusCompleted)))

	n, err := a.Purge(ctx, time.Now(), 0)
	require.NoError(t, err)
	require.Zero(t, n, "not expired yet")

	n, err = a.Purge(ctx, time.Now().Add(2*time.Minute), 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = a.Get(ctx, "r1")
	require.ErrorIs(t, err, aiqueue.ErrRecordNotFound)
	k := ikeys.For("t-purge")
	zc, _ := rdb.ZCard(ctx, k.Finding("path/with|pipe")).Result()
	require.Zero(t, zc, "finding index should be cleared")
	ec, _ := rdb.ZCard(ctx, k.Expiry).Result()
	require.Zero(t, ec, "expiry index should be cleared")
}

func TestArchive_ListenerWritesTerminalOnly(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	a := New(rdb, Config{Namespace: "t-listen"})
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		a.Run(ctx, 10*time.Millisecond)
		close(runDone)
	}()

	a.OnStatusUpdate(view("p", "f", time.Now(), aiqueue.StatusPending))
	a.OnStatusUpdate(view("c", "f", time.Now(), aiqueue.StatusCompleted))
	a.OnBatchComplete(nil)

	require.Eventually(t, func() bool {
		_, err := a.Get(context.Background(), "c")
		return err == nil
	}, time.Second, 5*time.Millisecond)
	_, err := a.Get(context.Background(), "p")
	require.ErrorIs(t, err, aiqueue.ErrRecordNotFound)

	cancel()
	<-runDone
}

func TestArchive_RunFlushesOnStop(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	a := New(rdb, Config{Namespace: "t-flush"})

	a.OnStatusUpdate(view("x", "f", time.Now(), aiqueue.StatusTimeout))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx, time.Hour)

	got, err := a.Get(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, aiqueue.StatusTimeout, got.Status)
}

type okBackend struct{}

func (okBackend) Generate(context.Context, string) (string, error) { return "generated report", nil }
func (okBackend) IsAvailable(context.Context) bool                  { return true }

func TestArchive_WithOrchestrator(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	a := New(rdb, Config{Namespace: "t-orc", Retention: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, time.Second)

	o := aiqueue.New(okBackend{}, aiqueue.WithLogger(aiqueue.NopLogger{}), aiqueue.WithPollInterval(5*time.Millisecond))
	o.AddListener(a)
	o.Start()
	defer o.Shutdown()

	r := o.Submit(aiqueue.Finding{ID: "f"}, "prompt", 0)
	require.Eventually(t, func() bool {
		v, err := a.Get(context.Background(), r.ID)
		return err == nil && v.Status == aiqueue.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	vs, err := a.ForFinding(context.Background(), "f", 0)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	require.Equal(t, "generated report", vs[0].Response)
}
