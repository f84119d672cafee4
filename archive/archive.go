// Package archive keeps finished report requests in Redis and publishes
// lifecycle events, so reports outlive the in-memory orchestrator registry.
package archive

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/UniQw/aiqueue"
	ikeys "github.com/UniQw/aiqueue/internal/keys"
	"github.com/redis/go-redis/v9"
)

// DefaultNamespace is used when Config.Namespace is empty.
const DefaultNamespace = "reports"

// Config configures an Archive.
type Config struct {
	// Namespace scopes every key, e.g. one per project.
	Namespace string
	// Retention is how long finished records are kept. Zero or negative keeps them forever.
	Retention time.Duration
	// Buffer is the capacity of the listener hand-off queue.
	Buffer int
	// WriteTimeout bounds each background Redis write.
	WriteTimeout time.Duration
	Encoder      aiqueue.Encoder
	Logger       aiqueue.Logger
}

// Archive stores terminal RecordViews. As an aiqueue.Listener it never blocks
// the caller: views are handed to Run, which writes them.
type Archive struct {
	rdb  redis.UniversalClient
	keys ikeys.Archive
	cfg  Config
	enc  aiqueue.Encoder
	log  aiqueue.Logger
	in   chan aiqueue.RecordView
}

// New creates an Archive on rdb.
func New(rdb redis.UniversalClient, cfg Config) *Archive {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	enc := cfg.Encoder
	if enc == nil {
		enc = &aiqueue.JSONEncoder{}
	}
	lg := cfg.Logger
	if lg == nil {
		lg = aiqueue.NopLogger{}
	}
	return &Archive{
		rdb:  rdb,
		keys: ikeys.For(cfg.Namespace),
		cfg:  cfg,
		enc:  enc,
		log:  lg,
		in:   make(chan aiqueue.RecordView, cfg.Buffer),
	}
}

// expiry members carry the finding id so purging can clean the finding index.
func expiryMember(findingID, id string) string { return findingID + "|" + id }

func splitExpiryMember(m string) (findingID, id string) {
	i := strings.LastIndexByte(m, '|')
	if i < 0 {
		return "", m
	}
	return m[:i], m[i+1:]
}

// Save writes v and indexes it under its finding.
func (a *Archive) Save(ctx context.Context, v aiqueue.RecordView) error {
	data, err := a.enc.Encode(v)
	if err != nil {
		return err
	}
	_, err = a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, a.keys.Record(v.ID), data, 0)
		p.ZAdd(ctx, a.keys.Finding(v.FindingID), redis.Z{Score: float64(v.CreatedAt.UnixMilli()), Member: v.ID})
		if a.cfg.Retention > 0 {
			exp := time.Now().Add(a.cfg.Retention).UnixMilli()
			p.ZAdd(ctx, a.keys.Expiry, redis.Z{Score: float64(exp), Member: expiryMember(v.FindingID, v.ID)})
		}
		return nil
	})
	return err
}

// Get returns the archived record id. It returns aiqueue.ErrRecordNotFound
// for unknown or purged ids.
func (a *Archive) Get(ctx context.Context, id string) (aiqueue.RecordView, error) {
	var v aiqueue.RecordView
	raw, err := a.rdb.Get(ctx, a.keys.Record(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, aiqueue.ErrRecordNotFound
	}
	if err != nil {
		return v, err
	}
	err = a.enc.Decode(raw, &v)
	return v, err
}

// ForFinding returns the newest archived records of a finding, newest first.
// A non-positive limit returns all of them.
func (a *Archive) ForFinding(ctx context.Context, findingID string, limit int64) ([]aiqueue.RecordView, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	ids, err := a.rdb.ZRevRange(ctx, a.keys.Finding(findingID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	ks := make([]string, len(ids))
	for i, id := range ids {
		ks[i] = a.keys.Record(id)
	}
	vals, err := a.rdb.MGet(ctx, ks...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]aiqueue.RecordView, 0, len(vals))
	for _, raw := range vals {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var v aiqueue.RecordView
		if err := a.enc.Decode([]byte(s), &v); err == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

// Purge removes up to batch records whose retention elapsed before now and
// returns how many were removed.
func (a *Archive) Purge(ctx context.Context, now time.Time, batch int64) (int, error) {
	if batch <= 0 {
		batch = 256
	}
	members, err := a.rdb.ZRangeByScore(ctx, a.keys.Expiry, &redis.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: batch,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	_, err = a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, m := range members {
			fid, id := splitExpiryMember(m)
			p.Del(ctx, a.keys.Record(id))
			p.ZRem(ctx, a.keys.Finding(fid), id)
			p.ZRem(ctx, a.keys.Expiry, m)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// OnStatusUpdate queues terminal records for writing.
func (a *Archive) OnStatusUpdate(v aiqueue.RecordView) {
	if !v.Status.IsFinal() {
		return
	}
	select {
	case a.in <- v:
	default:
		a.log.Warnf("archive: buffer full; dropping id=%s status=%s", v.ID, v.Status)
	}
}

// OnBatchComplete is a no-op; every record was already queued individually.
func (a *Archive) OnBatchComplete([]aiqueue.RecordView) {}

// Run writes queued records and purges expired ones every cleanInterval
// until ctx is done. Records still queued at that point are flushed.
func (a *Archive) Run(ctx context.Context, cleanInterval time.Duration) {
	if cleanInterval <= 0 {
		cleanInterval = time.Second
	}
	ticker := time.NewTicker(cleanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.flush()
			return
		case v := <-a.in:
			a.write(context.Background(), v)
		case <-ticker.C:
			if n, err := a.Purge(ctx, time.Now(), 256); err != nil {
				a.log.Warnf("archive: purge failed ns=%s err=%v", a.cfg.Namespace, err)
			} else if n > 0 {
				a.log.Debugf("archive: purged=%d ns=%s", n, a.cfg.Namespace)
			}
		}
	}
}

func (a *Archive) flush() {
	for {
		select {
		case v := <-a.in:
			a.write(context.Background(), v)
		default:
			return
		}
	}
}

func (a *Archive) write(parent context.Context, v aiqueue.RecordView) {
	ctx, cancel := context.WithTimeout(parent, a.cfg.WriteTimeout)
	defer cancel()
	if err := a.Save(ctx, v); err != nil {
		a.log.Errorf("archive: save failed id=%s err=%v", v.ID, err)
		return
	}
	a.log.Debugf("archive: saved id=%s finding=%s status=%s", v.ID, v.FindingID, v.Status)
}
