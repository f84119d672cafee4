package archive

import (
	"context"
	"time"

	"github.com/UniQw/aiqueue"
	ikeys "github.com/UniQw/aiqueue/internal/keys"
	"github.com/redis/go-redis/v9"
)

const publishTimeout = 5 * time.Second

// Publisher forwards orchestrator events to a Redis pub/sub channel so other
// processes can follow a scan. Like Archive it hands events to Run.
type Publisher struct {
	rdb     redis.UniversalClient
	channel string
	enc     aiqueue.Encoder
	log     aiqueue.Logger
	in      chan aiqueue.Event
}

// NewPublisher creates a publisher for the namespace's events channel.
func NewPublisher(rdb redis.UniversalClient, namespace string, buffer int, log aiqueue.Logger) *Publisher {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = aiqueue.NopLogger{}
	}
	return &Publisher{
		rdb:     rdb,
		channel: ikeys.For(namespace).Events,
		enc:     &aiqueue.JSONEncoder{},
		log:     log,
		in:      make(chan aiqueue.Event, buffer),
	}
}

// Channel returns the pub/sub channel name.
func (p *Publisher) Channel() string { return p.channel }

func (p *Publisher) offer(e aiqueue.Event) {
	select {
	case p.in <- e:
	default:
		p.log.Warnf("publisher: buffer full; dropping type=%s", e.Type)
	}
}

func (p *Publisher) OnStatusUpdate(v aiqueue.RecordView) {
	v.Prompt = ""
	p.offer(aiqueue.Event{Type: aiqueue.EventStatusUpdate, Record: v, At: time.Now()})
}

func (p *Publisher) OnBatchComplete(vs []aiqueue.RecordView) {
	slim := make([]aiqueue.RecordView, len(vs))
	for i, v := range vs {
		v.Prompt = ""
		v.Response = ""
		slim[i] = v
	}
	p.offer(aiqueue.Event{Type: aiqueue.EventBatchComplete, Batch: slim, At: time.Now()})
}

// Run publishes queued events until ctx is done. Events still queued at
// that point are flushed.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case e := <-p.in:
			p.publish(context.Background(), e)
		}
	}
}

func (p *Publisher) flush() {
	for {
		select {
		case e := <-p.in:
			p.publish(context.Background(), e)
		default:
			return
		}
	}
}

func (p *Publisher) publish(parent context.Context, e aiqueue.Event) {
	data, err := p.enc.Encode(e)
	if err != nil {
		p.log.Errorf("publisher: encode failed type=%s err=%v", e.Type, err)
		return
	}
	ctx, cancel := context.WithTimeout(parent, publishTimeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		p.log.Warnf("publisher: publish failed channel=%s err=%v", p.channel, err)
	}
}

// Follow subscribes to the namespace's events and decodes them onto the
// returned channel until ctx is done.
func Follow(ctx context.Context, rdb redis.UniversalClient, namespace string) (<-chan aiqueue.Event, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	sub := rdb.Subscribe(ctx, ikeys.For(namespace).Events)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	enc := &aiqueue.JSONEncoder{}
	out := make(chan aiqueue.Event)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var e aiqueue.Event
				if err := enc.Decode([]byte(m.Payload), &e); err != nil {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
