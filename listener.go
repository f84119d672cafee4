package aiqueue

import (
	"sync"
	"time"
)

// Listener observes record lifecycle changes. Callbacks run synchronously on
// the goroutine that caused the change and must not block.
type Listener interface {
	OnStatusUpdate(RecordView)
	OnBatchComplete([]RecordView)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	StatusUpdate  func(RecordView)
	BatchComplete func([]RecordView)
}

func (l *ListenerFuncs) OnStatusUpdate(v RecordView) {
	if l.StatusUpdate != nil {
		l.StatusUpdate(v)
	}
}

func (l *ListenerFuncs) OnBatchComplete(vs []RecordView) {
	if l.BatchComplete != nil {
		l.BatchComplete(vs)
	}
}

// EventType distinguishes Event payloads.
type EventType string

const (
	EventStatusUpdate  EventType = "status_update"
	EventBatchComplete EventType = "batch_complete"
)

// Event is a listener callback delivered over a channel.
type Event struct {
	Type   EventType    `json:"type"`
	Record RecordView   `json:"record,omitzero"`
	Batch  []RecordView `json:"batch,omitempty"`
	At     time.Time    `json:"at"`
}

// AddListener registers l. Registering the same listener twice delivers
// every event twice.
func (o *Orchestrator) AddListener(l Listener) {
	if l == nil {
		return
	}
	o.lmu.Lock()
	defer o.lmu.Unlock()
	o.listeners = append(o.listeners, l)
}

// RemoveListener unregisters the first registration of l. It reports whether
// l was registered.
func (o *Orchestrator) RemoveListener(l Listener) bool {
	o.lmu.Lock()
	defer o.lmu.Unlock()
	for i, x := range o.listeners {
		if sameListener(x, l) {
			o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// sameListener compares listeners without panicking on uncomparable dynamic types.
func sameListener(a, b Listener) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// Subscribe delivers events on a buffered channel. Events that do not fit in
// the buffer are dropped with a warning. The returned func unsubscribes and
// closes the channel.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	cl := &chanListener{ch: make(chan Event, buffer), log: o.log}
	o.AddListener(cl)
	var once sync.Once
	return cl.ch, func() {
		once.Do(func() {
			o.RemoveListener(cl)
			cl.close()
		})
	}
}

type chanListener struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
	log    Logger
}

func (c *chanListener) send(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- e:
	default:
		c.log.Warnf("subscriber buffer full; dropping event type=%s id=%s", e.Type, e.Record.ID)
	}
}

func (c *chanListener) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

func (c *chanListener) OnStatusUpdate(v RecordView) {
	c.send(Event{Type: EventStatusUpdate, Record: v, At: time.Now()})
}

func (c *chanListener) OnBatchComplete(vs []RecordView) {
	c.send(Event{Type: EventBatchComplete, Batch: vs, At: time.Now()})
}

func (o *Orchestrator) snapshotListeners() []Listener {
	o.lmu.RLock()
	defer o.lmu.RUnlock()
	return append([]Listener(nil), o.listeners...)
}

func (o *Orchestrator) notify(r *Record) {
	v := r.View()
	for _, l := range o.snapshotListeners() {
		o.safeCall("status", func() { l.OnStatusUpdate(v) })
	}
}

func (o *Orchestrator) notifyBatch(vs []RecordView) {
	for _, l := range o.snapshotListeners() {
		o.safeCall("batch", func() { l.OnBatchComplete(vs) })
	}
}

func (o *Orchestrator) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Errorf("listener panicked: callback=%s err=%v", kind, r)
		}
	}()
	fn()
}
