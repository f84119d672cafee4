package runtime

import (
	"context"
	"sync"
	"time"
)

// Logger is a minimal logging interface used internally by the runtime.
// It mirrors the public logger in the root package to avoid an import cycle.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// Loop is one background goroutine owned by the runtime.
type Loop struct {
	Name string
	// Interval > 0 runs Run on a ticker; zero calls Run once and expects it to
	// return when ctx is done.
	Interval time.Duration
	Run      func(ctx context.Context)
}

type Config struct {
	Loops  []Loop
	Logger Logger
}

// Runtime starts and stops a fixed set of background loops.
type Runtime struct {
	cfg     Config
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	log     Logger
}

// New creates a runtime; nothing runs until Start.
func New(cfg Config) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	lg := cfg.Logger
	if lg == nil {
		lg = noopLogger{}
	}
	return &Runtime{cfg: cfg, ctx: ctx, cancel: cancel, log: lg}
}

// Context is cancelled when the runtime stops.
func (rt *Runtime) Context() context.Context { return rt.ctx }

// Start launches every loop. It reports false if the runtime was already
// started or has been stopped.
func (rt *Runtime) Start() bool {
	rt.mu.Lock()
	if rt.started || rt.stopped {
		rt.log.Warnf("runtime already started; ignoring Start()")
		rt.mu.Unlock()
		return false
	}
	rt.started = true
	rt.mu.Unlock()
	rt.log.Infof("runtime starting: loops=%d", len(rt.cfg.Loops))

	for _, l := range rt.cfg.Loops {
		rt.wg.Add(1)
		go func(l Loop) {
			defer rt.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					rt.log.Errorf("loop %s panicked: %v", l.Name, r)
				}
			}()
			if l.Interval <= 0 {
				l.Run(rt.ctx)
				return
			}
			ticker := time.NewTicker(l.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-rt.ctx.Done():
					return
				case <-ticker.C:
					rt.tick(l)
				}
			}
		}(l)
	}
	return true
}

func (rt *Runtime) tick(l Loop) {
	defer func() {
		if r := recover(); r != nil {
			rt.log.Errorf("loop %s tick panicked: %v", l.Name, r)
		}
	}()
	l.Run(rt.ctx)
}

// Stop cancels the internal context and waits up to grace for all loops to
// exit. A non-positive grace waits indefinitely. It reports whether every
// loop exited in time.
func (rt *Runtime) Stop(grace time.Duration) bool {
	rt.mu.Lock()
	if rt.stopped {
		rt.log.Warnf("runtime already stopped; ignoring Stop()")
		rt.mu.Unlock()
		return true
	}
	rt.stopped = true
	rt.mu.Unlock()
	rt.log.Infof("runtime stopping")

	rt.cancel()
	done := make(chan struct{})
	go func() {
		rt.wg.Wait()
		close(done)
	}()
	if grace <= 0 {
		<-done
		return true
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		rt.log.Warnf("runtime stop: loops still running after %s", grace)
		return false
	}
}
