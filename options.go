package aiqueue

import "time"

// Defaults sized for a single local inference server that serves one request
// at a time and can take close to a minute per call.
const (
	DefaultConcurrency      = 1
	DefaultMaxRetries       = 3
	DefaultRetryDelay       = 3500 * time.Millisecond
	DefaultRateLimitDelay   = 5 * time.Second
	DefaultUnavailableDelay = 10 * time.Second
	DefaultRequestTimeout   = 53 * time.Second
	DefaultStaleGrace       = 10 * time.Second
	DefaultHealthInterval   = 60 * time.Second
	DefaultIdleThreshold    = 300 * time.Second
	DefaultStaleInterval    = 30 * time.Second
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultShutdownGrace    = 5 * time.Second
	DefaultMaxWorkerBackoff = 10 * time.Second
	DefaultMaxRetryBackoff  = 30 * time.Second
)

type options struct {
	concurrency      int
	maxRetries       int
	retryDelay       time.Duration
	rateLimitDelay   time.Duration
	unavailableDelay time.Duration
	requestTimeout   time.Duration
	staleGrace       time.Duration
	healthInterval   time.Duration
	idleThreshold    time.Duration
	staleInterval    time.Duration
	pollInterval     time.Duration
	shutdownGrace    time.Duration
	maxWorkerBackoff time.Duration
	maxRetryBackoff  time.Duration
	logger           Logger
}

func defaultOptions() options {
	return options{
		concurrency:      DefaultConcurrency,
		maxRetries:       DefaultMaxRetries,
		retryDelay:       DefaultRetryDelay,
		rateLimitDelay:   DefaultRateLimitDelay,
		unavailableDelay: DefaultUnavailableDelay,
		requestTimeout:   DefaultRequestTimeout,
		staleGrace:       DefaultStaleGrace,
		healthInterval:   DefaultHealthInterval,
		idleThreshold:    DefaultIdleThreshold,
		staleInterval:    DefaultStaleInterval,
		pollInterval:     DefaultPollInterval,
		shutdownGrace:    DefaultShutdownGrace,
		maxWorkerBackoff: DefaultMaxWorkerBackoff,
		maxRetryBackoff:  DefaultMaxRetryBackoff,
	}
}

// Option configures an Orchestrator. Non-positive values keep the default.
type Option func(*options)

func positive(d time.Duration, dst *time.Duration) {
	if d > 0 {
		*dst = d
	}
}

// WithConcurrency sets how many backend calls may be outstanding at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithMaxRetries sets the retry budget. A record that fails this many times
// in a row reaches a terminal status.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryDelay sets the base of the exponential backoff.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) { positive(d, &o.retryDelay) }
}

// WithRateLimitDelay sets the cool-down before a rate-limited record is re-queued.
func WithRateLimitDelay(d time.Duration) Option {
	return func(o *options) { positive(d, &o.rateLimitDelay) }
}

// WithUnavailableDelay sets the wait before re-probing an unavailable backend.
func WithUnavailableDelay(d time.Duration) Option {
	return func(o *options) { positive(d, &o.unavailableDelay) }
}

// WithRequestTimeout bounds a single backend call.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { positive(d, &o.requestTimeout) }
}

// WithStaleGrace is added to the request timeout to decide when an
// IN_PROGRESS record is stuck.
func WithStaleGrace(d time.Duration) Option {
	return func(o *options) { positive(d, &o.staleGrace) }
}

// WithHealthInterval sets how often the health monitor runs.
func WithHealthInterval(d time.Duration) Option {
	return func(o *options) { positive(d, &o.healthInterval) }
}

// WithIdleThreshold sets how long the orchestrator must be idle before the
// health monitor probes the backend.
func WithIdleThreshold(d time.Duration) Option {
	return func(o *options) { positive(d, &o.idleThreshold) }
}

// WithStaleInterval sets how often stuck records are swept.
func WithStaleInterval(d time.Duration) Option {
	return func(o *options) { positive(d, &o.staleInterval) }
}

// WithPollInterval sets how long the dispatcher waits on an empty queue
// before checking for shutdown.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { positive(d, &o.pollInterval) }
}

// WithShutdownGrace bounds how long Shutdown waits for goroutines to exit.
func WithShutdownGrace(d time.Duration) Option {
	return func(o *options) { positive(d, &o.shutdownGrace) }
}

// WithMaxWorkerBackoff caps the pause taken right before a retry attempt.
func WithMaxWorkerBackoff(d time.Duration) Option {
	return func(o *options) { positive(d, &o.maxWorkerBackoff) }
}

// WithMaxRetryBackoff caps the delay before a failed record is re-queued.
func WithMaxRetryBackoff(d time.Duration) Option {
	return func(o *options) { positive(d, &o.maxRetryBackoff) }
}

// WithLogger sets the logger. Defaults to FmtLogger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
