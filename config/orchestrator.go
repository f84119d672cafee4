package config

import (
	"time"

	"github.com/UniQw/aiqueue"
	"github.com/spf13/viper"
)

// Orchestrator request orchestration config struct
type Orchestrator struct {
	Concurrency      int
	MaxRetries       int
	RetryDelay       time.Duration
	RateLimitDelay   time.Duration
	UnavailableDelay time.Duration
	RequestTimeout   time.Duration
	StaleGrace       time.Duration
	HealthInterval   time.Duration
	IdleThreshold    time.Duration
	StaleInterval    time.Duration
	ShutdownGrace    time.Duration
	MaxWorkerBackoff time.Duration
	MaxRetryBackoff  time.Duration
	// Template overrides the report prompt template; empty uses the default.
	Template string
}

func setOrchestratorDefaults(v *viper.Viper) {
	v.SetDefault("orchestrator.concurrency", aiqueue.DefaultConcurrency)
	v.SetDefault("orchestrator.max_retries", aiqueue.DefaultMaxRetries)
	v.SetDefault("orchestrator.retry_delay", aiqueue.DefaultRetryDelay)
	v.SetDefault("orchestrator.rate_limit_delay", aiqueue.DefaultRateLimitDelay)
	v.SetDefault("orchestrator.unavailable_delay", aiqueue.DefaultUnavailableDelay)
	v.SetDefault("orchestrator.request_timeout", aiqueue.DefaultRequestTimeout)
	v.SetDefault("orchestrator.stale_grace", aiqueue.DefaultStaleGrace)
	v.SetDefault("orchestrator.health_interval", aiqueue.DefaultHealthInterval)
	v.SetDefault("orchestrator.idle_threshold", aiqueue.DefaultIdleThreshold)
	v.SetDefault("orchestrator.stale_interval", aiqueue.DefaultStaleInterval)
	v.SetDefault("orchestrator.shutdown_grace", aiqueue.DefaultShutdownGrace)
	v.SetDefault("orchestrator.max_worker_backoff", aiqueue.DefaultMaxWorkerBackoff)
	v.SetDefault("orchestrator.max_retry_backoff", aiqueue.DefaultMaxRetryBackoff)
	v.SetDefault("orchestrator.template", "")
}

func getOrchestratorConfig(v *viper.Viper) *Orchestrator {
	return &Orchestrator{
		Concurrency:      v.GetInt("orchestrator.concurrency"),
		MaxRetries:       v.GetInt("orchestrator.max_retries"),
		RetryDelay:       v.GetDuration("orchestrator.retry_delay"),
		RateLimitDelay:   v.GetDuration("orchestrator.rate_limit_delay"),
		UnavailableDelay: v.GetDuration("orchestrator.unavailable_delay"),
		RequestTimeout:   v.GetDuration("orchestrator.request_timeout"),
		StaleGrace:       v.GetDuration("orchestrator.stale_grace"),
		HealthInterval:   v.GetDuration("orchestrator.health_interval"),
		IdleThreshold:    v.GetDuration("orchestrator.idle_threshold"),
		StaleInterval:    v.GetDuration("orchestrator.stale_interval"),
		ShutdownGrace:    v.GetDuration("orchestrator.shutdown_grace"),
		MaxWorkerBackoff: v.GetDuration("orchestrator.max_worker_backoff"),
		MaxRetryBackoff:  v.GetDuration("orchestrator.max_retry_backoff"),
		Template:         v.GetString("orchestrator.template"),
	}
}

// OrchestratorOptions converts the orchestrator section to aiqueue options.
// The logger is left to the caller.
func (c *Config) OrchestratorOptions() []aiqueue.Option {
	o := c.Orchestrator
	return []aiqueue.Option{
		aiqueue.WithConcurrency(o.Concurrency),
		aiqueue.WithMaxRetries(o.MaxRetries),
		aiqueue.WithRetryDelay(o.RetryDelay),
		aiqueue.WithRateLimitDelay(o.RateLimitDelay),
		aiqueue.WithUnavailableDelay(o.UnavailableDelay),
		aiqueue.WithRequestTimeout(o.RequestTimeout),
		aiqueue.WithStaleGrace(o.StaleGrace),
		aiqueue.WithHealthInterval(o.HealthInterval),
		aiqueue.WithIdleThreshold(o.IdleThreshold),
		aiqueue.WithStaleInterval(o.StaleInterval),
		aiqueue.WithShutdownGrace(o.ShutdownGrace),
		aiqueue.WithMaxWorkerBackoff(o.MaxWorkerBackoff),
		aiqueue.WithMaxRetryBackoff(o.MaxRetryBackoff),
	}
}
