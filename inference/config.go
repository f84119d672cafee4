package inference

import (
	"errors"
	"strings"
	"time"
)

// Default values mirror what a local Ollama install needs: generation on a
// consumer GPU routinely takes tens of seconds per call.
const (
	DefaultEndpoint         = "http://localhost:11434"
	DefaultModel            = "qwen2.5-coder:7b"
	DefaultConnectTimeout   = 17500 * time.Millisecond
	DefaultReadTimeout      = 52500 * time.Millisecond
	DefaultProbeTimeout     = 5 * time.Second
	DefaultMaxTokens        = 2000
	DefaultTemperature      = 0.7
	DefaultMaxPromptLength  = 10000
	DefaultTransientRetries = 2
	DefaultTransientBackoff = time.Second

	GeneratePath = "/api/generate"
	TagsPath     = "/api/tags"
)

// Config holds the values a Client reads once at construction.
type Config struct {
	// Endpoint is the base URL of the inference server.
	Endpoint string
	// Model is the model name sent with every request.
	Model string
	// ConnectTimeout bounds TCP connection establishment.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for the response, headers and body.
	ReadTimeout time.Duration
	// ProbeTimeout bounds IsAvailable.
	ProbeTimeout time.Duration
	// MaxTokens is sent as options.num_predict.
	MaxTokens int
	// Temperature is sent as options.temperature. Zero is kept as is.
	Temperature float64
	// MaxPromptLength is the longest accepted prompt, in runes.
	MaxPromptLength int
	// TransientRetries is the number of extra attempts made for connection
	// failures only. Zero disables the internal loop.
	TransientRetries int
	// TransientBackoff is multiplied by the attempt number between attempts.
	TransientBackoff time.Duration
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() Config {
	return Config{
		Endpoint:         DefaultEndpoint,
		Model:            DefaultModel,
		ConnectTimeout:   DefaultConnectTimeout,
		ReadTimeout:      DefaultReadTimeout,
		ProbeTimeout:     DefaultProbeTimeout,
		MaxTokens:        DefaultMaxTokens,
		Temperature:      DefaultTemperature,
		MaxPromptLength:  DefaultMaxPromptLength,
		TransientRetries: DefaultTransientRetries,
		TransientBackoff: DefaultTransientBackoff,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("inference: endpoint is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("inference: model is required")
	}
	if c.ConnectTimeout < 0 || c.ReadTimeout < 0 || c.ProbeTimeout < 0 {
		return errors.New("inference: timeouts must not be negative")
	}
	if c.MaxPromptLength < 0 {
		return errors.New("inference: max prompt length must not be negative")
	}
	if c.TransientRetries < 0 {
		return errors.New("inference: transient retries must not be negative")
	}
	return nil
}

// withDefaults fills zero values so a partially populated Config still works.
// Temperature and TransientRetries are left alone; zero is valid for both.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.MaxPromptLength == 0 {
		c.MaxPromptLength = d.MaxPromptLength
	}
	if c.TransientBackoff == 0 {
		c.TransientBackoff = d.TransientBackoff
	}
	return c
}
