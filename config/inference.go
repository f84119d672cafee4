package config

import (
	"time"

	"github.com/UniQw/aiqueue/inference"
	"github.com/spf13/viper"
)

// Inference inference backend config struct
type Inference struct {
	Endpoint         string
	Model            string
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	ProbeTimeout     time.Duration
	MaxTokens        int
	Temperature      float64
	MaxPromptLength  int
	TransientRetries int
	TransientBackoff time.Duration
}

func setInferenceDefaults(v *viper.Viper) {
	d := inference.DefaultConfig()
	v.SetDefault("inference.endpoint", d.Endpoint)
	v.SetDefault("inference.model", d.Model)
	v.SetDefault("inference.connect_timeout", d.ConnectTimeout)
	v.SetDefault("inference.read_timeout", d.ReadTimeout)
	v.SetDefault("inference.probe_timeout", d.ProbeTimeout)
	v.SetDefault("inference.max_tokens", d.MaxTokens)
	v.SetDefault("inference.temperature", d.Temperature)
	v.SetDefault("inference.max_prompt_length", d.MaxPromptLength)
	v.SetDefault("inference.transient_retries", d.TransientRetries)
	v.SetDefault("inference.transient_backoff", d.TransientBackoff)
}

func getInferenceConfig(v *viper.Viper) *Inference {
	return &Inference{
		Endpoint:         v.GetString("inference.endpoint"),
		Model:            v.GetString("inference.model"),
		ConnectTimeout:   v.GetDuration("inference.connect_timeout"),
		ReadTimeout:      v.GetDuration("inference.read_timeout"),
		ProbeTimeout:     v.GetDuration("inference.probe_timeout"),
		MaxTokens:        v.GetInt("inference.max_tokens"),
		Temperature:      v.GetFloat64("inference.temperature"),
		MaxPromptLength:  v.GetInt("inference.max_prompt_length"),
		TransientRetries: v.GetInt("inference.transient_retries"),
		TransientBackoff: v.GetDuration("inference.transient_backoff"),
	}
}

// InferenceConfig converts the inference section for inference.NewClient.
func (c *Config) InferenceConfig() inference.Config {
	i := c.Inference
	return inference.Config{
		Endpoint:         i.Endpoint,
		Model:            i.Model,
		ConnectTimeout:   i.ConnectTimeout,
		ReadTimeout:      i.ReadTimeout,
		ProbeTimeout:     i.ProbeTimeout,
		MaxTokens:        i.MaxTokens,
		Temperature:      i.Temperature,
		MaxPromptLength:  i.MaxPromptLength,
		TransientRetries: i.TransientRetries,
		TransientBackoff: i.TransientBackoff,
	}
}
