// Package config loads aiqueue settings from an optional YAML file,
// AIQUEUE_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AIQUEUE_INFERENCE_MODEL.
const EnvPrefix = "AIQUEUE"

// Config represents the configuration implementation.
type Config struct {
	Inference    *Inference
	Orchestrator *Orchestrator
	Logger       *Logger
	Redis        *Redis
	Archive      *Archive
	Viper        *viper.Viper
}

// Load reads the configuration. An empty path searches for config.yaml in
// the working directory and $HOME/.aiqueue; a missing file is not an error
// in that case.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.aiqueue")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Inference:    getInferenceConfig(v),
		Orchestrator: getOrchestratorConfig(v),
		Logger:       getLoggerConfig(v),
		Redis:        getRedisConfig(v),
		Archive:      getArchiveConfig(v),
		Viper:        v,
	}
	if err := cfg.InferenceConfig().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	setInferenceDefaults(v)
	setOrchestratorDefaults(v)
	setLoggerDefaults(v)
	setRedisDefaults(v)
	setArchiveDefaults(v)
}
