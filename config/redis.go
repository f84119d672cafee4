package config

import (
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Redis redis config struct. An empty Addr disables every Redis feature.
type Redis struct {
	Addr     string
	Username string
	Password string
	DB       int
}

func setRedisDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

func getRedisConfig(v *viper.Viper) *Redis {
	return &Redis{
		Addr:     v.GetString("redis.addr"),
		Username: v.GetString("redis.username"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}
}

// Enabled reports whether a Redis address is configured.
func (r *Redis) Enabled() bool { return r != nil && r.Addr != "" }

// Options returns go-redis client options.
func (r *Redis) Options() *redis.Options {
	return &redis.Options{Addr: r.Addr, Username: r.Username, Password: r.Password, DB: r.DB}
}
