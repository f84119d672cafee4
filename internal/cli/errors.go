package cli

import "errors"

var errRedisDisabled = errors.New("redis is not configured (set redis.addr or AIQUEUE_REDIS_ADDR)")

const startHint = "make sure the inference server is running (ollama serve)"
