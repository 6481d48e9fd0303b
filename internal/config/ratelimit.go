package config

import (
	"time"
)

// RateLimitConfig controls the Redis token-bucket limiter applied to
// the booking API.  When Enabled is false or no Redis client could be
// constructed, the limiter middleware becomes a pass-through.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

// LoadRateLimitConfig reads environment variables to build a
// RateLimitConfig, applying sane floors so a misconfigured limiter can
// never lock the API shut.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        getenv("RATE_LIMIT_ENABLED", "true") == "true",
		Capacity:       intenv("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   intenv("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: durenv("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            durenv("RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:         getenv("RATE_LIMIT_PREFIX", "rl"),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}

func durenv(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
