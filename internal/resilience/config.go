package resilience

import (
	"time"

	"github.com/sells-group/docforge/internal/config"
)

// FromConfig converts the retry section of the app config to a RetryConfig.
// Zero values keep the defaults.
func FromConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMS > 0 {
		cfg.InitialBackoff = time.Duration(c.InitialBackoffMS) * time.Millisecond
	}
	if c.MaxBackoffMS > 0 {
		cfg.MaxBackoff = time.Duration(c.MaxBackoffMS) * time.Millisecond
	}
	if c.Multiplier > 0 {
		cfg.Multiplier = c.Multiplier
	}
	if c.JitterFraction >= 0 {
		cfg.JitterFraction = c.JitterFraction
	}
	return cfg
}

// BreakerFromConfig builds a Breaker for the named service from the retry
// section of the app config.
func BreakerFromConfig(name string, c config.RetryConfig) *Breaker {
	return NewBreaker(name, BreakerConfig{
		FailureThreshold: c.FailureThreshold,
		ResetTimeout:     time.Duration(c.ResetTimeoutSecs) * time.Second,
	})
}
