package resilience

import (
	"time"
)

// PolicyFrom converts config values to a Policy. Zero values keep defaults.
func PolicyFrom(attempts, baseMs, ceilingMs int, factor, jitter float64) Policy {
	p := DefaultPolicy()
	if attempts > 0 {
		p.Attempts = attempts
	}
	if baseMs > 0 {
		p.Base = time.Duration(baseMs) * time.Millisecond
	}
	if ceilingMs > 0 {
		p.Ceiling = time.Duration(ceilingMs) * time.Millisecond
	}
	if factor > 0 {
		p.Factor = factor
	}
	if jitter >= 0 {
		p.Jitter = jitter
	}
	return p
}

// BreakerFrom converts config values to a BreakerConfig.
func BreakerFrom(threshold, cooldownSecs int) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if threshold > 0 {
		cfg.Threshold = threshold
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}
