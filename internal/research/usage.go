package research

import (
	"context"
	"sync"
)

// Usage collects research spend for one stage invocation.
// A nil *Usage ignores every record.
type Usage struct {
	mu        sync.Mutex
	calls     int
	cacheHits int
	failures  int
	credits   float64
	costUSD   float64
	providers map[string]int
}

// UsageSnapshot is a point-in-time copy of a Usage.
type UsageSnapshot struct {
	Calls     int            `json:"calls"`
	CacheHits int            `json:"cache_hits"`
	Failures  int            `json:"failures"`
	Credits   float64        `json:"credits"`
	CostUSD   float64        `json:"cost_usd"`
	Providers map[string]int `json:"providers,omitempty"`
}

func (u *Usage) recordCall(provider string, credits, costUSD float64) {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.credits += credits
	u.costUSD += costUSD
	if u.providers == nil {
		u.providers = map[string]int{}
	}
	u.providers[provider]++
}

func (u *Usage) recordHit() {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.cacheHits++
	u.mu.Unlock()
}

func (u *Usage) recordFailure() {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.failures++
	u.mu.Unlock()
}

// Snapshot returns the totals so far.
func (u *Usage) Snapshot() UsageSnapshot {
	if u == nil {
		return UsageSnapshot{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	s := UsageSnapshot{
		Calls:     u.calls,
		CacheHits: u.cacheHits,
		Failures:  u.failures,
		Credits:   u.credits,
		CostUSD:   u.costUSD,
	}
	if len(u.providers) > 0 {
		s.Providers = make(map[string]int, len(u.providers))
		for k, v := range u.providers {
			s.Providers[k] = v
		}
	}
	return s
}

type usageKey struct{}

// WithUsage binds a collector to ctx; toolkit calls made with the returned
// context are recorded into u.
func WithUsage(ctx context.Context, u *Usage) context.Context {
	return context.WithValue(ctx, usageKey{}, u)
}

// UsageFrom returns the collector bound to ctx, or nil.
func UsageFrom(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}
