package research

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/compass-cli/internal/budget"
	"github.com/sells-group/compass-cli/internal/cost"
	"github.com/sells-group/compass-cli/internal/monitoring"
	"github.com/sells-group/compass-cli/internal/resilience"
)

// ToolkitConfig tunes a Toolkit. Zero values take the defaults.
type ToolkitConfig struct {
	RatePerMinute  int
	CacheTTL       time.Duration
	SearchTimeout  time.Duration
	ExtractTimeout time.Duration
	Policy         resilience.Policy
}

func (c ToolkitConfig) withDefaults() ToolkitConfig {
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = 30
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 30 * time.Second
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 120 * time.Second
	}
	if c.Policy.Attempts <= 0 {
		c.Policy = resilience.DefaultPolicy()
	}
	return c
}

// Toolkit is the single entry point for research calls. Each call is served
// from cache when possible; otherwise it is budget checked, rate limited,
// sent through the provider chain with a breaker and retries per provider,
// and recorded in the cost ledger.
type Toolkit struct {
	chain    *Chain
	cache    Cache
	ledger   *budget.Ledger
	calc     *cost.Calculator
	breakers *resilience.Breakers
	limiter  *rate.Limiter
	cfg      ToolkitConfig
}

// NewToolkit creates a Toolkit. cache may be nil for no caching.
func NewToolkit(chain *Chain, cache Cache, ledger *budget.Ledger, calc *cost.Calculator, breakers *resilience.Breakers, cfg ToolkitConfig) *Toolkit {
	cfg = cfg.withDefaults()
	if cache == nil {
		cache = NopCache{}
	}
	return &Toolkit{
		chain:    chain,
		cache:    cache,
		ledger:   ledger,
		calc:     calc,
		breakers: breakers,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1),
		cfg:      cfg,
	}
}

// Search runs a web search.
func (t *Toolkit) Search(ctx context.Context, q SearchQuery) (*Response, error) {
	return t.call(ctx, OpSearch, q, func(ctx context.Context, p Provider) (*Response, error) {
		return p.Search(ctx, q)
	})
}

// Map lists the URLs of a site.
func (t *Toolkit) Map(ctx context.Context, q MapQuery) (*Response, error) {
	return t.call(ctx, OpMap, q, func(ctx context.Context, p Provider) (*Response, error) {
		return p.Map(ctx, q)
	})
}

// Extract returns the readable content of each URL.
func (t *Toolkit) Extract(ctx context.Context, q ExtractQuery) (*Response, error) {
	return t.call(ctx, OpExtract, q, func(ctx context.Context, p Provider) (*Response, error) {
		return p.Extract(ctx, q)
	})
}

// Crawl follows links from a URL and returns the pages found.
func (t *Toolkit) Crawl(ctx context.Context, q CrawlQuery) (*Response, error) {
	return t.call(ctx, OpCrawl, q, func(ctx context.Context, p Provider) (*Response, error) {
		return p.Crawl(ctx, q)
	})
}

// Breakers exposes the per-provider breakers for health reporting.
func (t *Toolkit) Breakers() *resilience.Breakers {
	return t.breakers
}

func (t *Toolkit) call(ctx context.Context, op Op, params any, fn Attempt) (*Response, error) {
	usage := UsageFrom(ctx)
	log := zap.L().With(zap.String("op", string(op)))

	key, err := CacheKey(op, params)
	if err != nil {
		return nil, err
	}
	if data, ok, err := t.cache.Get(ctx, key); err != nil {
		log.Warn("research: cache read failed", zap.Error(err))
	} else if ok {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			resp.Cached = true
			monitoring.CacheHits.WithLabelValues(string(op)).Inc()
			usage.recordHit()
			return &resp, nil
		}
		log.Warn("research: discarding corrupt cache entry", zap.String("key", key))
	}

	kind := budget.Kind(budget.KindResearch, string(op))
	if err := t.ledger.Allow(ctx, t.ledger.EstimateCost(kind, 0)); err != nil {
		usage.recordFailure()
		return nil, err
	}

	resp, err := t.chain.Do(ctx, op, t.guarded(op, fn))
	if err != nil {
		usage.recordFailure()
		return nil, err
	}

	spend := t.calc.Credits(resp.Credits) + t.calc.Jina(resp.Tokens)
	if _, err := t.ledger.RecordCost(ctx, kind, spend, resp.Credits, map[string]any{
		"provider": resp.Provider,
		"tokens":   resp.Tokens,
	}); err != nil {
		log.Warn("research: record cost failed", zap.Error(err))
	}
	usage.recordCall(resp.Provider, resp.Credits, spend)

	if data, err := json.Marshal(resp); err == nil {
		if err := t.cache.Set(ctx, key, data, t.cfg.CacheTTL); err != nil {
			log.Warn("research: cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

// guarded wraps fn with the rate limit, per-op timeout, provider breaker and
// retries.
func (t *Toolkit) guarded(op Op, fn Attempt) Attempt {
	timeout := t.cfg.ExtractTimeout
	if op == OpSearch || op == OpMap {
		timeout = t.cfg.SearchTimeout
	}

	return func(ctx context.Context, p Provider) (*Response, error) {
		br := t.breakers.For(p.Name())
		policy := t.cfg.Policy
		policy.OnRetry = resilience.LogRetries("research", string(op)+"/"+p.Name())

		resp, err := resilience.RetryVal(ctx, policy, func(ctx context.Context) (*Response, error) {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return resilience.Guard(ctx, br, func(ctx context.Context) (*Response, error) {
				cctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return fn(cctx, p)
			})
		})

		result := "ok"
		if err != nil {
			result = "error"
		}
		monitoring.ToolCalls.WithLabelValues(string(op), p.Name(), result).Inc()
		monitoring.BreakerState.WithLabelValues(p.Name()).Set(float64(br.State()))
		return resp, err
	}
}
