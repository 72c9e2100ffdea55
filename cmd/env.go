package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/agent"
	"github.com/sells-group/compass-cli/internal/budget"
	"github.com/sells-group/compass-cli/internal/config"
	"github.com/sells-group/compass-cli/internal/cost"
	"github.com/sells-group/compass-cli/internal/pipeline"
	"github.com/sells-group/compass-cli/internal/research"
	"github.com/sells-group/compass-cli/internal/resilience"
	"github.com/sells-group/compass-cli/internal/store"
	anthropicpkg "github.com/sells-group/compass-cli/pkg/anthropic"
	"github.com/sells-group/compass-cli/pkg/firecrawl"
	"github.com/sells-group/compass-cli/pkg/jina"
)

// pipelineEnv holds the store, ledger, toolkit and pipeline used by the
// run and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Ledger   *budget.Ledger
	Toolkit  *research.Toolkit
	Pipeline *pipeline.Pipeline
	redis    *redis.Client
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.redis != nil {
		_ = pe.redis.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "compass.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initCalculator returns the cost calculator, loading the rate file if set.
func initCalculator() (*cost.Calculator, error) {
	rates := cost.DefaultRates()
	if cfg.Pricing.File != "" {
		r, err := cost.LoadRates(cfg.Pricing.File)
		if err != nil {
			return nil, eris.Wrap(err, "load pricing")
		}
		rates = r
	}
	return cost.NewCalculator(rates), nil
}

func newLedger(st store.Store, calc *cost.Calculator) *budget.Ledger {
	return budget.New(st, calc, budget.Config{
		CapUSD:        cfg.Budget.CapUSD,
		PerRunWarnUSD: cfg.Budget.PerRunWarnUSD,
		Strict:        cfg.Budget.Strict,
		Model:         cfg.Anthropic.Model,
	})
}

// initCache picks the tool cache backend. The redis client, when opened,
// is returned so the caller can close it.
func initCache(ctx context.Context, st store.Store) (research.Cache, *redis.Client, error) {
	switch cfg.Cache.Driver {
	case "", "store":
		return research.NewStoreCache(st), nil, nil
	case "none":
		return research.NopCache{}, nil, nil
	case "redis":
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, nil, eris.Wrap(err, "ping redis")
		}
		return research.NewRedisCache(rc, cfg.Redis.Prefix), rc, nil
	default:
		return nil, nil, eris.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

// initProviders builds the research provider chain in configured order.
func initProviders(calc *cost.Calculator) (*research.Chain, error) {
	var providers []research.Provider
	for _, name := range cfg.Research.Providers {
		switch name {
		case "firecrawl":
			if cfg.Firecrawl.Key == "" {
				zap.L().Warn("firecrawl key not set, skipping provider")
				continue
			}
			fc := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
			providers = append(providers, research.NewFirecrawlProvider(fc, calc))
		case "jina":
			opts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
			if cfg.Jina.SearchBaseURL != "" {
				opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
			}
			providers = append(providers, research.NewJinaProvider(jina.NewClient(cfg.Jina.Key, opts...)))
		case "direct":
			providers = append(providers, research.NewDirectProvider(cfg.Research.UserAgent))
		default:
			return nil, eris.Errorf("unknown research provider: %s", name)
		}
	}
	if len(providers) == 0 {
		return nil, eris.New("no research providers configured")
	}
	return research.NewChain(providers...), nil
}

// initPipeline validates config for mode, then wires the store, ledger,
// research toolkit, reasoning engine and pipeline. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, mode config.Mode) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	calc, err := initCalculator()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st}

	cache, rc, err := initCache(ctx, st)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.redis = rc

	chain, err := initProviders(calc)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Ledger = newLedger(st, calc)
	breakers := resilience.NewBreakers(resilience.BreakerFrom(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs))
	env.Toolkit = research.NewToolkit(chain, cache, env.Ledger, calc, breakers, research.ToolkitConfig{
		RatePerMinute:  cfg.Research.RatePerMinute,
		CacheTTL:       time.Duration(cfg.Cache.TTLHours) * time.Hour,
		SearchTimeout:  time.Duration(cfg.Research.SearchTimeoutSecs) * time.Second,
		ExtractTimeout: time.Duration(cfg.Research.ExtractTimeoutSecs) * time.Second,
		Policy: resilience.PolicyFrom(
			cfg.Retry.MaxAttempts,
			cfg.Retry.InitialBackoffMs,
			cfg.Retry.MaxBackoffMs,
			cfg.Retry.Multiplier,
			cfg.Retry.JitterFraction,
		),
	})

	engine := agent.NewEngine(anthropicpkg.NewClient(cfg.Anthropic.Key), env.Ledger, calc, agent.Config{
		Model:       cfg.Anthropic.Model,
		MaxTurns:    cfg.Anthropic.MaxTurns,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		TurnTimeout: time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
	})

	p, err := pipeline.New(cfg, st, engine, env.Toolkit, env.Ledger)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "build pipeline")
	}
	env.Pipeline = p

	zap.L().Debug("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("cache", cfg.Cache.Driver),
		zap.Strings("providers", cfg.Research.Providers),
	)
	return env, nil
}
