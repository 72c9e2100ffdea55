package firecrawl

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultPollInitial = 2 * time.Second
	defaultPollCap     = 15 * time.Second
	defaultPollTimeout = 5 * time.Minute
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.initial = d
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.cap = d
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// PollCrawl polls GetCrawlStatus until the crawl completes, fails, or the
// context expires.
func PollCrawl(ctx context.Context, client Client, id string, opts ...PollOption) (*CrawlStatusResponse, error) {
	return pollUntil(ctx, "crawl", id, opts, func(ctx context.Context) (*CrawlStatusResponse, string, error) {
		st, err := client.GetCrawlStatus(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return st, st.Status, nil
	})
}

// PollBatchScrape polls GetBatchScrapeStatus until the batch completes, fails,
// or the context expires.
func PollBatchScrape(ctx context.Context, client Client, id string, opts ...PollOption) (*BatchScrapeStatusResponse, error) {
	return pollUntil(ctx, "batch scrape", id, opts, func(ctx context.Context) (*BatchScrapeStatusResponse, string, error) {
		st, err := client.GetBatchScrapeStatus(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return st, st.Status, nil
	})
}

// pollUntil calls check with exponential backoff (2s, 4s, 8s, then capped)
// until it reports "completed" or "failed".
func pollUntil[T any](ctx context.Context, what, id string, opts []PollOption, check func(context.Context) (*T, string, error)) (*T, error) {
	cfg := pollConfig{
		initial: defaultPollInitial,
		cap:     defaultPollCap,
		timeout: defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for {
		out, status, err := check(ctx)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("firecrawl: poll %s %s", what, id))
		}

		switch status {
		case "completed":
			return out, nil
		case "failed":
			return nil, eris.Errorf("firecrawl: %s %s failed", what, id)
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("firecrawl: poll %s %s timed out", what, id))
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}
