package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Attempt runs one operation against one provider.
type Attempt func(ctx context.Context, p Provider) (*Response, error)

// Chain tries providers in priority order, returning the first success.
type Chain struct {
	providers []Provider
}

// NewChain creates a Chain. Providers are tried in the order given.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Providers returns the providers in priority order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// Do runs attempt against each provider supporting op until one succeeds.
func (c *Chain) Do(ctx context.Context, op Op, attempt Attempt) (*Response, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.Supports(op) {
			continue
		}
		resp, err := attempt(ctx, p)
		if err == nil && resp != nil {
			resp.Provider = p.Name()
			return resp, nil
		}
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("research: %s cancelled", op))
		}
		if err == nil {
			err = eris.Errorf("research: %s returned no response", p.Name())
		}
		zap.L().Debug("research: provider failed, trying next",
			zap.String("op", string(op)),
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		lastErr = err
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, fmt.Sprintf("research: all providers failed for %s", op))
	}
	return nil, eris.Errorf("research: no provider supports %s", op)
}
