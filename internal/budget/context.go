package budget

import "context"

type runIDKey struct{}

// WithRunID returns a context carrying the active run id. Ledger entries
// recorded under it are attributed to that run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id carried by ctx, or "".
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
