package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/compass-cli/internal/runstate"
)

// Options tune a single execution.
type Options struct {
	// OnNodeDone is called after a node's delta has been merged, with the
	// delta and a snapshot taken right after the merge. It is not called for
	// skipped nodes.
	OnNodeDone func(ctx context.Context, node Node, delta runstate.Delta, snap runstate.State)
}

// Execute runs every node of the graph against the accumulator. A node that
// panics contributes an error delta instead of its result, so a failing
// stage never stops its siblings. Execute only returns an error when ctx is
// cancelled before the graph drained.
func (g *Graph) Execute(ctx context.Context, acc *runstate.Accumulator, opts Options) error {
	log := zap.L().With(zap.String("run_id", acc.Snapshot().RunID))

	done := make(map[string]chan struct{}, len(g.nodes))
	for name := range g.nodes {
		done[name] = make(chan struct{})
	}

	var (
		skipMu  sync.Mutex
		skipped = map[string]bool{}
	)
	isSkipped := func(name string) bool {
		skipMu.Lock()
		defer skipMu.Unlock()
		return skipped[name]
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, name := range g.order {
		node := g.nodes[name]
		eg.Go(func() error {
			defer close(done[node.Name])

			for _, dep := range node.After {
				select {
				case <-done[dep]:
				case <-egCtx.Done():
					return eris.Wrapf(egCtx.Err(), "workflow: node %s", node.Name)
				}
			}
			if err := egCtx.Err(); err != nil {
				return eris.Wrapf(err, "workflow: node %s", node.Name)
			}
			if isSkipped(node.Name) {
				log.Info("workflow: node skipped", zap.String("node", node.Name))
				return nil
			}

			delta := runNode(egCtx, node, acc.Snapshot())
			acc.Apply(delta)

			if g.router != nil && g.router.After == node.Name {
				route := g.router.Decide(acc.Snapshot())
				acc.Apply(runstate.Delta{Route: route})

				skipMu.Lock()
				for _, s := range g.router.Skip[route] {
					skipped[s] = true
				}
				skipMu.Unlock()

				log.Info("workflow: route decided",
					zap.String("after", node.Name),
					zap.String("route", string(route)),
					zap.Strings("skipped", g.router.Skip[route]),
				)
			}

			if opts.OnNodeDone != nil {
				opts.OnNodeDone(egCtx, node, delta, acc.Snapshot())
			}
			return nil
		})
	}

	return eg.Wait()
}

// runNode calls the node and turns a panic into the node's error delta.
func runNode(ctx context.Context, node Node, snap runstate.State) (delta runstate.Delta) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("workflow: node panicked",
				zap.String("node", node.Name),
				zap.Any("panic", r),
			)
			delta = runstate.ErrorDelta(node.Name, fmt.Sprintf("panic: %v", r))
			delta.CurrentPhase = node.Phase
		}
	}()
	d := node.Run(ctx, snap)
	if d.CurrentPhase == "" {
		d.CurrentPhase = node.Phase
	}
	return d
}
