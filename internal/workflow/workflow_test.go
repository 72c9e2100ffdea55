package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func noop(context.Context, runstate.State) runstate.Delta { return runstate.Delta{} }

func newAcc() *runstate.Accumulator {
	return runstate.NewAccumulator(runstate.New("run-1", model.Company{Name: "Acme"}))
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		nodes   []Node
		router  *Router
		wantErr string
	}{
		{
			name:    "empty name",
			nodes:   []Node{{Run: noop}},
			wantErr: "empty name",
		},
		{
			name:    "missing run",
			nodes:   []Node{{Name: "a"}},
			wantErr: "no run func",
		},
		{
			name:    "duplicate",
			nodes:   []Node{{Name: "a", Run: noop}, {Name: "a", Run: noop}},
			wantErr: "duplicate node",
		},
		{
			name:    "unknown dependency",
			nodes:   []Node{{Name: "a", After: []string{"ghost"}, Run: noop}},
			wantErr: "unknown node \"ghost\"",
		},
		{
			name: "cycle",
			nodes: []Node{
				{Name: "a", After: []string{"c"}, Run: noop},
				{Name: "b", After: []string{"a"}, Run: noop},
				{Name: "c", After: []string{"b"}, Run: noop},
			},
			wantErr: "cycle",
		},
		{
			name:    "router on unknown node",
			nodes:   []Node{{Name: "a", Run: noop}},
			router:  &Router{After: "ghost", Decide: func(runstate.State) model.Route { return "" }},
			wantErr: "router attached to unknown node",
		},
		{
			name:    "router without decide",
			nodes:   []Node{{Name: "a", Run: noop}},
			router:  &Router{After: "a"},
			wantErr: "no decide func",
		},
		{
			name:  "skip unknown node",
			nodes: []Node{{Name: "a", Run: noop}},
			router: ThresholdRouter("a", 5, map[model.Route][]string{
				model.RouteFallbackSearch: {"ghost"},
			}),
			wantErr: "skips unknown node",
		},
		{
			name:  "skip router node",
			nodes: []Node{{Name: "a", Run: noop}},
			router: ThresholdRouter("a", 5, map[model.Route][]string{
				model.RouteFallbackSearch: {"a"},
			}),
			wantErr: "skips its own router node",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.nodes, tt.router)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGraph_Order(t *testing.T) {
	g, err := New([]Node{
		{Name: "synthesis", After: []string{"verification"}, Run: noop},
		{Name: "verification", After: []string{"news", "patents"}, Run: noop},
		{Name: "patents", After: []string{"discovery"}, Run: noop},
		{Name: "news", After: []string{"discovery"}, Run: noop},
		{Name: "discovery", Run: noop},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"discovery", "news", "patents", "verification", "synthesis"}, g.Order())

	n, ok := g.Node("news")
	require.True(t, ok)
	assert.Equal(t, []string{"discovery"}, n.After)
	_, ok = g.Node("ghost")
	assert.False(t, ok)
}

func TestExecute_FanOutFanIn(t *testing.T) {
	siblings := []string{"news", "founders", "patents"}

	var started sync.WaitGroup
	started.Add(len(siblings))
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	var mu sync.Mutex
	var seenDiscovery []bool

	nodes := []Node{{
		Name:  "discovery",
		Phase: model.PhaseDiscovery,
		Run: func(context.Context, runstate.State) runstate.Delta {
			return runstate.Delta{Discovery: &model.DiscoveryOutput{BaseURL: "https://acme.com"}}
		},
	}}
	for _, name := range siblings {
		nodes = append(nodes, Node{
			Name:  name,
			Phase: model.PhaseResearch,
			After: []string{"discovery"},
			Run: func(_ context.Context, snap runstate.State) runstate.Delta {
				mu.Lock()
				seenDiscovery = append(seenDiscovery, snap.Discovery != nil)
				mu.Unlock()

				// Every sibling must be running at the same time to get past here.
				started.Done()
				select {
				case <-allStarted:
				case <-time.After(2 * time.Second):
					t.Errorf("%s: siblings did not run concurrently", name)
				}
				return runstate.Delta{StageResults: map[string][]model.Record{
					name: {model.Placeholder{Stage: name}},
				}}
			},
		})
	}
	nodes = append(nodes, Node{
		Name:  "verification",
		Phase: model.PhaseVerification,
		After: siblings,
		Run: func(_ context.Context, snap runstate.State) runstate.Delta {
			for _, name := range siblings {
				assert.Len(t, snap.Records(name), 1, name)
			}
			return runstate.Delta{ConfidenceScores: map[string]float64{"verification": 0.7}}
		},
	})

	g, err := New(nodes, nil)
	require.NoError(t, err)

	acc := newAcc()
	var doneMu sync.Mutex
	var done []string
	err = g.Execute(context.Background(), acc, Options{
		OnNodeDone: func(_ context.Context, node Node, _ runstate.Delta, _ runstate.State) {
			doneMu.Lock()
			done = append(done, node.Name)
			doneMu.Unlock()
		},
	})
	require.NoError(t, err)

	final := acc.Snapshot()
	assert.Equal(t, []bool{true, true, true}, seenDiscovery)
	assert.Equal(t, 0.7, final.ConfidenceScores["verification"])
	assert.Equal(t, model.PhaseVerification, final.CurrentPhase)
	assert.Len(t, done, 5)
	assert.Equal(t, "discovery", done[0])
	assert.Equal(t, "verification", done[4])
}

func TestExecute_RouterDecidesOnceAndSkips(t *testing.T) {
	var decisions int
	var ranFounders bool
	var routeSeen model.Route

	router := &Router{
		After: "discovery",
		Decide: func(s runstate.State) model.Route {
			decisions++
			return DecideRoute(s, 5)
		},
		Skip: map[model.Route][]string{model.RouteFallbackSearch: {"founders"}},
	}
	g, err := New([]Node{
		{Name: "discovery", Run: func(context.Context, runstate.State) runstate.Delta {
			return runstate.Delta{Discovery: &model.DiscoveryOutput{DiscoveredURLs: []string{"https://acme.com"}}}
		}},
		{Name: "news", After: []string{"discovery"}, Run: func(_ context.Context, snap runstate.State) runstate.Delta {
			routeSeen = snap.Route
			return runstate.Delta{}
		}},
		{Name: "founders", After: []string{"discovery"}, Run: func(context.Context, runstate.State) runstate.Delta {
			ranFounders = true
			return runstate.Delta{}
		}},
		{Name: "synthesis", After: []string{"news", "founders"}, Run: noop},
	}, router)
	require.NoError(t, err)

	acc := newAcc()
	require.NoError(t, g.Execute(context.Background(), acc, Options{}))

	assert.Equal(t, 1, decisions)
	assert.False(t, ranFounders)
	assert.Equal(t, model.RouteFallbackSearch, routeSeen)
	assert.Equal(t, model.RouteFallbackSearch, acc.Snapshot().Route)
}

func TestExecute_PanicBecomesErrorDelta(t *testing.T) {
	var siblingRan, successorRan bool
	g, err := New([]Node{
		{Name: "discovery", Run: noop},
		{Name: "patents", Phase: model.PhaseResearch, After: []string{"discovery"}, Run: func(context.Context, runstate.State) runstate.Delta {
			panic("boom")
		}},
		{Name: "news", After: []string{"discovery"}, Run: func(context.Context, runstate.State) runstate.Delta {
			siblingRan = true
			return runstate.Delta{}
		}},
		{Name: "verification", After: []string{"patents", "news"}, Run: func(context.Context, runstate.State) runstate.Delta {
			successorRan = true
			return runstate.Delta{}
		}},
	}, nil)
	require.NoError(t, err)

	acc := newAcc()
	require.NoError(t, g.Execute(context.Background(), acc, Options{}))

	final := acc.Snapshot()
	assert.True(t, siblingRan)
	assert.True(t, successorRan)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, "patents", final.Errors[0].Stage)
	assert.Contains(t, final.Errors[0].Message, "panic: boom")
	assert.Equal(t, model.RunStatusPartial, final.Status)
}

func TestExecute_Cancelled(t *testing.T) {
	var ran bool
	g, err := New([]Node{
		{Name: "discovery", Run: func(context.Context, runstate.State) runstate.Delta {
			ran = true
			return runstate.Delta{}
		}},
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = g.Execute(ctx, newAcc(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestExecute_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var successorRan bool
	g, err := New([]Node{
		{Name: "discovery", Run: func(ctx context.Context, _ runstate.State) runstate.Delta {
			cancel()
			<-ctx.Done()
			return runstate.Delta{}
		}},
		{Name: "news", After: []string{"discovery"}, Run: func(context.Context, runstate.State) runstate.Delta {
			successorRan = true
			return runstate.Delta{}
		}},
	}, nil)
	require.NoError(t, err)

	err = g.Execute(ctx, newAcc(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, successorRan)
}

func TestDecideRoute(t *testing.T) {
	urls := func(n int) runstate.State {
		s := runstate.New("r", model.Company{Name: "Acme"})
		s.Discovery = &model.DiscoveryOutput{}
		for i := 0; i < n; i++ {
			s.Discovery.DiscoveredURLs = append(s.Discovery.DiscoveredURLs, "https://acme.com/p")
		}
		return s
	}
	assert.Equal(t, model.RouteFallbackSearch, DecideRoute(runstate.New("r", model.Company{}), 5))
	assert.Equal(t, model.RouteFallbackSearch, DecideRoute(urls(5), 5))
	assert.Equal(t, model.RouteFullResearch, DecideRoute(urls(6), 5))
	assert.Equal(t, model.RouteFullResearch, DecideRoute(urls(1), 0))
}

func TestSkipMap(t *testing.T) {
	assert.Nil(t, SkipMap(nil))
	got := SkipMap(map[string][]string{"fallback_search": {"patents"}})
	assert.Equal(t, map[model.Route][]string{model.RouteFallbackSearch: {"patents"}}, got)
}
