package workflow

import (
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

// ThresholdRouter routes to full research when discovery found more than
// threshold URLs and to the broader fallback search otherwise.
func ThresholdRouter(after string, threshold int, skip map[model.Route][]string) *Router {
	return &Router{
		After:  after,
		Decide: func(s runstate.State) model.Route { return DecideRoute(s, threshold) },
		Skip:   skip,
	}
}

// DecideRoute applies the discovery threshold rule to a state.
func DecideRoute(s runstate.State, threshold int) model.Route {
	if s.Discovery != nil && len(s.Discovery.DiscoveredURLs) > threshold {
		return model.RouteFullResearch
	}
	return model.RouteFallbackSearch
}

// SkipMap converts configured route names to a router skip map.
func SkipMap(cfg map[string][]string) map[model.Route][]string {
	if len(cfg) == 0 {
		return nil
	}
	out := make(map[model.Route][]string, len(cfg))
	for route, names := range cfg {
		out[model.Route(route)] = append([]string(nil), names...)
	}
	return out
}
