package runstate

import (
	"maps"
	"slices"

	"github.com/sells-group/compass-cli/internal/model"
)

// Delta is a partial state update returned by a stage. Zero values mean
// "no change". RunID and Company are not part of a delta.
type Delta struct {
	Discovery        *model.DiscoveryOutput
	CompanyAliases   []string
	StageResults     map[string][]model.Record
	VerifiedFacts    []model.VerifiedFact
	ConfidenceScores map[string]float64
	Cost             map[string]float64
	Status           model.RunStatus
	CurrentPhase     model.Phase
	Errors           []model.ErrorEntry
	Insights         *model.Insights
	Route            model.Route
}

// IsZero reports whether the delta carries no change at all.
func (d Delta) IsZero() bool {
	return d.Discovery == nil && len(d.CompanyAliases) == 0 && len(d.StageResults) == 0 &&
		len(d.VerifiedFacts) == 0 && len(d.ConfidenceScores) == 0 && len(d.Cost) == 0 &&
		d.Status == "" && d.CurrentPhase == "" && len(d.Errors) == 0 && d.Insights == nil && d.Route == ""
}

// ErrorDelta is the delta of a failed stage: one error entry and status partial.
func ErrorDelta(stage, message string) Delta {
	return Delta{
		Status: model.RunStatusPartial,
		Errors: []model.ErrorEntry{model.NewErrorEntry(stage, message)},
	}
}

var statusRank = map[model.RunStatus]int{
	model.RunStatusError:     5,
	model.RunStatusPartial:   4,
	model.RunStatusRunning:   3,
	model.RunStatusComplete:  2,
	model.RunStatusCompleted: 2,
	model.RunStatusPending:   1,
}

var phaseRank = map[model.Phase]int{
	model.PhaseSynthesis:    4,
	model.PhaseVerification: 3,
	model.PhaseResearch:     2,
	model.PhaseDiscovery:    1,
}

// MergeStatus resolves two status writes by priority. Ties keep the incumbent.
func MergeStatus(cur, next model.RunStatus) model.RunStatus {
	if next == "" {
		return cur
	}
	if statusRank[next] > statusRank[cur] {
		return next
	}
	return cur
}

// MergePhase resolves two phase writes; later phases win.
func MergePhase(cur, next model.Phase) model.Phase {
	if next == "" {
		return cur
	}
	if phaseRank[next] > phaseRank[cur] {
		return next
	}
	return cur
}

// Merge applies a delta to a state and returns the merged state. The input
// state is not modified.
func Merge(s State, d Delta) State {
	out := s.Clone()

	for k, v := range d.Cost {
		out.Cost[k] += v
	}
	for k, v := range d.ConfidenceScores {
		if cur, ok := out.ConfidenceScores[k]; !ok || v > cur {
			out.ConfidenceScores[k] = v
		}
	}

	out.CompanyAliases = append(out.CompanyAliases, d.CompanyAliases...)
	out.VerifiedFacts = append(out.VerifiedFacts, cloneFacts(d.VerifiedFacts)...)
	out.Errors = append(out.Errors, d.Errors...)
	for k, recs := range d.StageResults {
		out.StageResults[k] = append(out.StageResults[k], recs...)
	}

	out.Status = MergeStatus(out.Status, d.Status)
	out.CurrentPhase = MergePhase(out.CurrentPhase, d.CurrentPhase)

	if d.Discovery != nil {
		out.Discovery = cloneDiscovery(d.Discovery)
	}
	if d.Insights != nil {
		out.Insights = cloneInsights(d.Insights)
	}
	if d.Route != "" {
		out.Route = d.Route
	}
	return out
}

// Combine merges two deltas into one using the same reducers as Merge, so
// Merge(Merge(s, a), b) equals Merge(s, Combine(a, b)).
func Combine(a, b Delta) Delta {
	out := Delta{
		CompanyAliases: concat(a.CompanyAliases, b.CompanyAliases),
		VerifiedFacts:  concat(a.VerifiedFacts, b.VerifiedFacts),
		Errors:         concat(a.Errors, b.Errors),
		Status:         MergeStatus(a.Status, b.Status),
		CurrentPhase:   MergePhase(a.CurrentPhase, b.CurrentPhase),
		Discovery:      a.Discovery,
		Insights:       a.Insights,
		Route:          a.Route,
	}

	if len(a.Cost)+len(b.Cost) > 0 {
		out.Cost = maps.Clone(a.Cost)
		if out.Cost == nil {
			out.Cost = map[string]float64{}
		}
		for k, v := range b.Cost {
			out.Cost[k] += v
		}
	}
	if len(a.ConfidenceScores)+len(b.ConfidenceScores) > 0 {
		out.ConfidenceScores = maps.Clone(a.ConfidenceScores)
		if out.ConfidenceScores == nil {
			out.ConfidenceScores = map[string]float64{}
		}
		for k, v := range b.ConfidenceScores {
			if cur, ok := out.ConfidenceScores[k]; !ok || v > cur {
				out.ConfidenceScores[k] = v
			}
		}
	}
	if len(a.StageResults)+len(b.StageResults) > 0 {
		out.StageResults = make(map[string][]model.Record)
		for k, v := range a.StageResults {
			out.StageResults[k] = slices.Clone(v)
		}
		for k, v := range b.StageResults {
			out.StageResults[k] = append(out.StageResults[k], v...)
		}
	}

	if b.Discovery != nil {
		out.Discovery = b.Discovery
	}
	if b.Insights != nil {
		out.Insights = b.Insights
	}
	if b.Route != "" {
		out.Route = b.Route
	}
	return out
}

func concat[T any](a, b []T) []T {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
