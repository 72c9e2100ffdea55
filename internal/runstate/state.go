// Package runstate holds the shared record threaded through every stage of a
// run and the per-field reducers used to merge stage deltas into it.
package runstate

import (
	"maps"
	"slices"

	"github.com/sells-group/compass-cli/internal/model"
)

// State is the shared record of one analysis run. Stages only ever see
// snapshots of it; all writes go through Merge.
type State struct {
	RunID            string                    `json:"run_id"`
	Company          model.Company             `json:"company"`
	Discovery        *model.DiscoveryOutput    `json:"discovery_result,omitempty"`
	CompanyAliases   []string                  `json:"company_aliases"`
	StageResults     map[string][]model.Record `json:"stage_results"`
	VerifiedFacts    []model.VerifiedFact      `json:"verified_facts"`
	ConfidenceScores map[string]float64        `json:"confidence_scores"`
	Cost             map[string]float64        `json:"cost"`
	Status           model.RunStatus           `json:"status"`
	CurrentPhase     model.Phase               `json:"current_phase"`
	Errors           []model.ErrorEntry        `json:"errors"`
	Insights         *model.Insights           `json:"insights,omitempty"`
	Route            model.Route               `json:"route,omitempty"`
}

// New returns the initial state of a run: aliases seeded with the company
// name, cost dimensions at zero, status running, phase discovery.
func New(runID string, company model.Company) State {
	aliases := []string{}
	if company.Name != "" {
		aliases = append(aliases, company.Name)
	}
	return State{
		RunID:            runID,
		Company:          company,
		CompanyAliases:   aliases,
		StageResults:     map[string][]model.Record{},
		VerifiedFacts:    []model.VerifiedFact{},
		ConfidenceScores: map[string]float64{},
		Cost: map[string]float64{
			model.CostResearchCredits: 0,
			model.CostLLMTokens:       0,
			model.CostLLMUSD:          0,
		},
		Status:       model.RunStatusRunning,
		CurrentPhase: model.PhaseDiscovery,
		Errors:       []model.ErrorEntry{},
	}
}

// Records returns the records stored under a stage key.
func (s State) Records(stage string) []model.Record {
	return s.StageResults[stage]
}

// MeanConfidence averages the given confidence keys that are present.
// It returns 0 and false when none are.
func (s State) MeanConfidence(keys ...string) (float64, bool) {
	var sum float64
	var n int
	for _, k := range keys {
		if v, ok := s.ConfidenceScores[k]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Clone returns a deep copy. Records are values and are shared.
func (s State) Clone() State {
	out := s
	out.Discovery = cloneDiscovery(s.Discovery)
	out.CompanyAliases = slices.Clone(s.CompanyAliases)
	out.StageResults = make(map[string][]model.Record, len(s.StageResults))
	for k, v := range s.StageResults {
		out.StageResults[k] = slices.Clone(v)
	}
	out.VerifiedFacts = cloneFacts(s.VerifiedFacts)
	out.ConfidenceScores = maps.Clone(s.ConfidenceScores)
	out.Cost = maps.Clone(s.Cost)
	out.Errors = slices.Clone(s.Errors)
	out.Insights = cloneInsights(s.Insights)
	if out.ConfidenceScores == nil {
		out.ConfidenceScores = map[string]float64{}
	}
	if out.Cost == nil {
		out.Cost = map[string]float64{}
	}
	return out
}

func cloneDiscovery(d *model.DiscoveryOutput) *model.DiscoveryOutput {
	if d == nil {
		return nil
	}
	c := *d
	c.DiscoveredURLs = slices.Clone(d.DiscoveredURLs)
	c.CompanyAliases = slices.Clone(d.CompanyAliases)
	c.KeyPages = maps.Clone(d.KeyPages)
	c.SocialLinks = slices.Clone(d.SocialLinks)
	c.KeyInsights = slices.Clone(d.KeyInsights)
	return &c
}

func cloneInsights(in *model.Insights) *model.Insights {
	if in == nil {
		return nil
	}
	c := *in
	c.InvestmentSignals = slices.Clone(in.InvestmentSignals)
	c.RiskAssessment = slices.Clone(in.RiskAssessment)
	c.FundingEvents = slices.Clone(in.FundingEvents)
	c.Partnerships = slices.Clone(in.Partnerships)
	return &c
}

func cloneFacts(facts []model.VerifiedFact) []model.VerifiedFact {
	if facts == nil {
		return nil
	}
	out := make([]model.VerifiedFact, len(facts))
	for i, f := range facts {
		f.Sources = slices.Clone(f.Sources)
		out[i] = f
	}
	return out
}
