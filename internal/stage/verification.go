package stage

import (
	"fmt"
	"strings"

	"github.com/sells-group/compass-cli/internal/extract"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

const maxVerificationLines = 5

// categoryKeywords map verification categories to the words that mark them.
var categoryKeywords = []struct {
	name     string
	keywords []string
}{
	{"leadership", []string{"leadership", "founder", "ceo", "team"}},
	{"funding", []string{"funding", "raised", "investment", "investor", "valuation"}},
	{"product", []string{"product", "technology", "platform", "patent"}},
	{"market", []string{"competitive", "competitor", "market", "customer"}},
	{"company_identity", []string{"founded", "headquarter", "incorporated", "website", "domain", "company"}},
}

// CategoryKey is the confidence key of a verification category.
func CategoryKey(category string) string {
	return NameVerification + ":" + category
}

func categoryOf(line string) string {
	lower := strings.ToLower(line)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.name
			}
		}
	}
	return "other"
}

// Verification cross-checks the research stages' findings and scores how far
// they can be trusted.
func Verification() Spec[model.VerificationReport] {
	return Spec[model.VerificationReport]{
		Name:   NameVerification,
		Phase:  model.PhaseVerification,
		Schema: verificationSchema,
		Tools:  true,
		Task:   verificationTask,
		Hints: extract.Hints{
			"verified":      {"verified", "confirmed", "validated", "corroborated"},
			"inconsistency": {"inconsisten", "contradict", "conflict", "discrepan"},
			"gap":           {"gap", "missing", "unavailable", "unknown", "could not find"},
			"red_flag":      {"red flag", "warning", "concern"},
			"risk":          {"investment risk", "due diligence", "caution", "risk"},
			"follow_up":     {"additional verification", "further research", "recommend"},
		},
		Confidence: func(v model.VerificationReport) float64 {
			return v.OverallReliabilityScore
		},
		Heuristic: verificationHeuristic,
		Fallback: func(_ runstate.State, _ Evidence, reason string) model.VerificationReport {
			return model.VerificationReport{
				InformationGaps:         []string{"Findings could not be cross-checked"},
				VerificationSummary:     unavailable("Verification", reason),
				OverallReliabilityScore: FallbackConfidence,
			}
		},
		Delta: func(r Result[model.VerificationReport], _ runstate.State, _ Evidence) runstate.Delta {
			v := r.Value
			d := runstate.Delta{
				VerifiedFacts: v.VerifiedFacts,
				StageResults:  map[string][]model.Record{NameVerification: {v}},
			}
			if len(v.ConfidenceScores) > 0 {
				d.ConfidenceScores = map[string]float64{}
				for cat, score := range v.ConfidenceScores {
					d.ConfidenceScores[CategoryKey(cat)] = clamp(score, 0, 1)
				}
			}
			return d
		},
	}
}

func verificationTask(s runstate.State, _ Evidence) Task {
	var b strings.Builder
	b.WriteString(companyContext(s))
	b.WriteString("\nFindings from the research stages:\n")
	b.WriteString(findingsSummary(s))
	b.WriteString(`
Cross-check these findings:
1. Verify the key claims (identity, funding, leadership, products, market position) against independent sources. Record each with its status, confidence and sources.
2. Flag inconsistencies between stages and with outside sources.
3. List information gaps, red flags and investment risk factors.
4. Recommend what needs further verification.

Score overall reliability:
- 0.8 to 1.0: multiple reliable sources, consistent
- 0.6 to 0.8: some sources, minor gaps
- 0.3 to 0.6: limited sources or some inconsistencies
- below 0.3: little evidence or major conflicts`)

	return Task{
		Instructions: "Stage: verification. Cross-check the other stages' findings.",
		Prompt:       b.String(),
	}
}

// findingsSummary renders a compact digest of every upstream stage.
func findingsSummary(s runstate.State) string {
	var b strings.Builder
	if d := s.Discovery; d != nil {
		fmt.Fprintf(&b, "DISCOVERY: %d pages on %s\n", len(d.DiscoveredURLs), d.BaseURL)
		for _, in := range limit(d.KeyInsights, 3) {
			fmt.Fprintf(&b, "  - %s\n", in)
		}
	}

	var articles, signals []string
	for _, r := range s.Records(NameNews) {
		if n, ok := r.(model.NewsItem); ok {
			if isSignal(n.NewsType) {
				signals = append(signals, n.Headline)
			} else {
				articles = append(articles, n.Headline)
			}
		}
	}
	if len(articles)+len(signals) > 0 {
		fmt.Fprintf(&b, "NEWS: %d articles, %d signals\n", len(articles), len(signals))
		for _, l := range limit(append(articles, signals...), 5) {
			fmt.Fprintf(&b, "  - %s\n", l)
		}
	}

	var people []string
	for _, r := range s.Records(NameFounders) {
		if p, ok := r.(model.FounderProfile); ok {
			people = append(people, strings.TrimSpace(p.Name+" ("+p.Role+")"))
		}
	}
	if len(people) > 0 {
		fmt.Fprintf(&b, "FOUNDERS: %s\n", strings.Join(limit(people, 5), ", "))
	}

	for _, r := range s.Records(NameCompetitive) {
		if c, ok := r.(model.CompetitiveAnalysis); ok {
			names := make([]string, 0, len(c.Competitors))
			for _, comp := range c.Competitors {
				names = append(names, comp.Name)
			}
			fmt.Fprintf(&b, "COMPETITIVE: %d competitors (%s)\n", len(names), strings.Join(limit(names, 5), ", "))
		}
	}

	var patents int
	for _, r := range s.Records(NamePatents) {
		if _, ok := r.(model.PatentRecord); ok {
			patents++
		}
	}
	if patents > 0 {
		fmt.Fprintf(&b, "PATENTS: %d records\n", patents)
	}

	for _, r := range s.Records(NameDeepDive) {
		if d, ok := r.(model.DeepDiveAnalysis); ok && d.BusinessModelInsights != "" {
			fmt.Fprintf(&b, "DEEPDIVE: %s\n", truncate(d.BusinessModelInsights, 300))
		}
	}

	for _, k := range sortedKeys(s.ConfidenceScores) {
		fmt.Fprintf(&b, "confidence %s: %.2f\n", k, s.ConfidenceScores[k])
	}

	if b.Len() == 0 {
		return "Limited findings available for verification.\n"
	}
	return b.String()
}

func verificationHeuristic(doc extract.Document, _ runstate.State, _ Evidence) (model.VerificationReport, bool) {
	out := model.VerificationReport{
		InconsistenciesFound:       limit(doc.Field("inconsistency"), maxVerificationLines),
		InformationGaps:            limit(doc.Field("gap"), maxVerificationLines),
		RedFlags:                   limit(doc.Field("red_flag"), maxVerificationLines),
		InvestmentRiskFactors:      limit(doc.Field("risk"), maxVerificationLines),
		AdditionalVerificationNeed: limit(doc.Field("follow_up"), maxVerificationLines),
	}
	for _, line := range doc.Field("verified") {
		fact := model.VerifiedFact{
			Claim:      line,
			Category:   categoryOf(line),
			Status:     "verified",
			Confidence: HeuristicDefault,
			Sources:    extract.FindURLs(line),
		}
		if score, ok := extract.FindConfidence(line); ok {
			fact.Confidence = clamp(score, HeuristicFloor, HeuristicCeiling)
		}
		if out.ConfidenceScores == nil {
			out.ConfidenceScores = map[string]float64{}
		}
		out.ConfidenceScores[fact.Category] = max(out.ConfidenceScores[fact.Category], fact.Confidence)
		out.VerifiedFacts = append(out.VerifiedFacts, fact)
	}

	risks := len(out.RedFlags) + len(out.InconsistenciesFound)
	verified := len(out.VerifiedFacts)
	// Reliability inferred from free text stays inside the heuristic band.
	switch {
	case risks == 0 && verified > 5:
		out.OverallReliabilityScore = HeuristicCeiling
	case risks <= 2 && verified > 3:
		out.OverallReliabilityScore = HeuristicDefault
	case risks <= 3:
		out.OverallReliabilityScore = 0.3
	default:
		out.OverallReliabilityScore = HeuristicFloor
	}

	summary := make([]string, 0, 3)
	for _, f := range []string{"verified", "inconsistency", "gap"} {
		if l := doc.First(f); l != "" {
			summary = append(summary, l)
		}
	}
	out.VerificationSummary = strings.Join(summary, " ")

	ok := verified+risks+len(out.InformationGaps)+len(out.InvestmentRiskFactors) > 0
	return out, ok
}

func isSignal(newsType string) bool {
	switch newsType {
	case NewsTypeFundingSignal, NewsTypePartnershipSignal, NewsTypeMarketSignal:
		return true
	}
	return false
}
