package stage

import (
	"fmt"
	"strings"

	"github.com/sells-group/compass-cli/internal/extract"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

const maxEvents = 5

var (
	fundingKeywords     = []string{"funding", "investment", "raised", "series", "round", "capital"}
	partnershipKeywords = []string{"partnership", "collaboration", "agreement", "deal", "alliance"}
)

// Upstream lists the confidence keys synthesis is bounded by.
var Upstream = append([]string{NameDiscovery}, append(append([]string{}, Research...), NameVerification)...)

// Synthesis turns everything the run found into investment insights. It
// always writes Insights.
func Synthesis() Spec[model.Insights] {
	return Spec[model.Insights]{
		Name:     NameSynthesis,
		Phase:    model.PhaseSynthesis,
		Schema:   synthesisSchema,
		MaxTurns: 2,
		Task:     synthesisTask,
		Hints: extract.Hints{
			"summary":        {"summary", "overview", "overall"},
			"signals":        {"signal", "strength", "opportunit", "positive", "traction"},
			"risks":          {"risk", "concern", "weakness", "threat"},
			"recommendation": {"recommend", "verdict"},
			"positioning":    {"position", "niche"},
		},
		Confidence: func(v model.Insights) float64 {
			return v.ConfidenceScore
		},
		Heuristic: func(doc extract.Document, _ runstate.State, _ Evidence) (model.Insights, bool) {
			out := model.Insights{
				ExecutiveSummary:         strings.Join(limit(doc.Field("summary"), 3), " "),
				InvestmentSignals:        doc.Field("signals"),
				RiskAssessment:           doc.Field("risks"),
				MarketPositioning:        doc.First("positioning"),
				InvestmentRecommendation: doc.First("recommendation"),
			}
			ok := out.ExecutiveSummary != "" || out.InvestmentRecommendation != "" ||
				len(out.InvestmentSignals)+len(out.RiskAssessment) > 0
			return out, ok
		},
		Fallback: func(s runstate.State, _ Evidence, reason string) model.Insights {
			return model.Insights{
				ExecutiveSummary:         unavailable("Synthesis", reason),
				InvestmentRecommendation: "Insufficient evidence for a recommendation.",
				RiskAssessment:           redFlags(s),
				Placeholder:              true,
			}
		},
		Delta: synthesisDelta,
	}
}

func synthesisTask(s runstate.State, _ Evidence) Task {
	var b strings.Builder
	b.WriteString(companyContext(s))
	b.WriteString("\nResearch findings:\n")
	b.WriteString(findingsSummary(s))
	if v := verificationReport(s); v != nil {
		fmt.Fprintf(&b, "\nVerification (reliability %.2f): %s\n", v.OverallReliabilityScore, truncate(v.VerificationSummary, 600))
		if len(v.RedFlags) > 0 {
			b.WriteString("Red flags:\n")
			b.WriteString(bullets(v.RedFlags))
		}
		if len(v.InformationGaps) > 0 {
			b.WriteString("Information gaps:\n")
			b.WriteString(bullets(v.InformationGaps))
		}
	}
	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "\n%d stage(s) reported errors; treat their areas as unverified.\n", len(s.Errors))
	}
	b.WriteString(`
Write the investment synthesis:
1. An executive summary of the company for an investment committee.
2. Investment signals supporting the case and the key risks against it.
3. The company's market positioning.
4. A clear recommendation (pursue, monitor or pass) with its rationale.

Base every statement on the findings above. Lower your confidence where the findings are thin or unverified.`)

	return Task{
		Instructions: "Stage: synthesis. Synthesize the run's findings. Do not research further.",
		Prompt:       b.String(),
	}
}

// synthesisDelta completes the insights with what can be derived from state
// and caps confidence by the upstream stages.
func synthesisDelta(r Result[model.Insights], s runstate.State, _ Evidence) runstate.Delta {
	out := r.Value
	out.FundingEvents, out.Partnerships = newsEvents(s)
	out.DataSources = dataSources(s)
	out.Enhanced = r.Kind == KindStructured
	out.Placeholder = r.Kind == KindFallback

	conf := r.Confidence
	if mean, ok := s.MeanConfidence(Upstream...); ok {
		conf = min(conf, mean)
	}
	out.ConfidenceScore = conf

	return runstate.Delta{
		Insights:         &out,
		StageResults:     map[string][]model.Record{NameSynthesis: {out}},
		ConfidenceScores: map[string]float64{NameSynthesis: conf},
	}
}

// newsEvents picks funding and partnership events out of the news records
// by keyword.
func newsEvents(s runstate.State) (funding, partnerships []model.Event) {
	for i, rec := range s.Records(NameNews) {
		n, ok := rec.(model.NewsItem)
		if !ok {
			continue
		}
		text := strings.ToLower(n.Headline + " " + n.Content)
		ev := model.Event{
			Summary:       n.Headline,
			SourceID:      model.ItemDocumentID(model.KindNews, s.RunID, i),
			URL:           n.URL,
			PublishedDate: n.DateMentioned,
		}
		switch {
		case n.NewsType == "funding" || n.NewsType == NewsTypeFundingSignal || containsAny(text, fundingKeywords):
			if len(funding) < maxEvents {
				funding = append(funding, ev)
			}
		case n.NewsType == "partnership" || n.NewsType == NewsTypePartnershipSignal || containsAny(text, partnershipKeywords):
			if len(partnerships) < maxEvents {
				partnerships = append(partnerships, ev)
			}
		}
	}
	return funding, partnerships
}

func dataSources(s runstate.State) model.DataSources {
	var ds model.DataSources
	for _, rec := range s.Records(NameNews) {
		if n, ok := rec.(model.NewsItem); ok && !isSignal(n.NewsType) {
			ds.NewsArticles++
		}
	}
	for _, rec := range s.Records(NamePatents) {
		if _, ok := rec.(model.PatentRecord); ok {
			ds.PatentsFound++
		}
	}
	if s.Discovery != nil {
		ds.PagesAnalyzed = len(s.Discovery.DiscoveredURLs)
	}
	for _, rec := range s.Records(NameDeepDive) {
		if d, ok := rec.(model.DeepDiveAnalysis); ok {
			ds.PagesAnalyzed = max(ds.PagesAnalyzed, len(d.ContentSources))
		}
	}
	ds.VerifiedFacts = len(s.VerifiedFacts)
	return ds
}

func verificationReport(s runstate.State) *model.VerificationReport {
	for _, rec := range s.Records(NameVerification) {
		if v, ok := rec.(model.VerificationReport); ok {
			return &v
		}
	}
	return nil
}

func redFlags(s runstate.State) []string {
	if v := verificationReport(s); v != nil {
		return limit(v.RedFlags, maxEvents)
	}
	return nil
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
