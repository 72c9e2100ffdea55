package stage

import (
	"fmt"
	"strings"

	"github.com/sells-group/compass-cli/internal/extract"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

const (
	maxNewsItems   = 10
	maxNewsSignals = 5
)

// Signal news types. Signals are stored as news records alongside articles.
const (
	NewsTypeFundingSignal     = "funding_signal"
	NewsTypePartnershipSignal = "partnership_signal"
	NewsTypeMarketSignal      = "market_signal"
)

var newsHints = extract.Hints{
	"funding":     {"funding", "investment", "raised", "series", "round", "capital", "valuation"},
	"partnership": {"partnership", "collaboration", "agreement", "deal", "alliance", "partnered"},
	"market":      {"market", "expansion", "launch", "customers", "growth", "industry"},
}

// News researches recent coverage and extracts funding, partnership and
// market signals.
func News() Spec[model.NewsOutput] {
	return Spec[model.NewsOutput]{
		Name:   NameNews,
		Phase:  model.PhaseResearch,
		Schema: newsSchema,
		Tools:  true,
		Task:   newsTask,
		Hints:  newsHints,
		Confidence: func(v model.NewsOutput) float64 {
			return v.ConfidenceScore
		},
		Heuristic: func(doc extract.Document, _ runstate.State, _ Evidence) (model.NewsOutput, bool) {
			out := model.NewsOutput{
				FundingSignals:     limit(doc.Field("funding"), maxNewsSignals),
				PartnershipSignals: limit(doc.Field("partnership"), maxNewsSignals),
				MarketSignals:      limit(doc.Field("market"), maxNewsSignals),
			}
			for i, h := range limit(doc.Headings, maxNewsItems) {
				item := model.NewsItem{Headline: h, NewsType: "other", RelevanceScore: 0.5}
				if i < len(doc.URLs) {
					item.URL = doc.URLs[i]
				}
				out.NewsItems = append(out.NewsItems, item)
			}
			ok := len(out.NewsItems)+len(out.FundingSignals)+len(out.PartnershipSignals)+len(out.MarketSignals) > 0
			return out, ok
		},
		Fallback: func(_ runstate.State, _ Evidence, reason string) model.NewsOutput {
			return model.NewsOutput{ConfidenceAssessment: unavailable("News analysis", reason)}
		},
		Delta: func(r Result[model.NewsOutput], _ runstate.State, _ Evidence) runstate.Delta {
			return recordsDelta(NameNews, r.Kind, r.Reason, newsRecords(r.Value))
		},
	}
}

func newsTask(s runstate.State, _ Evidence) Task {
	names := append([]string{s.Company.Name}, otherAliases(s)...)
	results := 5
	if s.Route == model.RouteFallbackSearch {
		results = 10
	}

	var b strings.Builder
	b.WriteString(companyContext(s))
	fmt.Fprintf(&b, "\n%s\n", routeGuidance(s))
	fmt.Fprintf(&b, `
Find investment-relevant news about the company from the last three years. Search under each of these names: %s.
Use about %d results per search. Look for:
- funding rounds, investors and valuations
- partnerships, customers and distribution deals
- product launches, market expansion and leadership changes
- legal or regulatory issues

Report at most %d articles with their URL and date. List funding, partnership and market signals separately.
If direct coverage is thin, say so and describe the industry context instead of inventing articles.`,
		strings.Join(names, ", "), results, maxNewsItems)

	return Task{
		Instructions: "Stage: news. Research recent news coverage.",
		Prompt:       b.String(),
	}
}

// newsRecords flattens articles and signals into news records.
func newsRecords(v model.NewsOutput) []model.Record {
	var recs []model.Record
	for _, it := range limit(v.NewsItems, maxNewsItems) {
		recs = append(recs, it)
	}
	signals := []struct {
		kind  string
		lines []string
	}{
		{NewsTypeFundingSignal, v.FundingSignals},
		{NewsTypePartnershipSignal, v.PartnershipSignals},
		{NewsTypeMarketSignal, v.MarketSignals},
	}
	for _, sig := range signals {
		for _, line := range limit(dedupe(sig.lines), maxNewsSignals) {
			recs = append(recs, model.NewsItem{Headline: line, Content: line, NewsType: sig.kind, RelevanceScore: 0.5})
		}
	}
	return recs
}

// recordsDelta stores a stage's records, or a placeholder when a degraded
// result carries none.
func recordsDelta(stage string, kind Kind, reason string, recs []model.Record) runstate.Delta {
	if len(recs) == 0 && kind == KindFallback {
		recs = []model.Record{model.Placeholder{Stage: stage, Reason: reason}}
	}
	if len(recs) == 0 {
		return runstate.Delta{}
	}
	return runstate.Delta{StageResults: map[string][]model.Record{stage: recs}}
}
