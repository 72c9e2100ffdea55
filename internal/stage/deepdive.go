package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compass-cli/internal/agent"
	"github.com/sells-group/compass-cli/internal/extract"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/research"
	"github.com/sells-group/compass-cli/internal/runstate"
)

const (
	maxDeepDivePages = 4
	pageExcerpt      = 1500
)

// DeepDive reads the company's key pages for mission, business model,
// product and growth signals.
func DeepDive() Spec[model.DeepDiveAnalysis] {
	return Spec[model.DeepDiveAnalysis]{
		Name:   NameDeepDive,
		Phase:  model.PhaseResearch,
		Schema: deepDiveSchema,
		Tools:  true,
		Gather: gatherKeyPages,
		Task:   deepDiveTask,
		Hints: extract.Hints{
			"mission":      {"mission", "vision", "purpose"},
			"business":     {"business model", "revenue", "pricing", "subscription", "customers"},
			"product":      {"product", "platform", "feature", "solution"},
			"market":       {"go-to-market", "sales", "channel", "target market"},
			"organization": {"culture", "employees", "headcount", "hiring", "offices"},
			"growth":       {"growth", "expansion", "scaling", "new market"},
		},
		Confidence: func(v model.DeepDiveAnalysis) float64 {
			return v.ConfidenceScore
		},
		Heuristic: deepDiveHeuristic,
		Fallback: func(_ runstate.State, ev Evidence, reason string) model.DeepDiveAnalysis {
			return model.DeepDiveAnalysis{
				ContentSources:        sourcesFrom(ev),
				BusinessModelInsights: unavailable("Content analysis", reason),
				ConfidenceScore:       FallbackConfidence,
			}
		},
		Delta: func(r Result[model.DeepDiveAnalysis], _ runstate.State, _ Evidence) runstate.Delta {
			v := r.Value
			v.ConfidenceScore = r.Confidence
			return runstate.Delta{StageResults: map[string][]model.Record{NameDeepDive: {v}}}
		},
	}
}

// gatherKeyPages extracts the key pages found during discovery so the model
// starts with their text.
func gatherKeyPages(ctx context.Context, r agent.Researcher, s runstate.State) (Evidence, error) {
	if s.Discovery == nil || len(s.Discovery.KeyPages) == 0 {
		return Evidence{}, nil
	}
	ev := Evidence{Site: s.Discovery.BaseURL, KeyPages: s.Discovery.KeyPages}
	for _, k := range sortedKeys(s.Discovery.KeyPages) {
		ev.URLs = append(ev.URLs, s.Discovery.KeyPages[k])
	}
	ev.URLs = limit(ev.URLs, maxDeepDivePages)

	resp, err := r.Extract(ctx, research.ExtractQuery{URLs: ev.URLs})
	if err != nil {
		return ev, eris.Wrap(err, "deepdive: extract key pages")
	}
	for _, p := range resp.Pages {
		if strings.TrimSpace(p.Markdown) == "" {
			continue
		}
		ev.Notes = append(ev.Notes, fmt.Sprintf("### %s (%s)\n%s", p.Title, p.URL, truncate(p.Markdown, pageExcerpt)))
	}
	return ev, nil
}

func deepDiveTask(s runstate.State, ev Evidence) Task {
	var b strings.Builder
	b.WriteString(companyContext(s))
	if len(ev.Notes) > 0 {
		b.WriteString("\nExcerpts from the company's key pages:\n\n")
		b.WriteString(strings.Join(ev.Notes, "\n\n"))
		b.WriteString("\n")
	}
	b.WriteString(`
Read the company's own content (key pages, blog, product and careers pages) and report:
- mission and vision
- business model: who pays, for what, and how it is priced
- products and their differentiation
- go-to-market approach
- organization: size, culture, hiring
- growth indicators and anything an investor should know

List every page you analysed as a content source with its key insights.`)

	return Task{
		Instructions: "Stage: deepdive. Analyse the company's own web content in depth.",
		Prompt:       b.String(),
	}
}

func deepDiveHeuristic(doc extract.Document, _ runstate.State, ev Evidence) (model.DeepDiveAnalysis, bool) {
	out := model.DeepDiveAnalysis{
		ContentSources:         sourcesFrom(ev),
		MissionInsights:        strings.Join(doc.Field("mission"), " "),
		BusinessModelInsights:  strings.Join(doc.Field("business"), " "),
		ProductInsights:        strings.Join(doc.Field("product"), " "),
		MarketApproachInsights: strings.Join(doc.Field("market"), " "),
		OrganizationalInsights: strings.Join(doc.Field("organization"), " "),
		GrowthIndicators:       doc.Field("growth"),
	}
	for _, u := range doc.URLs {
		if ev.Site != "" && research.Host(u) != research.Host(ev.Site) {
			continue
		}
		if !containsSource(out.ContentSources, u) {
			out.ContentSources = append(out.ContentSources, model.ContentSource{URL: u, ContentType: "page", RelevanceScore: 0.5})
		}
	}
	ok := out.MissionInsights != "" || out.BusinessModelInsights != "" || out.ProductInsights != "" ||
		out.MarketApproachInsights != "" || out.OrganizationalInsights != "" || len(out.GrowthIndicators) > 0
	return out, ok
}

// sourcesFrom lists the gathered key pages as content sources.
func sourcesFrom(ev Evidence) []model.ContentSource {
	var out []model.ContentSource
	for _, k := range sortedKeys(ev.KeyPages) {
		u := ev.KeyPages[k]
		if containsSource(out, u) {
			continue
		}
		out = append(out, model.ContentSource{URL: u, Title: k, ContentType: k, RelevanceScore: 0.5})
	}
	return out
}

func containsSource(srcs []model.ContentSource, u string) bool {
	for _, s := range srcs {
		if s.URL == u {
			return true
		}
	}
	return false
}
