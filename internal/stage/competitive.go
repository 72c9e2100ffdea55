package stage

import (
	"fmt"
	"strings"

	"github.com/sells-group/compass-cli/internal/extract"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

// Competitive maps the competitive landscape and the company's position in it.
func Competitive() Spec[model.CompetitiveAnalysis] {
	return Spec[model.CompetitiveAnalysis]{
		Name:   NameCompetitive,
		Phase:  model.PhaseResearch,
		Schema: competitiveSchema,
		Tools:  true,
		Task:   competitiveTask,
		Hints: extract.Hints{
			"competitors":   {"competitor", "competes with", "rival", "alternative to", " vs ", "versus"},
			"advantages":    {"advantage", "strength", "differentiat", "moat", "unique"},
			"threats":       {"threat", "risk", "challenge", "pressure"},
			"opportunities": {"opportunit", "tailwind", "untapped", "growth potential"},
			"positioning":   {"position", "niche", "segment"},
		},
		Confidence: func(v model.CompetitiveAnalysis) float64 {
			return v.ConfidenceScore
		},
		Heuristic: competitiveHeuristic,
		Fallback: func(_ runstate.State, _ Evidence, reason string) model.CompetitiveAnalysis {
			return model.CompetitiveAnalysis{
				MarketPositioning:     unavailable("Competitive analysis", reason),
				CompetitiveAssessment: unavailable("Competitive analysis", reason),
				ConfidenceScore:       FallbackConfidence,
			}
		},
		Delta: func(r Result[model.CompetitiveAnalysis], _ runstate.State, _ Evidence) runstate.Delta {
			v := r.Value
			v.ConfidenceScore = r.Confidence
			return runstate.Delta{StageResults: map[string][]model.Record{NameCompetitive: {v}}}
		},
	}
}

func competitiveTask(s runstate.State, _ Evidence) Task {
	var b strings.Builder
	b.WriteString(companyContext(s))
	fmt.Fprintf(&b, "\n%s\n", routeGuidance(s))
	b.WriteString(`
Analyse the competitive landscape:
1. Identify direct, indirect, emerging and incumbent competitors. For each give a description, strengths, market position and funding status when known.
2. Describe how the company positions itself against them.
3. List its competitive advantages, the threats it faces and the opportunities open to it.
4. Summarize what the landscape implies for an investor.

Name only real companies you found evidence for.`)

	return Task{
		Instructions: "Stage: competitive. Analyse competitors and market position.",
		Prompt:       b.String(),
	}
}

func competitiveHeuristic(doc extract.Document, _ runstate.State, _ Evidence) (model.CompetitiveAnalysis, bool) {
	out := model.CompetitiveAnalysis{
		CompetitiveAdvantages: doc.Field("advantages"),
		MarketThreats:         doc.Field("threats"),
		MarketOpportunities:   doc.Field("opportunities"),
		MarketPositioning:     strings.Join(doc.Field("positioning"), " "),
	}
	for _, line := range doc.Field("competitors") {
		name, desc := splitLabel(line)
		if name == "" {
			continue
		}
		out.Competitors = append(out.Competitors, model.Competitor{Name: name, Category: "direct", Description: desc})
	}
	ok := len(out.Competitors)+len(out.CompetitiveAdvantages)+len(out.MarketThreats)+len(out.MarketOpportunities) > 0 ||
		out.MarketPositioning != ""
	return out, ok
}

// splitLabel splits "Name: description" or "Name - description". It returns
// an empty name when the label is missing or reads like a sentence.
func splitLabel(line string) (string, string) {
	for _, sep := range []string{": ", " - ", " – ", " — "} {
		name, desc, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" || len(strings.Fields(name)) > 4 {
			return "", line
		}
		return name, strings.TrimSpace(desc)
	}
	return "", line
}
