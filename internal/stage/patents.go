package stage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/compass-cli/internal/extract"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

var patentNumber = regexp.MustCompile(`\b(?:US|EP|WO|CN|JP)\s?[\d,/]{5,}\s?[A-Z]?\d?\b`)

// Patents surveys the company's patents and IP position.
func Patents() Spec[model.PatentOutput] {
	return Spec[model.PatentOutput]{
		Name:   NamePatents,
		Phase:  model.PhaseResearch,
		Schema: patentsSchema,
		Tools:  true,
		Task:   patentsTask,
		Hints: extract.Hints{
			"patents":    {"patent", "filing", "application no", "granted", "uspto", "wipo"},
			"focus":      {"technology area", "focus area", "technology focus"},
			"assessment": {"portfolio", "innovation", "intellectual property"},
		},
		Confidence: func(v model.PatentOutput) float64 {
			return v.ConfidenceScore
		},
		Heuristic: patentsHeuristic,
		Fallback: func(_ runstate.State, _ Evidence, reason string) model.PatentOutput {
			return model.PatentOutput{IPPortfolioAnalysis: unavailable("IP analysis", reason)}
		},
		Delta: func(r Result[model.PatentOutput], _ runstate.State, _ Evidence) runstate.Delta {
			var recs []model.Record
			for _, p := range r.Value.PatentRecords {
				recs = append(recs, p)
			}
			return recordsDelta(NamePatents, r.Kind, r.Reason, recs)
		},
	}
}

func patentsTask(s runstate.State, _ Evidence) Task {
	names := append([]string{s.Company.Name}, otherAliases(s)...)

	var b strings.Builder
	b.WriteString(companyContext(s))
	fmt.Fprintf(&b, `
Survey the company's intellectual property. Search patent databases (Google Patents, USPTO, WIPO) with each assignee name: %s.
For each patent or application give the title, abstract, assignee, filing date, number, technology area, strategic value and URL.
Then describe the portfolio: focus areas, innovation strength and how it compares with competitors' IP.
A company without patents is a valid finding; report it plainly.`, strings.Join(names, ", "))

	return Task{
		Instructions: "Stage: patents. Survey patents and IP.",
		Prompt:       b.String(),
	}
}

func patentsHeuristic(doc extract.Document, s runstate.State, _ Evidence) (model.PatentOutput, bool) {
	out := model.PatentOutput{
		TechnologyFocusAreas: doc.Field("focus"),
		IPPortfolioAnalysis:  strings.Join(doc.Field("assessment"), " "),
	}
	for _, line := range doc.Field("patents") {
		num := patentNumber.FindString(line)
		if num == "" {
			continue
		}
		title, _ := splitLabel(line)
		if title == "" || strings.Contains(title, num) {
			title = truncate(line, 120)
		}
		out.PatentRecords = append(out.PatentRecords, model.PatentRecord{
			Title:        title,
			Abstract:     line,
			Assignee:     s.Company.Name,
			PatentNumber: strings.TrimSpace(num),
		})
	}
	ok := len(out.PatentRecords) > 0 || out.IPPortfolioAnalysis != "" || len(out.TechnologyFocusAreas) > 0
	return out, ok
}
