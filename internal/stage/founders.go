package stage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/compass-cli/internal/extract"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

var (
	rolePattern = regexp.MustCompile(`(?i)\b(co-?founder|founder|chief [a-z]+ officer|ceo|cto|cfo|coo|cpo|president|chair(?:man|woman)?|managing director|vp [a-z ]+|head of [a-z ]+)\b`)
	// "Jane Doe - CEO", "Jane Doe (CEO)", "Jane Doe, co-founder".
	personLine = regexp.MustCompile(`^([A-Z][\p{L}.'-]+(?:\s[A-Z][\p{L}.'-]+){1,3})\s*(?:[-,:(]|\s–\s|\s—\s)\s*(.+)$`)
)

// Founders profiles the founding and leadership team.
func Founders() Spec[model.FounderOutput] {
	return Spec[model.FounderOutput]{
		Name:   NameFounders,
		Phase:  model.PhaseResearch,
		Schema: foundersSchema,
		Tools:  true,
		Task:   foundersTask,
		Hints: extract.Hints{
			"people":     {"founder", "co-founder", "ceo", "cto", "cfo", "coo", "chief", "president", "chair"},
			"experience": {"previously", "formerly", "experience", "worked at", "prior to"},
			"assessment": {"leadership", "team", "execution"},
		},
		Confidence: func(v model.FounderOutput) float64 {
			return v.ConfidenceScore
		},
		Heuristic: foundersHeuristic,
		Fallback: func(_ runstate.State, _ Evidence, reason string) model.FounderOutput {
			return model.FounderOutput{LeadershipAssessment: unavailable("Leadership analysis", reason)}
		},
		Delta: func(r Result[model.FounderOutput], _ runstate.State, _ Evidence) runstate.Delta {
			var recs []model.Record
			for _, p := range r.Value.FounderProfiles {
				recs = append(recs, p)
			}
			return recordsDelta(NameFounders, r.Kind, r.Reason, recs)
		},
	}
}

func foundersTask(s runstate.State, _ Evidence) Task {
	var b strings.Builder
	b.WriteString(companyContext(s))
	fmt.Fprintf(&b, "\n%s\n", routeGuidance(s))
	if d := s.Discovery; d != nil && d.KeyPages["team"] != "" {
		fmt.Fprintf(&b, "Start with the team page: %s\n", d.KeyPages["team"])
	}
	b.WriteString(`
Identify the founders and current senior leadership. For each person give:
- name and current role
- a short background summary, prior companies and notable achievements
- education where it is public
- what their track record implies for an investor

Then assess the team's composition, leadership quality and ability to execute.
Only include people you found evidence for.`)

	return Task{
		Instructions: "Stage: founders. Profile the founding and leadership team.",
		Prompt:       b.String(),
	}
}

func foundersHeuristic(doc extract.Document, _ runstate.State, _ Evidence) (model.FounderOutput, bool) {
	var out model.FounderOutput
	seen := map[string]bool{}
	for _, line := range doc.Field("people") {
		m := personLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out.FounderProfiles = append(out.FounderProfiles, model.FounderProfile{
			Name:              name,
			Role:              rolePattern.FindString(m[2]),
			BackgroundSummary: strings.TrimRight(strings.TrimSpace(m[2]), ")"),
		})
	}
	out.LeadershipAssessment = strings.Join(doc.Field("assessment"), " ")
	if len(out.FounderProfiles) == 0 {
		return out, false
	}
	exp := doc.Field("experience")
	if len(out.FounderProfiles) == 1 {
		out.FounderProfiles[0].PreviousExperience = exp
	}
	return out, true
}
