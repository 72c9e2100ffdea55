package stage

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

// preamble is the cached system prompt shared by every stage.
const preamble = `You are a senior investment research analyst building an intelligence profile of a private company.

Rules:
- Use the research tools to find evidence. Prefer primary sources: the company's own site, filings, reputable press.
- Never invent facts, people, numbers or URLs. If the evidence is thin, say so and lower your confidence.
- When searches come back empty, try alternative names, product names and broader industry queries before giving up.
- Cite the URL of every source you rely on.
- When you are done, call submit_result exactly once with the requested fields. confidence_score is a number between 0 and 1 reflecting how well the evidence supports your findings.`

// companyContext renders the identity block shared by stage prompts.
func companyContext(s runstate.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\n", s.Company.Name)
	if s.Company.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", s.Company.Domain)
	}
	if aliases := otherAliases(s); len(aliases) > 0 {
		fmt.Fprintf(&b, "Also known as: %s\n", strings.Join(aliases, ", "))
	}
	if d := s.Discovery; d != nil {
		if d.BaseURL != "" {
			fmt.Fprintf(&b, "Website: %s\n", d.BaseURL)
		}
		if len(d.KeyPages) > 0 {
			b.WriteString("Key pages:\n")
			for _, k := range sortedKeys(d.KeyPages) {
				fmt.Fprintf(&b, "- %s: %s\n", k, d.KeyPages[k])
			}
		}
		if d.DigitalPresence != "" {
			fmt.Fprintf(&b, "Discovery summary: %s\n", truncate(d.DigitalPresence, 400))
		}
	}
	if facts := identityFacts(s); len(facts) > 0 {
		b.WriteString("Verified identity facts:\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

// routeGuidance tells the model how to search given the route picked after
// discovery.
func routeGuidance(s runstate.State) string {
	if s.Route == model.RouteFallbackSearch {
		return "The company's website yielded little. Rely on broad web search: try every known name, leaders' names and product names, and request more results per query."
	}
	return "The company's website is well mapped. Start from its own pages, then corroborate with independent sources."
}

// otherAliases returns the distinct aliases other than the company name.
func otherAliases(s runstate.State) []string {
	var out []string
	for _, a := range s.CompanyAliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.EqualFold(a, s.Company.Name) {
			continue
		}
		if slices.ContainsFunc(out, func(o string) bool { return strings.EqualFold(o, a) }) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// identityFacts returns high-confidence verified claims about who the
// company is.
func identityFacts(s runstate.State) []string {
	var out []string
	for _, f := range s.VerifiedFacts {
		if f.Category == "company_identity" && f.Confidence >= 0.8 {
			out = append(out, f.Claim)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func bullets(lines []string) string {
	if len(lines) == 0 {
		return "- none\n"
	}
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "- %s\n", l)
	}
	return b.String()
}

// limit caps a slice at n.
func limit[T any](v []T, n int) []T {
	if len(v) > n {
		return v[:n]
	}
	return v
}

// dedupe drops blank and case-insensitive duplicate strings, keeping order.
func dedupe(vals []string) []string {
	var out []string
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" || slices.ContainsFunc(out, func(o string) bool { return strings.EqualFold(o, v) }) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func unavailable(what, reason string) string {
	return fmt.Sprintf("%s unavailable: %s", what, reason)
}
