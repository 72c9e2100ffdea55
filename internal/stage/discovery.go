package stage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/agent"
	"github.com/sells-group/compass-cli/internal/extract"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/research"
	"github.com/sells-group/compass-cli/internal/runstate"
)

// Discovery limits.
const (
	maxMappedSites = 2
	mapLimit       = 15
	maxKeptURLs    = 10
)

var aliasRe = regexp.MustCompile(`(?i)(?:also known as|formerly known as|formerly|operating as|trading as|aka|d/b/a)[:\s]+["']?([A-Z][\w&.\- ]{1,40}?)["']?(?:[,.;)]|$)`)

// Discovery maps the company's web presence, derives aliases and picks the
// key pages later stages build on.
func Discovery() Spec[model.DiscoveryOutput] {
	return Spec[model.DiscoveryOutput]{
		Name:     NameDiscovery,
		Phase:    model.PhaseDiscovery,
		Schema:   discoverySchema,
		Tools:    true,
		MaxTurns: 6,
		Gather:   gatherSite,
		Task:     discoveryTask,
		Confidence: func(v model.DiscoveryOutput) float64 {
			return v.ConfidenceScore
		},
		Hints: extract.Hints{
			"insights": {"key finding", "notable", "significant", "indicates", "suggests", "offers", "provides"},
			"aliases":  {"also known as", "formerly", "operating as", "trading as", "aka", "d/b/a"},
		},
		Heuristic: discoveryHeuristic,
		Fallback: func(s runstate.State, ev Evidence, reason string) model.DiscoveryOutput {
			return model.DiscoveryOutput{
				BaseURL:         ev.Site,
				DiscoveredURLs:  ev.URLs,
				KeyPages:        ev.KeyPages,
				DigitalPresence: unavailable("Digital presence analysis", reason),
				ConfidenceScore: FallbackConfidence,
			}
		},
		Delta: discoveryDelta,
	}
}

// gatherSite maps up to two candidate sites and keeps the first one that
// yields pages.
func gatherSite(ctx context.Context, r agent.Researcher, s runstate.State) (Evidence, error) {
	matcher := research.NewPathMatcher(nil)
	candidates := limit(research.CandidateSites(s.Company), maxMappedSites)

	var lastErr error
	for _, site := range candidates {
		resp, err := r.Map(ctx, research.MapQuery{URL: site, Limit: mapLimit})
		if err != nil {
			lastErr = err
			zap.L().Debug("stage: map candidate failed", zap.String("site", site), zap.Error(err))
			continue
		}
		urls := research.FilterURLs(resp.URLs, site, matcher, maxKeptURLs)
		if len(urls) == 0 {
			continue
		}
		return Evidence{Site: site, URLs: urls, KeyPages: research.CategorizePages(urls)}, nil
	}
	if lastErr != nil {
		return Evidence{}, eris.Wrap(lastErr, "discovery: map candidate sites")
	}
	return Evidence{}, nil
}

func discoveryTask(s runstate.State, ev Evidence) Task {
	var b strings.Builder
	b.WriteString(companyContext(s))
	if ev.Site != "" {
		fmt.Fprintf(&b, "\nMapped site: %s\nPages found:\n%s", ev.Site, bullets(ev.URLs))
	} else {
		b.WriteString("\nNo official site could be mapped yet. Find it with web_search before anything else.\n")
	}
	b.WriteString(`
Establish this company's digital presence:
1. Confirm the official website and list its most informative pages (about, team, careers, blog, product).
2. Record every other name the company operates under.
3. Note social and directory profiles (LinkedIn, Crunchbase, GitHub, X).
4. Summarize what the site says the company does and anything notable for an investor.`)

	return Task{
		Instructions: "Stage: discovery. Map the company's web presence. Keep discovered_urls to pages on the company's own site.",
		Prompt:       b.String(),
	}
}

func discoveryHeuristic(doc extract.Document, s runstate.State, ev Evidence) (model.DiscoveryOutput, bool) {
	site := ev.Site
	var own, social []string
	for _, u := range doc.URLs {
		switch {
		case isSocial(u):
			social = append(social, u)
		case site == "" || research.Host(u) == research.Host(site):
			own = append(own, u)
		}
	}

	var aliases []string
	for _, line := range doc.Field("aliases") {
		if m := aliasRe.FindStringSubmatch(line); m != nil {
			aliases = append(aliases, strings.TrimSpace(m[1]))
		}
	}

	out := model.DiscoveryOutput{
		BaseURL:        site,
		DiscoveredURLs: dedupe(append(append([]string{}, ev.URLs...), own...)),
		CompanyAliases: dedupe(aliases),
		SocialLinks:    dedupe(social),
		KeyInsights:    doc.Field("insights"),
	}
	if len(out.DiscoveredURLs) == 0 && len(out.KeyInsights) == 0 {
		return out, false
	}
	out.DigitalPresence = strings.Join(limit(out.KeyInsights, 3), " ")
	return out, true
}

// discoveryDelta settles the discovery output against what was mapped and
// contributes aliases not already in state.
func discoveryDelta(r Result[model.DiscoveryOutput], s runstate.State, ev Evidence) runstate.Delta {
	out := r.Value
	out.DiscoveredURLs = limit(dedupe(append(append([]string{}, out.DiscoveredURLs...), ev.URLs...)), maxKeptURLs)
	if out.BaseURL == "" {
		out.BaseURL = ev.Site
	}
	if out.BaseURL == "" && len(out.DiscoveredURLs) > 0 {
		out.BaseURL = research.NormalizeSite(research.Host(out.DiscoveredURLs[0]))
	}
	if len(out.KeyPages) == 0 {
		out.KeyPages = research.CategorizePages(out.DiscoveredURLs)
	}
	out.ConfidenceScore = r.Confidence

	company := s.Company
	if company.Domain == "" {
		company.Domain = research.Host(out.BaseURL)
	}
	var fresh []string
	for _, a := range dedupe(append(append([]string{}, out.CompanyAliases...), research.DeriveAliases(company)...)) {
		if !containsFold(s.CompanyAliases, a) {
			fresh = append(fresh, a)
		}
	}
	out.CompanyAliases = dedupe(append(append([]string{}, s.CompanyAliases...), fresh...))

	return runstate.Delta{
		Discovery:      &out,
		CompanyAliases: fresh,
		StageResults:   map[string][]model.Record{NameDiscovery: {out}},
	}
}

func isSocial(u string) bool {
	h := research.Host(u)
	for _, s := range []string{"linkedin.com", "twitter.com", "x.com", "github.com", "crunchbase.com", "facebook.com", "youtube.com"} {
		if h == s || strings.HasSuffix(h, "."+s) {
			return true
		}
	}
	return false
}

func containsFold(vals []string, v string) bool {
	for _, o := range vals {
		if strings.EqualFold(o, v) {
			return true
		}
	}
	return false
}
