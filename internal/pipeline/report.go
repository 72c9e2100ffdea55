package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/compass-cli/internal/model"
)

// FormatReport renders a run as a human-readable Markdown report.
func FormatReport(d *RunDetail) string {
	var b strings.Builder

	company := d.Run.Company
	fmt.Fprintf(&b, "# Company Intelligence Report: %s\n", company.Name)
	if company.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", company.Domain)
	}
	fmt.Fprintf(&b, "Run: %s\n", d.Run.ID)
	fmt.Fprintf(&b, "Status: %s\n\n", d.Run.Status)

	res := d.Run.Result
	if res != nil {
		b.WriteString("## Summary\n")
		if res.Route != "" {
			fmt.Fprintf(&b, "- Route: %s\n", res.Route)
		}
		fmt.Fprintf(&b, "- LLM tokens: %.0f\n", res.Cost[model.CostLLMTokens])
		fmt.Fprintf(&b, "- Research credits: %.1f\n", res.Cost[model.CostResearchCredits])
		fmt.Fprintf(&b, "- Estimated cost: $%.4f (ledger $%.4f)\n", res.Cost[model.CostLLMUSD], res.LedgerUSD)
		fmt.Fprintf(&b, "- Errors: %d\n\n", len(res.Errors))
	}

	// Insights.
	b.WriteString("## Investment Insights\n")
	if in := d.Insights; in == nil {
		b.WriteString("No insights produced.\n\n")
	} else {
		if in.Placeholder {
			b.WriteString("_Placeholder: synthesis could not complete._\n\n")
		}
		fmt.Fprintf(&b, "%s\n\n", in.ExecutiveSummary)
		if in.InvestmentRecommendation != "" {
			fmt.Fprintf(&b, "**Recommendation:** %s\n\n", in.InvestmentRecommendation)
		}
		if in.MarketPositioning != "" {
			fmt.Fprintf(&b, "**Market positioning:** %s\n\n", in.MarketPositioning)
		}
		writeList(&b, "Investment Signals", in.InvestmentSignals)
		writeList(&b, "Risks", in.RiskAssessment)
		writeEvents(&b, "Funding Events", in.FundingEvents)
		writeEvents(&b, "Partnerships", in.Partnerships)
		fmt.Fprintf(&b, "Confidence: %.0f%%\n\n", in.ConfidenceScore*100)
	}

	// Findings.
	if disc := d.Discovery; disc != nil {
		b.WriteString("## Digital Presence\n")
		fmt.Fprintf(&b, "- Website: %s\n", disc.BaseURL)
		if len(disc.CompanyAliases) > 0 {
			fmt.Fprintf(&b, "- Also known as: %s\n", strings.Join(disc.CompanyAliases, ", "))
		}
		fmt.Fprintf(&b, "- Pages found: %d\n", len(disc.DiscoveredURLs))
		if disc.DigitalPresence != "" {
			fmt.Fprintf(&b, "\n%s\n", disc.DigitalPresence)
		}
		b.WriteString("\n")
	}

	b.WriteString("## News\n")
	if len(d.News) == 0 {
		b.WriteString("No news found.\n\n")
	} else {
		for _, n := range d.News {
			line := n.Headline
			if n.URL != "" {
				line = fmt.Sprintf("[%s](%s)", n.Headline, n.URL)
			}
			fmt.Fprintf(&b, "- %s (%s)\n", line, n.NewsType)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Leadership\n")
	if len(d.Founders) == 0 {
		b.WriteString("No leadership profiles found.\n\n")
	} else {
		for _, f := range d.Founders {
			fmt.Fprintf(&b, "- **%s**, %s", f.Name, f.Role)
			if f.BackgroundSummary != "" {
				fmt.Fprintf(&b, ": %s", f.BackgroundSummary)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if c := d.Competitive; c != nil {
		b.WriteString("## Competitive Landscape\n")
		for _, comp := range c.Competitors {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", comp.Name, comp.Category, comp.Description)
		}
		if c.CompetitiveAssessment != "" {
			fmt.Fprintf(&b, "\n%s\n", c.CompetitiveAssessment)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Patents\n")
	if len(d.Patents) == 0 {
		b.WriteString("No patents found.\n\n")
	} else {
		for _, p := range d.Patents {
			fmt.Fprintf(&b, "- %s", p.Title)
			if p.PatentNumber != "" {
				fmt.Fprintf(&b, " (%s)", p.PatentNumber)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if v := d.Verification; v != nil {
		b.WriteString("## Verification\n")
		fmt.Fprintf(&b, "Overall reliability: %.0f%%\n\n", v.OverallReliabilityScore*100)
		if v.VerificationSummary != "" {
			fmt.Fprintf(&b, "%s\n\n", v.VerificationSummary)
		}
		writeList(&b, "Red Flags", v.RedFlags)
		writeList(&b, "Information Gaps", v.InformationGaps)
	}

	if len(d.Placeholders) > 0 {
		b.WriteString("## Unavailable Sections\n")
		for _, p := range d.Placeholders {
			fmt.Fprintf(&b, "- %s: %s\n", p.Stage, p.Reason)
		}
		b.WriteString("\n")
	}

	// Stage results.
	if res != nil && len(res.Stages) > 0 {
		b.WriteString("## Stages\n")
		for _, s := range res.Stages {
			fmt.Fprintf(&b, "- %s: %s", s.Name, s.Status)
			if s.Outcome != "" {
				fmt.Fprintf(&b, " [%s, %.0f%%]", s.Outcome, s.Confidence*100)
			}
			fmt.Fprintf(&b, " (%dms)\n", s.Duration)
			if s.Error != "" {
				fmt.Fprintf(&b, "  Error: %s\n", s.Error)
			}
		}
		b.WriteString("\n")
	}

	if res != nil && len(res.Confidence) > 0 {
		b.WriteString("## Confidence\n")
		keys := make([]string, 0, len(res.Confidence))
		for k := range res.Confidence {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %.0f%%\n", k, res.Confidence[k]*100)
		}
	}

	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func writeEvents(b *strings.Builder, title string, events []model.Event) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n", title)
	for _, e := range events {
		fmt.Fprintf(b, "- %s", e.Summary)
		if e.PublishedDate != "" {
			fmt.Fprintf(b, " (%s)", e.PublishedDate)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
