package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "md"
	FormatCSV      = "csv"
)

// ContentType returns the HTTP content type of an export format.
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	}
	return "application/octet-stream"
}

// Export writes a run detail in the given format.
func Export(w io.Writer, d *RunDetail, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(d), "export: encode json")
	case FormatMarkdown:
		_, err := io.WriteString(w, FormatReport(d))
		return eris.Wrap(err, "export: write markdown")
	case FormatCSV:
		return ExportCSV(w, d)
	}
	return eris.Errorf("export: unknown format %q", format)
}

var csvColumns = []string{
	"Section",
	"Type",
	"Title",
	"Detail",
	"URL",
	"Date",
	"Confidence",
}

// ExportCSV writes one row per finding of a run.
func ExportCSV(w io.Writer, d *RunDetail) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvColumns); err != nil {
		return eris.Wrap(err, "csv export: write header")
	}
	for _, row := range findingRows(d) {
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "csv export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "csv export: flush")
}

// findingRows flattens a run detail into CSV rows.
func findingRows(d *RunDetail) [][]string {
	var rows [][]string
	add := func(section, typ, title, detail, url, date string, conf float64) {
		c := ""
		if conf > 0 {
			c = fmt.Sprintf("%.2f", conf)
		}
		rows = append(rows, []string{section, typ, title, detail, url, date, c})
	}

	if in := d.Insights; in != nil {
		add("insights", "summary", "Executive summary", in.ExecutiveSummary, "", "", in.ConfidenceScore)
		add("insights", "recommendation", "Recommendation", in.InvestmentRecommendation, "", "", in.ConfidenceScore)
		for _, s := range in.InvestmentSignals {
			add("insights", "signal", s, "", "", "", 0)
		}
		for _, r := range in.RiskAssessment {
			add("insights", "risk", r, "", "", "", 0)
		}
		for _, e := range in.FundingEvents {
			add("insights", "funding_event", e.Summary, e.SourceID, e.URL, e.PublishedDate, 0)
		}
		for _, e := range in.Partnerships {
			add("insights", "partnership", e.Summary, e.SourceID, e.URL, e.PublishedDate, 0)
		}
	}
	if disc := d.Discovery; disc != nil {
		add("discovery", "website", disc.BaseURL, strings.Join(disc.CompanyAliases, "; "), disc.BaseURL, "", disc.ConfidenceScore)
	}
	for _, n := range d.News {
		add("news", n.NewsType, n.Headline, n.Content, n.URL, n.DateMentioned, n.RelevanceScore)
	}
	for _, f := range d.Founders {
		add("founders", f.Role, f.Name, f.BackgroundSummary, "", "", 0)
	}
	if c := d.Competitive; c != nil {
		for _, comp := range c.Competitors {
			add("competitive", comp.Category, comp.Name, comp.Description, "", "", 0)
		}
	}
	for _, p := range d.Patents {
		add("patents", p.TechnologyArea, p.Title, p.PatentNumber, p.URL, p.FilingDate, 0)
	}
	if dd := d.DeepDive; dd != nil {
		for _, s := range dd.ContentSources {
			add("deepdive", s.ContentType, s.Title, strings.Join(s.KeyInsights, "; "), s.URL, "", s.RelevanceScore)
		}
	}
	if v := d.Verification; v != nil {
		for _, f := range v.VerifiedFacts {
			add("verification", f.Status, f.Claim, f.Category, strings.Join(f.Sources, " "), "", f.Confidence)
		}
		for _, rf := range v.RedFlags {
			add("verification", "red_flag", rf, "", "", "", 0)
		}
	}
	for _, p := range d.Placeholders {
		add("unavailable", p.Stage, p.Stage, p.Reason, "", "", 0)
	}
	return rows
}
