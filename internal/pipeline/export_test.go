package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compass-cli/internal/model"
)

func sampleDetail() *RunDetail {
	return &RunDetail{
		Run: model.Run{
			ID:      "run-1",
			Company: model.Company{Name: "Acme Robotics Inc", Domain: "acme.com"},
			Status:  model.RunStatusPartial,
			Result: &model.RunResult{
				Status:     model.RunStatusPartial,
				Route:      model.RouteFullResearch,
				Cost:       map[string]float64{model.CostLLMUSD: 0.1234, model.CostLLMTokens: 5000},
				Confidence: map[string]float64{"news": 0.8, "discovery": 0.9},
				Errors:     []model.ErrorEntry{{Stage: "patents", Message: "stage patents: boom"}},
				Stages: []model.StageResult{
					{Name: "discovery", Status: model.StageStatusSucceeded, Outcome: "structured", Confidence: 0.9, Duration: 1200},
					{Name: "patents", Status: model.StageStatusFailed, Outcome: "fallback", Confidence: 0.1, Error: "stage patents: boom"},
				},
				LedgerUSD: 0.2,
			},
		},
		Discovery: &model.DiscoveryOutput{
			BaseURL:        "https://acme.com",
			CompanyAliases: []string{"Acme"},
			DiscoveredURLs: []string{"https://acme.com/about"},
		},
		News: []model.NewsItem{
			{Headline: "Acme raises $20M, Series B", URL: "https://news.example/a", NewsType: "funding", RelevanceScore: 0.9},
		},
		Founders: []model.FounderProfile{{Name: "Jane Doe", Role: "CEO"}},
		Patents:  []model.PatentRecord{},
		Insights: &model.Insights{
			ExecutiveSummary:         "Acme builds robots.",
			InvestmentRecommendation: "Monitor",
			InvestmentSignals:        []string{"Series B"},
			FundingEvents:            []model.Event{{Summary: "Acme raises $20M", SourceID: "news_run-1_0", PublishedDate: "2024-03-01"}},
			ConfidenceScore:          0.62,
		},
		Placeholders: []model.Placeholder{{Stage: "patents", Reason: "stage patents: boom"}},
	}
}

func TestFormatReport(t *testing.T) {
	report := FormatReport(sampleDetail())

	assert.Contains(t, report, "# Company Intelligence Report: Acme Robotics Inc")
	assert.Contains(t, report, "- Route: full_research")
	assert.Contains(t, report, "**Recommendation:** Monitor")
	assert.Contains(t, report, "[Acme raises $20M, Series B](https://news.example/a) (funding)")
	assert.Contains(t, report, "- **Jane Doe**, CEO")
	assert.Contains(t, report, "No patents found.")
	assert.Contains(t, report, "- patents: stage patents: boom")
	assert.Contains(t, report, "- Acme raises $20M (2024-03-01)")
	assert.Contains(t, report, "Error: stage patents: boom")

	// Confidence keys are sorted.
	assert.Less(t, strings.Index(report, "- discovery: 90%"), strings.Index(report, "- news: 80%"))
}

func TestFormatReport_NoInsights(t *testing.T) {
	report := FormatReport(&RunDetail{Run: model.Run{ID: "r", Company: model.Company{Name: "Acme"}}})
	assert.Contains(t, report, "No insights produced.")
	assert.NotContains(t, report, "## Summary")
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, sampleDetail()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, csvColumns, rows[0])

	var sections []string
	for _, r := range rows[1:] {
		require.Len(t, r, len(csvColumns))
		sections = append(sections, r[0])
	}
	assert.Contains(t, sections, "insights")
	assert.Contains(t, sections, "news")
	assert.Contains(t, sections, "founders")
	assert.Contains(t, sections, "unavailable")

	// Commas inside fields survive quoting.
	var found bool
	for _, r := range rows {
		if r[2] == "Acme raises $20M, Series B" {
			found = true
			assert.Equal(t, "0.90", r[6])
		}
	}
	assert.True(t, found)
}

func TestExport_Formats(t *testing.T) {
	d := sampleDetail()

	var js bytes.Buffer
	require.NoError(t, Export(&js, d, FormatJSON))
	var back RunDetail
	require.NoError(t, json.Unmarshal(js.Bytes(), &back))
	assert.Equal(t, "run-1", back.Run.ID)
	assert.Len(t, back.News, 1)

	var md bytes.Buffer
	require.NoError(t, Export(&md, d, FormatMarkdown))
	assert.True(t, strings.HasPrefix(md.String(), "# Company Intelligence Report"))

	err := Export(&bytes.Buffer{}, d, "xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")

	assert.Equal(t, "text/csv; charset=utf-8", ContentType(FormatCSV))
	assert.Equal(t, "application/octet-stream", ContentType("xlsx"))
}
