package research

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compass-cli/internal/cost"
	"github.com/sells-group/compass-cli/internal/resilience"
	"github.com/sells-group/compass-cli/pkg/firecrawl"
)

// FirecrawlProvider serves every operation through the Firecrawl API.
type FirecrawlProvider struct {
	client firecrawl.Client
	calc   *cost.Calculator
	poll   []firecrawl.PollOption
}

// NewFirecrawlProvider wraps a Firecrawl client. calc prices each call in credits.
func NewFirecrawlProvider(client firecrawl.Client, calc *cost.Calculator) *FirecrawlProvider {
	return &FirecrawlProvider{
		client: client,
		calc:   calc,
		poll: []firecrawl.PollOption{
			firecrawl.WithPollInterval(2 * time.Second),
			firecrawl.WithPollCap(10 * time.Second),
		},
	}
}

func (f *FirecrawlProvider) Name() string       { return "firecrawl" }
func (f *FirecrawlProvider) Supports(_ Op) bool { return true }

func (f *FirecrawlProvider) Search(ctx context.Context, q SearchQuery) (*Response, error) {
	query := q.Query
	if q.Site != "" {
		query += " site:" + q.Site
	}
	resp, err := f.client.Search(ctx, firecrawl.SearchRequest{Query: query, Limit: q.Limit})
	if err != nil {
		return nil, classifyFirecrawl(err)
	}

	out := &Response{Credits: f.calc.OpCredits(string(OpSearch))}
	for _, r := range append(resp.Data.Web, resp.Data.News...) {
		snippet := r.Description
		if snippet == "" {
			snippet = r.Snippet
		}
		out.Hits = append(out.Hits, SearchHit{Title: r.Title, URL: r.URL, Snippet: snippet, Date: r.Date})
	}
	if q.Limit > 0 && len(out.Hits) > q.Limit {
		out.Hits = out.Hits[:q.Limit]
	}
	return out, nil
}

func (f *FirecrawlProvider) Map(ctx context.Context, q MapQuery) (*Response, error) {
	resp, err := f.client.Map(ctx, firecrawl.MapRequest{URL: q.URL, Search: q.Search, Limit: q.Limit})
	if err != nil {
		return nil, classifyFirecrawl(err)
	}
	out := &Response{Credits: f.calc.OpCredits(string(OpMap))}
	for _, l := range resp.Links {
		out.URLs = append(out.URLs, l.URL)
	}
	return out, nil
}

// Extract scrapes a single URL directly and batches anything larger.
func (f *FirecrawlProvider) Extract(ctx context.Context, q ExtractQuery) (*Response, error) {
	switch len(q.URLs) {
	case 0:
		return &Response{}, nil
	case 1:
		resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{URL: q.URLs[0], Formats: []string{"markdown"}})
		if err != nil {
			return nil, classifyFirecrawl(err)
		}
		if !resp.Success {
			return nil, eris.New("firecrawl: scrape not successful")
		}
		page := toPage(resp.Data)
		if page.URL == "" {
			page.URL = q.URLs[0]
		}
		return &Response{Pages: []Page{page}, Credits: f.calc.OpCredits(string(OpExtract))}, nil
	}

	start, err := f.client.BatchScrape(ctx, firecrawl.BatchScrapeRequest{URLs: q.URLs, Formats: []string{"markdown"}})
	if err != nil {
		return nil, classifyFirecrawl(err)
	}
	status, err := firecrawl.PollBatchScrape(ctx, f.client, start.ID, f.poll...)
	if err != nil {
		return nil, classifyFirecrawl(err)
	}
	return f.pages(status.Data, OpExtract), nil
}

func (f *FirecrawlProvider) Crawl(ctx context.Context, q CrawlQuery) (*Response, error) {
	start, err := f.client.Crawl(ctx, firecrawl.CrawlRequest{URL: q.URL, MaxDiscoveryDepth: q.MaxDepth, Limit: q.Limit})
	if err != nil {
		return nil, classifyFirecrawl(err)
	}
	status, err := firecrawl.PollCrawl(ctx, f.client, start.ID, f.poll...)
	if err != nil {
		return nil, classifyFirecrawl(err)
	}
	return f.pages(status.Data, OpCrawl), nil
}

// pages converts page data, charging per page returned.
func (f *FirecrawlProvider) pages(data []firecrawl.PageData, op Op) *Response {
	out := &Response{}
	for _, d := range data {
		if d.Markdown == "" {
			continue
		}
		out.Pages = append(out.Pages, toPage(d))
	}
	out.Credits = f.calc.OpCredits(string(op)) * float64(max(1, len(out.Pages)))
	return out
}

func toPage(d firecrawl.PageData) Page {
	return Page{
		URL:        d.PageURL(),
		Title:      d.Metadata.Title,
		Markdown:   d.Markdown,
		StatusCode: d.Metadata.StatusCode,
	}
}

func classifyFirecrawl(err error) error {
	var apiErr *firecrawl.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyStatus(err, apiErr.StatusCode)
	}
	return err
}
