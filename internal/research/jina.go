package research

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compass-cli/internal/resilience"
	"github.com/sells-group/compass-cli/pkg/jina"
)

// JinaProvider serves search, map and extract through the Jina reader.
type JinaProvider struct {
	client jina.Client
}

// NewJinaProvider wraps a Jina client.
func NewJinaProvider(client jina.Client) *JinaProvider {
	return &JinaProvider{client: client}
}

func (j *JinaProvider) Name() string { return "jina" }

func (j *JinaProvider) Supports(op Op) bool { return op != OpCrawl }

func (j *JinaProvider) Search(ctx context.Context, q SearchQuery) (*Response, error) {
	var opts []jina.SearchOption
	if q.Site != "" {
		opts = append(opts, jina.WithSiteFilter(q.Site))
	}
	if q.Limit > 0 {
		opts = append(opts, jina.WithLimit(q.Limit))
	}
	resp, err := j.client.Search(ctx, q.Query, opts...)
	if err != nil {
		return nil, classifyJina(err)
	}

	out := &Response{Tokens: resp.Tokens()}
	for _, r := range resp.Data {
		snippet := r.Description
		if snippet == "" {
			snippet = truncate(r.Content, 300)
		}
		out.Hits = append(out.Hits, SearchHit{Title: r.Title, URL: r.URL, Snippet: snippet, Date: r.Date})
	}
	return out, nil
}

// Map reads the page with a links summary and keeps same-host links.
func (j *JinaProvider) Map(ctx context.Context, q MapQuery) (*Response, error) {
	resp, err := j.client.Read(ctx, q.URL, jina.WithLinks())
	if err != nil {
		return nil, classifyJina(err)
	}
	base, err := url.Parse(q.URL)
	if err != nil {
		return nil, eris.Wrap(err, "jina: parse map url")
	}

	var links []string
	for _, l := range resp.Data.Links {
		u, err := url.Parse(l)
		if err != nil || !sameSite(u.Host, base.Host) {
			continue
		}
		links = append(links, l)
	}
	slices.Sort(links)
	links = slices.Compact(links)
	if q.Limit > 0 && len(links) > q.Limit {
		links = links[:q.Limit]
	}
	return &Response{URLs: links, Tokens: resp.Data.Usage.Tokens}, nil
}

// Extract reads each URL, failing when any page is unusable so the next
// provider can try the whole set.
func (j *JinaProvider) Extract(ctx context.Context, q ExtractQuery) (*Response, error) {
	out := &Response{}
	for _, u := range q.URLs {
		resp, err := j.client.Read(ctx, u)
		if err != nil {
			return nil, classifyJina(err)
		}
		if needsFallback(resp) {
			return nil, eris.Errorf("jina: response for %s needs fallback", u)
		}
		out.Pages = append(out.Pages, Page{
			URL:        firstNonEmpty(resp.Data.URL, u),
			Title:      resp.Data.Title,
			Markdown:   resp.Data.Content,
			StatusCode: 200,
		})
		out.Tokens += resp.Data.Usage.Tokens
	}
	return out, nil
}

func (j *JinaProvider) Crawl(context.Context, CrawlQuery) (*Response, error) {
	return nil, ErrUnsupported
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// needsFallback reports whether a reader response is empty or a bot
// challenge page rather than real content.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}

func classifyJina(err error) error {
	var apiErr *jina.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyStatus(err, apiErr.StatusCode)
	}
	return err
}
