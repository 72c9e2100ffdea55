package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compass-cli/internal/cost"
	"github.com/sells-group/compass-cli/internal/resilience"
	"github.com/sells-group/compass-cli/pkg/firecrawl"
	"github.com/sells-group/compass-cli/pkg/jina"
)

func newFirecrawl(t *testing.T, handler http.HandlerFunc) *FirecrawlProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := firecrawl.NewClient("fc-key", firecrawl.WithBaseURL(srv.URL))
	p := NewFirecrawlProvider(client, cost.NewCalculator(cost.DefaultRates()))
	p.poll = []firecrawl.PollOption{firecrawl.WithPollInterval(1), firecrawl.WithPollCap(1)}
	return p
}

func TestFirecrawlProvider_Search(t *testing.T) {
	p := newFirecrawl(t, func(w http.ResponseWriter, r *http.Request) {
		var req firecrawl.SearchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Acme funding site:acme.io", req.Query)
		_, _ = w.Write([]byte(`{"success":true,"data":{
			"web":[{"url":"https://acme.io/news","title":"Acme news","description":"Acme raised"}],
			"news":[{"url":"https://tc.test/acme","title":"Acme Series B","snippet":"$40M","date":"2024-03-01"}]}}`))
	})

	resp, err := p.Search(context.Background(), SearchQuery{Query: "Acme funding", Site: "acme.io", Limit: 5})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	assert.Equal(t, "Acme raised", resp.Hits[0].Snippet)
	assert.Equal(t, "$40M", resp.Hits[1].Snippet)
	assert.Equal(t, "2024-03-01", resp.Hits[1].Date)
	assert.Equal(t, 2.0, resp.Credits)
}

func TestFirecrawlProvider_ExtractSingleAndBatch(t *testing.T) {
	p := newFirecrawl(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/scrape":
			_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"# About","metadata":{"title":"About"}}}`))
		case "/batch/scrape":
			_, _ = w.Write([]byte(`{"success":true,"id":"b1"}`))
		case "/batch/scrape/b1":
			_, _ = w.Write([]byte(`{"status":"completed","data":[
				{"markdown":"# A","metadata":{"sourceURL":"https://acme.io/a"}},
				{"markdown":"","metadata":{"sourceURL":"https://acme.io/empty"}},
				{"markdown":"# B","metadata":{"sourceURL":"https://acme.io/b"}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	single, err := p.Extract(context.Background(), ExtractQuery{URLs: []string{"https://acme.io/about"}})
	require.NoError(t, err)
	require.Len(t, single.Pages, 1)
	assert.Equal(t, "https://acme.io/about", single.Pages[0].URL)
	assert.Equal(t, 1.0, single.Credits)

	batch, err := p.Extract(context.Background(), ExtractQuery{URLs: []string{"https://acme.io/a", "https://acme.io/empty", "https://acme.io/b"}})
	require.NoError(t, err)
	require.Len(t, batch.Pages, 2)
	assert.Equal(t, "https://acme.io/b", batch.Pages[1].URL)
	assert.Equal(t, 2.0, batch.Credits)
}

func TestFirecrawlProvider_CrawlAndMap(t *testing.T) {
	p := newFirecrawl(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/map":
			_, _ = w.Write([]byte(`{"success":true,"links":[{"url":"https://acme.io/about"},{"url":"https://acme.io/team"}]}`))
		case r.URL.Path == "/crawl":
			var req firecrawl.CrawlRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 2, req.MaxDiscoveryDepth)
			_, _ = w.Write([]byte(`{"success":true,"id":"c1"}`))
		case strings.HasPrefix(r.URL.Path, "/crawl/"):
			_, _ = w.Write([]byte(`{"status":"completed","data":[{"markdown":"# Home","metadata":{"url":"https://acme.io"}}]}`))
		}
	})

	m, err := p.Map(context.Background(), MapQuery{URL: "https://acme.io"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.io/about", "https://acme.io/team"}, m.URLs)

	c, err := p.Crawl(context.Background(), CrawlQuery{URL: "https://acme.io", MaxDepth: 2, Limit: 15})
	require.NoError(t, err)
	require.Len(t, c.Pages, 1)
	assert.Equal(t, "https://acme.io", c.Pages[0].URL)
}

func TestFirecrawlProvider_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusPaymentRequired, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newFirecrawl(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := p.Search(context.Background(), SearchQuery{Query: "acme"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func newJina(t *testing.T, handler http.HandlerFunc) *JinaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewJinaProvider(jina.NewClient("jina-key", jina.WithBaseURL(srv.URL), jina.WithSearchBaseURL(srv.URL)))
}

func TestJinaProvider_Search(t *testing.T) {
	p := newJina(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("num"))
		_, _ = w.Write([]byte(`{"code":200,"data":[
			{"title":"Acme","url":"https://acme.io","description":"Robots","usage":{"tokens":120}},
			{"title":"Acme blog","url":"https://acme.io/blog","content":"Long content","usage":{"tokens":80}}]}`))
	})

	resp, err := p.Search(context.Background(), SearchQuery{Query: "acme", Limit: 3})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	assert.Equal(t, "Robots", resp.Hits[0].Snippet)
	assert.Equal(t, "Long content", resp.Hits[1].Snippet)
	assert.Equal(t, 200, resp.Tokens)
	assert.Zero(t, resp.Credits)
}

func TestJinaProvider_MapKeepsSameSite(t *testing.T) {
	p := newJina(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.Header.Get("X-With-Links-Summary"))
		_, _ = w.Write([]byte(`{"code":200,"data":{"content":"# Acme","links":{
			"About":"https://acme.io/about","Team":"https://www.acme.io/team",
			"Twitter":"https://twitter.com/acme","About (footer)":"https://acme.io/about"}}}`))
	})

	resp, err := p.Map(context.Background(), MapQuery{URL: "https://acme.io"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.io/about", "https://www.acme.io/team"}, resp.URLs)
}

func TestJinaProvider_ExtractNeedsFallback(t *testing.T) {
	p := newJina(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":{"content":"Just a moment... checking your browser"}}`))
	})

	_, err := p.Extract(context.Background(), ExtractQuery{URLs: []string{"https://acme.io"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs fallback")

	_, err = p.Crawl(context.Background(), CrawlQuery{URL: "https://acme.io"})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, p.Supports(OpCrawl))
}

func TestNeedsFallback(t *testing.T) {
	long := strings.Repeat("Acme builds warehouse robots. ", 10)
	tests := []struct {
		name string
		resp *jina.ReadResponse
		want bool
	}{
		{"nil", nil, true},
		{"bad code", &jina.ReadResponse{Code: 451, Data: jina.ReadData{Content: long}}, true},
		{"short", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: "hi"}}, true},
		{"challenge", &jina.ReadResponse{Data: jina.ReadData{Content: long + " Attention Required"}}, true},
		{"ok", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: long}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsFallback(tt.resp))
		})
	}
}
