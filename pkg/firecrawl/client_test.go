package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-api-key", WithBaseURL(srv.URL))
}

func TestSearch(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var req SearchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Acme Robotics funding", req.Query)
		assert.Equal(t, 5, req.Limit)

		_, _ = w.Write([]byte(`{"success":true,"data":{"web":[
			{"url":"https://news.example.com/acme","title":"Acme raises Series B","description":"Acme Robotics raised $40M"}
		]}}`))
	})

	resp, err := c.Search(context.Background(), SearchRequest{Query: "Acme Robotics funding", Limit: 5})
	require.NoError(t, err)
	require.Len(t, resp.Data.Web, 1)
	assert.Equal(t, "Acme raises Series B", resp.Data.Web[0].Title)
	assert.Equal(t, "https://news.example.com/acme", resp.Data.Web[0].URL)
}

func TestMap(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/map", r.URL.Path)

		var req MapRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://acme.io", req.URL)

		_, _ = w.Write([]byte(`{"success":true,"links":[
			{"url":"https://acme.io/about","title":"About"},
			{"url":"https://acme.io/pricing"}
		]}`))
	})

	resp, err := c.Map(context.Background(), MapRequest{URL: "https://acme.io", Limit: 50})
	require.NoError(t, err)
	require.Len(t, resp.Links, 2)
	assert.Equal(t, "About", resp.Links[0].Title)
	assert.Equal(t, "https://acme.io/pricing", resp.Links[1].URL)
}

func TestCrawl(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantID     string
		wantStatus int
	}{
		{
			name: "started",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/crawl", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req CrawlRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, 2, req.MaxDiscoveryDepth)

				_ = json.NewEncoder(w).Encode(CrawlResponse{Success: true, ID: "crawl-123"})
			},
			wantID: "crawl-123",
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			},
			wantStatus: 401,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"overloaded"}`))
			},
			wantStatus: 503,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.handler)
			resp, err := c.Crawl(context.Background(), CrawlRequest{URL: "https://acme.io", MaxDiscoveryDepth: 2, Limit: 10})

			if tt.wantStatus != 0 {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, resp.ID)
		})
	}
}

func TestGetCrawlStatus(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/crawl/crawl-123", r.URL.Path)

		_, _ = w.Write([]byte(`{"status":"completed","total":1,"data":[
			{"markdown":"# Acme","metadata":{"title":"Acme","sourceURL":"https://acme.io","statusCode":200}}
		]}`))
	})

	resp, err := c.GetCrawlStatus(context.Background(), "crawl-123")
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "https://acme.io", resp.Data[0].PageURL())
	assert.Equal(t, 200, resp.Data[0].Metadata.StatusCode)
}

func TestScrape(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)

		var req ScrapeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"markdown"}, req.Formats)

		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"# About Acme",
			"metadata":{"title":"About","sourceURL":"https://acme.io/about","url":"https://www.acme.io/about"}}}`))
	})

	resp, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://acme.io/about", Formats: []string{"markdown"}})
	require.NoError(t, err)
	assert.Equal(t, "About", resp.Data.Metadata.Title)
	assert.Equal(t, "https://www.acme.io/about", resp.Data.PageURL())
}

func TestBatchScrape(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/batch/scrape":
			var req BatchScrapeRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req.URLs, 2)
			_ = json.NewEncoder(w).Encode(BatchScrapeResponse{Success: true, ID: "batch-456"})
		case "/batch/scrape/batch-456":
			_, _ = w.Write([]byte(`{"status":"completed","total":2,"data":[{"markdown":"# A"},{"markdown":"# B"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	start, err := c.BatchScrape(context.Background(), BatchScrapeRequest{URLs: []string{"https://a.io", "https://b.io"}})
	require.NoError(t, err)
	assert.Equal(t, "batch-456", start.ID)

	st, err := c.GetBatchScrapeStatus(context.Background(), start.ID)
	require.NoError(t, err)
	assert.Len(t, st.Data, 2)
}

func TestContextCancellation(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should have been cancelled")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, SearchRequest{Query: "acme"})
	require.Error(t, err)
}

func TestMalformedJSON(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := c.Map(context.Background(), MapRequest{URL: "https://acme.io"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestAPIError_Error(t *testing.T) {
	e := &APIError{StatusCode: 429, Body: `{"error":"rate limited"}`}
	assert.Equal(t, `firecrawl: HTTP 429: {"error":"rate limited"}`, e.Error())
}

func TestWithHTTPClient(t *testing.T) {
	custom := &http.Client{}
	c := NewClient("key", WithHTTPClient(custom))
	assert.Same(t, custom, c.(*httpClient).http)
}
