// Package research wraps the external web research providers behind one
// toolkit with caching, rate limiting, budget checks and retries.
package research

import (
	"context"

	"github.com/rotisserie/eris"
)

// Op is a research operation.
type Op string

const (
	OpSearch  Op = "search"
	OpMap     Op = "map"
	OpExtract Op = "extract"
	OpCrawl   Op = "crawl"
)

// ErrUnsupported is returned by a provider for an operation it cannot serve.
// The chain skips such providers without logging.
var ErrUnsupported = eris.New("research: operation not supported")

// SearchQuery is the input of a web search.
type SearchQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	Site  string `json:"site,omitempty"`
}

// MapQuery is the input of a site map.
type MapQuery struct {
	URL    string `json:"url"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// ExtractQuery is the input of a content extraction.
type ExtractQuery struct {
	URLs []string `json:"urls"`
}

// CrawlQuery is the input of a site crawl.
type CrawlQuery struct {
	URL      string `json:"url"`
	MaxDepth int    `json:"max_depth,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// SearchHit is a single search result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Page is the readable content of one URL.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Markdown   string `json:"markdown"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Response is the result of any operation. Only the fields of the operation
// that produced it are set.
type Response struct {
	Provider string      `json:"provider"`
	Hits     []SearchHit `json:"hits,omitempty"`
	URLs     []string    `json:"urls,omitempty"`
	Pages    []Page      `json:"pages,omitempty"`

	// Credits are provider credits consumed; Tokens are reader tokens.
	Credits float64 `json:"credits,omitempty"`
	Tokens  int     `json:"tokens,omitempty"`
	Cached  bool    `json:"cached,omitempty"`
}

// Provider is one research backend.
type Provider interface {
	Name() string
	Supports(op Op) bool
	Search(ctx context.Context, q SearchQuery) (*Response, error)
	Map(ctx context.Context, q MapQuery) (*Response, error)
	Extract(ctx context.Context, q ExtractQuery) (*Response, error)
	Crawl(ctx context.Context, q CrawlQuery) (*Response, error)
}
