package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/compass-cli/internal/research"
)

// Research tool names offered to the model.
const (
	ToolWebSearch      = "web_search"
	ToolMapSite        = "map_site"
	ToolExtractContent = "extract_content"
	ToolCrawlSite      = "crawl_site"
)

// pageChars caps the markdown returned per extracted page.
const pageChars = 8000

// Researcher is the research surface the tools call. *research.Toolkit
// satisfies it.
type Researcher interface {
	Search(ctx context.Context, q research.SearchQuery) (*research.Response, error)
	Map(ctx context.Context, q research.MapQuery) (*research.Response, error)
	Extract(ctx context.Context, q research.ExtractQuery) (*research.Response, error)
	Crawl(ctx context.Context, q research.CrawlQuery) (*research.Response, error)
}

// ResearchTools builds the research tools bound to r.
func ResearchTools(r Researcher) []Tool {
	return []Tool{
		{
			Name:        ToolWebSearch,
			Description: "Search the web. Returns titles, URLs, dates and snippets. Use site to restrict results to one domain.",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "minLength": 1},
					"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
					"site":  map[string]any{"type": "string"},
				},
				"required":             []any{"query"},
				"additionalProperties": false,
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				resp, err := r.Search(ctx, research.SearchQuery{
					Query: stringArg(args, "query"),
					Limit: intArg(args, "limit", 5),
					Site:  stringArg(args, "site"),
				})
				if err != nil {
					return nil, err
				}
				return renderHits(resp.Hits), nil
			},
		},
		{
			Name:        ToolMapSite,
			Description: "List the URLs of a website. Use search to rank URLs matching a keyword first.",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url":    map[string]any{"type": "string", "minLength": 1},
					"search": map[string]any{"type": "string"},
					"limit":  map[string]any{"type": "integer", "minimum": 1, "maximum": 100},
				},
				"required":             []any{"url"},
				"additionalProperties": false,
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				resp, err := r.Map(ctx, research.MapQuery{
					URL:    stringArg(args, "url"),
					Search: stringArg(args, "search"),
					Limit:  intArg(args, "limit", 30),
				})
				if err != nil {
					return nil, err
				}
				if len(resp.URLs) == 0 {
					return "no URLs found", nil
				}
				return strings.Join(resp.URLs, "\n"), nil
			},
		},
		{
			Name:        ToolExtractContent,
			Description: "Fetch one or more pages and return their content as markdown.",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"urls": map[string]any{
						"type":     "array",
						"items":    map[string]any{"type": "string", "minLength": 1},
						"minItems": 1,
						"maxItems": 10,
					},
				},
				"required":             []any{"urls"},
				"additionalProperties": false,
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				resp, err := r.Extract(ctx, research.ExtractQuery{URLs: stringsArg(args, "urls")})
				if err != nil {
					return nil, err
				}
				return renderPages(resp.Pages), nil
			},
		},
		{
			Name:        ToolCrawlSite,
			Description: "Crawl a website from a start URL and return the content of the pages found.",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url":       map[string]any{"type": "string", "minLength": 1},
					"max_depth": map[string]any{"type": "integer", "minimum": 1, "maximum": 3},
					"limit":     map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
				},
				"required":             []any{"url"},
				"additionalProperties": false,
			},
			Exec: func(ctx context.Context, args map[string]any) (any, error) {
				resp, err := r.Crawl(ctx, research.CrawlQuery{
					URL:      stringArg(args, "url"),
					MaxDepth: intArg(args, "max_depth", 2),
					Limit:    intArg(args, "limit", 15),
				})
				if err != nil {
					return nil, err
				}
				return renderPages(resp.Pages), nil
			},
		},
	}
}

// NewResearchRegistry returns a registry holding the research tools bound to
// r, each capped at limit output characters (0 uses DefaultOutputLimit).
func NewResearchRegistry(r Researcher, limit int) (*Registry, error) {
	reg := NewRegistry()
	for _, t := range ResearchTools(r) {
		t.Limit = limit
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func renderHits(hits []research.SearchHit) string {
	if len(hits) == 0 {
		return "no results"
	}
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, h.Title, h.URL)
		if h.Date != "" {
			fmt.Fprintf(&b, "   date: %s\n", h.Date)
		}
		if h.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", h.Snippet)
		}
	}
	return b.String()
}

func renderPages(pages []research.Page) string {
	if len(pages) == 0 {
		return "no content extracted"
	}
	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "## %s\nURL: %s\n\n", p.Title, p.URL)
		md := p.Markdown
		if len(md) > pageChars {
			md = md[:pageChars] + "\n[page truncated]"
		}
		b.WriteString(md)
		b.WriteString("\n\n")
	}
	return b.String()
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// intArg reads a JSON number argument, falling back to def.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func stringsArg(args map[string]any, key string) []string {
	raw, _ := args[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
