package research

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/compass-cli/internal/resilience"
)

// maxBodyBytes bounds how much of a page the direct provider reads.
const maxBodyBytes = 1 << 20

// DirectProvider fetches pages over plain HTTP and parses them with goquery.
// It is free and serves extract and map only.
type DirectProvider struct {
	client    *http.Client
	userAgent string
}

// NewDirectProvider creates a DirectProvider.
func NewDirectProvider(userAgent string) *DirectProvider {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; CompassBot/1.0)"
	}
	return &DirectProvider{
		userAgent: userAgent,
		client: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (d *DirectProvider) Name() string { return "direct" }

func (d *DirectProvider) Supports(op Op) bool { return op == OpExtract || op == OpMap }

func (d *DirectProvider) Search(context.Context, SearchQuery) (*Response, error) {
	return nil, ErrUnsupported
}

func (d *DirectProvider) Crawl(context.Context, CrawlQuery) (*Response, error) {
	return nil, ErrUnsupported
}

func (d *DirectProvider) Extract(ctx context.Context, q ExtractQuery) (*Response, error) {
	out := &Response{}
	var lastErr error
	for _, u := range q.URLs {
		doc, status, err := d.fetch(ctx, u)
		if err != nil {
			lastErr = err
			continue
		}
		out.Pages = append(out.Pages, Page{
			URL:        u,
			Title:      strings.TrimSpace(doc.Find("title").First().Text()),
			Markdown:   readableText(doc),
			StatusCode: status,
		})
	}
	if len(out.Pages) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// Map collects same-site links from the page at q.URL.
func (d *DirectProvider) Map(ctx context.Context, q MapQuery) (*Response, error) {
	doc, _, err := d.fetch(ctx, q.URL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(q.URL)
	if err != nil {
		return nil, eris.Wrap(err, "direct: parse map url")
	}

	seen := map[string]bool{}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || href == "" {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" || !sameSite(abs.Host, base.Host) {
			return
		}
		abs.Fragment = ""
		u := strings.TrimSuffix(abs.String(), "/")
		if seen[u] {
			return
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(u), strings.ToLower(q.Search)) {
			return
		}
		seen[u] = true
		links = append(links, u)
	})
	if q.Limit > 0 && len(links) > q.Limit {
		links = links[:q.Limit]
	}
	return &Response{URLs: links}, nil
}

func (d *DirectProvider) fetch(ctx context.Context, target string) (*goquery.Document, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "direct: create request")
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "direct: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "direct: read body")
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, resp.StatusCode, eris.Errorf("direct: blocked (%s) at %s", kind, target)
	}
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, resilience.ClassifyStatus(
			eris.Errorf("direct: status %d at %s", resp.StatusCode, target), resp.StatusCode)
	}
	if len(bytes.TrimSpace(body)) < 100 {
		return nil, resp.StatusCode, eris.Errorf("direct: empty page at %s", target)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "direct: parse html")
	}
	return doc, resp.StatusCode, nil
}

var (
	spaceRe   = regexp.MustCompile(`[ \t]+`)
	newlineRe = regexp.MustCompile(`\n\s*\n+`)
)

// readableText strips chrome and scripts and returns the main text of a page.
func readableText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer, header, iframe, svg, .cookie-banner").Remove()

	root := doc.Find("main, article, [role=main]").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var b strings.Builder
	root.Find("h1, h2, h3, h4, p, li").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(spaceRe.ReplaceAllString(s.Text(), " "))
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			b.WriteString("# ")
		case "h2":
			b.WriteString("## ")
		case "h3", "h4":
			b.WriteString("### ")
		case "li":
			b.WriteString("- ")
		}
		b.WriteString(text)
		b.WriteString("\n")
	})

	text := b.String()
	if strings.TrimSpace(text) == "" {
		text = root.Text()
	}
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(newlineRe.ReplaceAllString(text, "\n\n"))
}
