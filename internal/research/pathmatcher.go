package research

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns drop assets and plumbing that never describe a company.
var defaultExcludePatterns = []string{
	"/*.pdf",
	"/*.jpg",
	"/*.png",
	"/*.svg",
	"/*.xml",
	"/wp-content/*",
	"/wp-json/*",
	"/cdn-cgi/*",
	"/tag/*",
	"/author/*",
	"/login",
	"/signin",
}

// PathMatcher filters URLs by glob-style path patterns. A pattern ending in
// "/*" matches every path below its directory.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher; no patterns means the defaults.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// IsExcluded reports whether a URL matches any pattern. Unparseable URLs
// are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(strings.ToLower(pattern), p) {
			return true
		}
	}
	return false
}

func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	// "/*.pdf" should match "/docs/deck.pdf" too.
	if strings.HasPrefix(pattern, "/*.") && strings.HasSuffix(urlPath, pattern[2:]) {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")
	}
	return false
}
