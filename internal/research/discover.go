package research

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/compass-cli/internal/model"
)

// Key page categories and the path keywords that identify them, in the
// order they are tried.
var pageCategories = []struct {
	name     string
	keywords []string
}{
	{"about", []string{"about", "company", "who-we-are", "our-story", "mission"}},
	{"team", []string{"team", "leadership", "founders", "people", "management"}},
	{"careers", []string{"careers", "jobs", "join-us", "hiring"}},
	{"blog", []string{"blog", "news", "press", "insights", "updates"}},
	{"product", []string{"product", "solutions", "platform", "features", "pricing", "services"}},
}

var (
	nonAlnumRe    = regexp.MustCompile(`[^a-z0-9]+`)
	legalSuffixRe = regexp.MustCompile(`(?i)[,\s]+(inc|llc|ltd|corp|corporation|co|gmbh|plc|limited|company)\.?$`)
)

// NormalizeSite turns a bare domain or URL into "https://host".
func NormalizeSite(domain string) string {
	d := strings.TrimSpace(strings.ToLower(domain))
	if d == "" {
		return ""
	}
	if !strings.Contains(d, "://") {
		d = "https://" + d
	}
	u, err := url.Parse(d)
	if err != nil || u.Host == "" {
		return ""
	}
	return "https://" + u.Host
}

// Host returns the host of a URL without a leading "www.".
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// CandidateSites returns the sites worth mapping for a company: its domain
// when known, otherwise guesses built from the name.
func CandidateSites(c model.Company) []string {
	if site := NormalizeSite(c.Domain); site != "" {
		return []string{site}
	}
	slug := nonAlnumRe.ReplaceAllString(strings.ToLower(StripLegalSuffix(c.Name)), "")
	if slug == "" {
		return nil
	}
	return []string{
		"https://" + slug + ".com",
		"https://" + slug + ".io",
		"https://www." + slug + ".com",
	}
}

// CategorizePages picks at most one URL per key page category.
func CategorizePages(urls []string) map[string]string {
	out := map[string]string{}
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		p := strings.ToLower(u.Path)
		for _, cat := range pageCategories {
			if _, taken := out[cat.name]; taken {
				continue
			}
			if slices.ContainsFunc(cat.keywords, func(k string) bool { return strings.Contains(p, k) }) {
				out[cat.name] = raw
				break
			}
		}
	}
	return out
}

// FilterURLs keeps same-site URLs not excluded by m, deduplicated and
// capped at limit (0 means no cap).
func FilterURLs(urls []string, site string, m *PathMatcher, limit int) []string {
	host := Host(site)
	seen := map[string]bool{}
	var out []string
	for _, raw := range urls {
		u := strings.TrimSuffix(strings.TrimSpace(raw), "/")
		if u == "" || seen[u] || m.IsExcluded(u) {
			continue
		}
		if host != "" && !sameSite(Host(u), host) {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// StripLegalSuffix removes a trailing "Inc.", "LLC" and the like.
func StripLegalSuffix(name string) string {
	return strings.TrimSpace(legalSuffixRe.ReplaceAllString(strings.TrimSpace(name), ""))
}

// DeriveAliases returns names the company may be reported under, excluding
// the name itself: the name without its legal suffix and the title-cased
// domain label ("acme-robotics.io" gives "Acme Robotics").
func DeriveAliases(c model.Company) []string {
	caser := cases.Title(language.English)
	var out []string
	add := func(a string) {
		a = strings.TrimSpace(a)
		if a == "" || strings.EqualFold(a, c.Name) {
			return
		}
		if slices.ContainsFunc(out, func(s string) bool { return strings.EqualFold(s, a) }) {
			return
		}
		out = append(out, a)
	}

	add(StripLegalSuffix(c.Name))
	if host := Host(NormalizeSite(c.Domain)); host != "" {
		label, _, _ := strings.Cut(host, ".")
		add(caser.String(strings.NewReplacer("-", " ", "_", " ").Replace(label)))
	}
	return out
}

// sameSite reports whether two hosts are the same site, ignoring "www.".
func sameSite(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a != "" && a == b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
