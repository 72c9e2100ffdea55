// Package extract pulls labelled findings out of free-form model text when a
// structured result is unavailable.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultMaxPerField caps the lines kept per field.
const DefaultMaxPerField = 10

// DefaultMinLineLen drops lines too short to carry a finding.
const DefaultMinLineLen = 12

// Hints maps a target field to the lower-case keywords that identify it.
type Hints map[string][]string

// Options tune Parse.
type Options struct {
	MaxPerField int
	MinLineLen  int
}

// Document is the result of a heuristic parse.
type Document struct {
	Fields   map[string][]string
	Headings []string
	URLs     []string
	// Confidence is the first confidence score found in the text.
	Confidence    float64
	HasConfidence bool
}

// Empty reports whether the parse found nothing a stage could use.
func (d Document) Empty() bool {
	for _, lines := range d.Fields {
		if len(lines) > 0 {
			return false
		}
	}
	return len(d.Headings) == 0 && len(d.URLs) == 0
}

// Field returns the lines bucketed under name.
func (d Document) Field(name string) []string {
	return d.Fields[name]
}

// First returns the first line of a field, or "".
func (d Document) First(name string) string {
	if lines := d.Fields[name]; len(lines) > 0 {
		return lines[0]
	}
	return ""
}

var (
	urlRe        = regexp.MustCompile(`https?://[^\s<>"{}|\\^\[\]` + "`" + `()]+`)
	bulletRe     = regexp.MustCompile(`^(?:[-*+•]\s+|\d+[.)]\s+|[a-z][.)]\s+)`)
	emphasisRe   = regexp.MustCompile(`\*\*|__`)
	labelledConf = regexp.MustCompile(`(?i)confidence[^0-9\n]{0,30}(\d{1,3}%|0\.\d+|1\.0+|1\b)`)
	decimalConf  = regexp.MustCompile(`\b(0\.\d+|1\.0)\b`)
	percentConf  = regexp.MustCompile(`\b(\d{1,3})%`)
)

// Parse splits text into the fields named by hints with default options.
func Parse(text string, hints Hints) Document {
	return ParseWith(text, hints, Options{})
}

// ParseWith splits text into fields. A markdown heading containing a hint
// keyword opens a section for that field and any other heading closes it.
// Other lines go to the field whose keyword appears earliest in the line,
// falling back to the open section.
func ParseWith(text string, hints Hints, opts Options) Document {
	if opts.MaxPerField <= 0 {
		opts.MaxPerField = DefaultMaxPerField
	}
	if opts.MinLineLen <= 0 {
		opts.MinLineLen = DefaultMinLineLen
	}

	doc := Document{Fields: map[string][]string{}}
	doc.Confidence, doc.HasConfidence = FindConfidence(text)
	doc.URLs = FindURLs(text)

	fields := sortedFields(hints)
	seen := map[string]bool{}
	current := ""

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if heading, ok := headingText(line); ok {
			doc.Headings = append(doc.Headings, heading)
			current = matchField(strings.ToLower(heading), fields, hints)
			continue
		}

		line = CleanLine(line)
		if len(line) < opts.MinLineLen {
			continue
		}

		field := matchField(strings.ToLower(line), fields, hints)
		if field == "" {
			field = current
		}
		if field == "" || len(doc.Fields[field]) >= opts.MaxPerField {
			continue
		}
		key := field + "\x00" + line
		if seen[key] {
			continue
		}
		seen[key] = true
		doc.Fields[field] = append(doc.Fields[field], line)
	}
	return doc
}

// CleanLine strips list markers and emphasis from a line.
func CleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = bulletRe.ReplaceAllString(line, "")
	line = emphasisRe.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

// FindConfidence returns the first confidence score in text as a fraction.
// A score labelled "confidence" wins over a bare decimal or percentage.
func FindConfidence(text string) (float64, bool) {
	if m := labelledConf.FindStringSubmatch(text); m != nil {
		if v, ok := parseScore(m[1]); ok {
			return v, true
		}
	}
	if m := decimalConf.FindStringSubmatch(text); m != nil {
		if v, ok := parseScore(m[1]); ok {
			return v, true
		}
	}
	for _, m := range percentConf.FindAllStringSubmatch(text, -1) {
		if v, ok := parseScore(m[1] + "%"); ok {
			return v, true
		}
	}
	return 0, false
}

// FindURLs returns the distinct URLs in text in order of appearance.
func FindURLs(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, u := range urlRe.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?'")
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func parseScore(s string) (float64, bool) {
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		n, err := strconv.Atoi(pct)
		if err != nil || n > 100 {
			return 0, false
		}
		return float64(n) / 100, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// headingText recognises "# Heading" and a bold-only "**Heading:**" line.
func headingText(line string) (string, bool) {
	if strings.HasPrefix(line, "#") {
		return strings.TrimSpace(strings.TrimLeft(line, "#")), true
	}
	if strings.HasPrefix(line, "**") && strings.HasSuffix(strings.TrimSuffix(line, ":"), "**") && len(line) <= 80 {
		h := strings.Trim(line, "*: ")
		if h != "" && !strings.Contains(h, "**") {
			return h, true
		}
	}
	return "", false
}

// matchField returns the field whose keyword occurs earliest in lower.
func matchField(lower string, fields []string, hints Hints) string {
	best, bestAt := "", -1
	for _, f := range fields {
		for _, kw := range hints[f] {
			at := strings.Index(lower, kw)
			if at < 0 {
				continue
			}
			if bestAt < 0 || at < bestAt {
				best, bestAt = f, at
			}
		}
	}
	return best
}

func sortedFields(hints Hints) []string {
	fields := make([]string, 0, len(hints))
	for f := range hints {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
