package research

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/compass-cli/internal/model"
)

func TestCandidateSites(t *testing.T) {
	tests := []struct {
		name    string
		company model.Company
		want    []string
	}{
		{"domain", model.Company{Name: "Acme", Domain: "Acme.io/"}, []string{"https://acme.io"}},
		{"url domain", model.Company{Name: "Acme", Domain: "https://www.acme.io/about"}, []string{"https://www.acme.io"}},
		{"name only", model.Company{Name: "Acme Robotics, Inc."}, []string{
			"https://acmerobotics.com", "https://acmerobotics.io", "https://www.acmerobotics.com",
		}},
		{"nothing", model.Company{Name: "!!!"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CandidateSites(tt.company))
		})
	}
}

func TestCategorizePages(t *testing.T) {
	got := CategorizePages([]string{
		"https://acme.io",
		"https://acme.io/about-us",
		"https://acme.io/company/history",
		"https://acme.io/leadership",
		"https://acme.io/careers",
		"https://acme.io/blog/launch",
		"https://acme.io/pricing",
	})
	assert.Equal(t, map[string]string{
		"about":   "https://acme.io/about-us",
		"team":    "https://acme.io/leadership",
		"careers": "https://acme.io/careers",
		"blog":    "https://acme.io/blog/launch",
		"product": "https://acme.io/pricing",
	}, got)
}

func TestFilterURLs(t *testing.T) {
	urls := []string{
		"https://acme.io/about/",
		"https://acme.io/about",
		"https://www.acme.io/team",
		"https://acme.io/deck.pdf",
		"https://acme.io/wp-content/uploads/logo.png",
		"https://twitter.com/acme",
		"https://acme.io/careers",
		"https://acme.io/blog",
	}
	got := FilterURLs(urls, "https://acme.io", NewPathMatcher(nil), 3)
	assert.Equal(t, []string{"https://acme.io/about", "https://www.acme.io/team", "https://acme.io/careers"}, got)
}

func TestDeriveAliases(t *testing.T) {
	tests := []struct {
		name    string
		company model.Company
		want    []string
	}{
		{"suffix and domain", model.Company{Name: "Acme Robotics, Inc.", Domain: "acme-robotics.io"}, []string{"Acme Robotics"}},
		{"domain differs", model.Company{Name: "Acme", Domain: "getacme.com"}, []string{"Getacme"}},
		{"nothing new", model.Company{Name: "Acme", Domain: "acme.com"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveAliases(tt.company))
		})
	}
}

func TestPathMatcher(t *testing.T) {
	m := NewPathMatcher([]string{"/blog/*", "/*.pdf"})
	assert.True(t, m.IsExcluded("https://acme.io/blog/2024/launch"))
	assert.True(t, m.IsExcluded("https://acme.io/blog"))
	assert.True(t, m.IsExcluded("https://acme.io/files/Deck.PDF"))
	assert.False(t, m.IsExcluded("https://acme.io/blogroll"))
	assert.False(t, m.IsExcluded("https://acme.io/about"))
	assert.True(t, m.IsExcluded("://bad"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "a", truncate("aé", 2))
}
