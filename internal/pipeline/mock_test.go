package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/agent"
	"github.com/sells-group/compass-cli/internal/config"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/research"
	"github.com/sells-group/compass-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// scriptedRunner answers each stage with a fixed structured output or error.
type scriptedRunner struct {
	mu      sync.Mutex
	outputs map[string]any
	errs    map[string]error
	calls   map[string]int
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{outputs: map[string]any{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (r *scriptedRunner) Run(_ context.Context, req agent.Request) (*agent.Outcome, error) {
	r.mu.Lock()
	r.calls[req.Stage]++
	out, hasOut := r.outputs[req.Stage]
	err := r.errs[req.Stage]
	r.mu.Unlock()

	if err != nil {
		return &agent.Outcome{}, err
	}
	if !hasOut {
		return &agent.Outcome{Text: ""}, nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &agent.Outcome{
		Structured: raw,
		Usage:      model.TokenUsage{InputTokens: 100, OutputTokens: 50, Cost: 0.01},
		Turns:      1,
	}, nil
}

func (r *scriptedRunner) Calls(stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[stage]
}

// stubResearcher maps every site to a fixed URL list, or fails with mapErr.
type stubResearcher struct {
	urls   []string
	mapErr error
}

func (s *stubResearcher) Search(context.Context, research.SearchQuery) (*research.Response, error) {
	return &research.Response{}, nil
}

func (s *stubResearcher) Map(context.Context, research.MapQuery) (*research.Response, error) {
	if s.mapErr != nil {
		return nil, s.mapErr
	}
	return &research.Response{URLs: s.urls}, nil
}

func (s *stubResearcher) Extract(context.Context, research.ExtractQuery) (*research.Response, error) {
	return &research.Response{}, nil
}

func (s *stubResearcher) Crawl(context.Context, research.CrawlQuery) (*research.Response, error) {
	return &research.Response{}, nil
}

// flakyStore fails document inserts of one kind.
type flakyStore struct {
	store.Store
	failKind string
}

func (f *flakyStore) InsertDocuments(ctx context.Context, docs []model.Document) (store.InsertResult, error) {
	if len(docs) > 0 && docs[0].Kind == f.failKind {
		return store.InsertResult{}, errors.New("disk full")
	}
	return f.Store.InsertDocuments(ctx, docs)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "compass.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			RoutingThreshold: 5,
			StageAttempts:    1,
		},
		Research: config.ResearchConfig{MaxOutputChars: 4000},
	}
}

func siteURLs(n int) []string {
	paths := []string{"", "about", "team", "careers", "blog", "product", "pricing", "contact"}
	var out []string
	for i := 0; i < n && i < len(paths); i++ {
		out = append(out, "https://acme.com/"+paths[i])
	}
	return out
}

// fullOutputs is a structured answer for every stage.
func fullOutputs(urls []string) map[string]any {
	return map[string]any{
		"discovery": map[string]any{
			"base_url":                 "https://acme.com",
			"discovered_urls":          urls,
			"company_aliases":          []string{"Acme"},
			"digital_presence_summary": "Industrial robotics maker.",
			"key_insights":             []string{"Ships to 40 countries"},
			"website_analysis":         "Clear product pages.",
			"confidence_score":         0.9,
		},
		"news": map[string]any{
			"news_items": []map[string]any{
				{"headline": "Acme raises $20M Series B", "content": "Led by Foo Ventures", "url": "https://news.example/a", "relevance_score": 0.9, "news_type": "funding"},
				{"headline": "Acme partners with Globex", "content": "Distribution deal", "url": "https://news.example/b", "relevance_score": 0.7, "news_type": "partnership"},
			},
			"confidence_score": 0.8,
		},
		"founders": map[string]any{
			"founder_profiles": []map[string]any{
				{"name": "Jane Doe", "role": "CEO", "background_summary": "Ex-Globex"},
			},
			"confidence_score": 0.8,
		},
		"competitive": map[string]any{
			"competitors": []map[string]any{
				{"name": "Initech", "category": "direct", "description": "Robot arms"},
			},
			"competitive_assessment": "Crowded market.",
			"confidence_score":       0.7,
		},
		"patents": map[string]any{
			"patent_records": []map[string]any{
				{"title": "Gripper", "assignee": "Acme Robotics", "patent_number": "US1234567B2"},
			},
			"confidence_score": 0.7,
		},
		"deepdive": map[string]any{
			"mission_insights": "Automate factories.",
			"confidence_score": 0.75,
		},
		"verification": map[string]any{
			"verified_facts": []map[string]any{
				{"claim": "Raised Series B", "category": "funding", "verification_status": "verified", "confidence_score": 0.9, "sources": []string{"https://news.example/a"}},
			},
			"red_flags":                 []string{},
			"overall_reliability_score": 0.8,
			"verification_summary":      "Consistent.",
		},
		"synthesis": map[string]any{
			"executive_summary":         "Acme is a growing robotics company.",
			"investment_signals":        []string{"Series B"},
			"risk_assessment":           []string{"Competition"},
			"investment_recommendation": "Pursue",
			"confidence_score":          0.9,
		},
	}
}
