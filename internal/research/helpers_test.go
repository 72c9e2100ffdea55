package research

import (
	"context"
	"sync"

	"github.com/sells-group/compass-cli/internal/budget"
	"github.com/sells-group/compass-cli/internal/cost"
	"github.com/sells-group/compass-cli/internal/model"
)

// fakeProvider serves every operation from one function.
type fakeProvider struct {
	name  string
	ops   []Op
	mu    sync.Mutex
	calls int
	fn    func(op Op) (*Response, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(op Op) bool {
	if len(f.ops) == 0 {
		return true
	}
	for _, o := range f.ops {
		if o == op {
			return true
		}
	}
	return false
}

func (f *fakeProvider) do(op Op) (*Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(op)
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) Search(context.Context, SearchQuery) (*Response, error) {
	return f.do(OpSearch)
}

func (f *fakeProvider) Map(context.Context, MapQuery) (*Response, error) { return f.do(OpMap) }

func (f *fakeProvider) Extract(context.Context, ExtractQuery) (*Response, error) {
	return f.do(OpExtract)
}

func (f *fakeProvider) Crawl(context.Context, CrawlQuery) (*Response, error) {
	return f.do(OpCrawl)
}

// ledgerStore is an in-memory budget.Store.
type ledgerStore struct {
	mu      sync.Mutex
	entries []model.LedgerEntry
}

func (s *ledgerStore) AppendLedger(_ context.Context, e model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *ledgerStore) SumLedger(_ context.Context, runID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, e := range s.entries {
		if runID == "" || e.RunID == runID {
			total += e.Cost
		}
	}
	return total, nil
}

func (s *ledgerStore) ListLedger(_ context.Context, limit int) ([]model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LedgerEntry(nil), s.entries...), nil
}

func (s *ledgerStore) Entries() []model.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LedgerEntry(nil), s.entries...)
}

func newTestLedger(capUSD float64, strict bool) (*budget.Ledger, *ledgerStore) {
	st := &ledgerStore{}
	calc := cost.NewCalculator(cost.DefaultRates())
	return budget.New(st, calc, budget.Config{CapUSD: capUSD, Strict: strict, Model: "claude-sonnet-4-5-20250929"}), st
}
