package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func search(ctx context.Context, p Provider) (*Response, error) {
	return p.Search(ctx, SearchQuery{Query: "acme"})
}

func TestChain_FirstSuccessWins(t *testing.T) {
	a := &fakeProvider{name: "a", fn: func(Op) (*Response, error) { return &Response{Hits: []SearchHit{{Title: "A"}}}, nil }}
	b := &fakeProvider{name: "b", fn: func(Op) (*Response, error) { return &Response{}, nil }}

	resp, err := NewChain(a, b).Do(context.Background(), OpSearch, search)
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Provider)
	assert.Equal(t, 0, b.Calls())
}

func TestChain_FallsBackOnError(t *testing.T) {
	a := &fakeProvider{name: "a", fn: func(Op) (*Response, error) { return nil, errors.New("boom") }}
	b := &fakeProvider{name: "b", fn: func(Op) (*Response, error) { return &Response{}, nil }}

	resp, err := NewChain(a, b).Do(context.Background(), OpSearch, search)
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Provider)
}

func TestChain_SkipsUnsupported(t *testing.T) {
	noSearch := &fakeProvider{name: "direct", ops: []Op{OpExtract}, fn: func(Op) (*Response, error) {
		t.Error("unsupported provider called")
		return nil, nil
	}}
	refuses := &fakeProvider{name: "refuses", fn: func(Op) (*Response, error) { return nil, ErrUnsupported }}
	ok := &fakeProvider{name: "ok", fn: func(Op) (*Response, error) { return &Response{}, nil }}

	resp, err := NewChain(noSearch, refuses, ok).Do(context.Background(), OpSearch, search)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Provider)
}

func TestChain_AllFail(t *testing.T) {
	a := &fakeProvider{name: "a", fn: func(Op) (*Response, error) { return nil, errors.New("first") }}
	b := &fakeProvider{name: "b", fn: func(Op) (*Response, error) { return nil, errors.New("second") }}

	_, err := NewChain(a, b).Do(context.Background(), OpSearch, search)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed for search")
	assert.Contains(t, err.Error(), "second")
}

func TestChain_NoProvider(t *testing.T) {
	direct := &fakeProvider{name: "direct", ops: []Op{OpExtract}}
	_, err := NewChain(direct).Do(context.Background(), OpCrawl, func(ctx context.Context, p Provider) (*Response, error) {
		return p.Crawl(ctx, CrawlQuery{})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider supports crawl")
}

func TestChain_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeProvider{name: "a", fn: func(Op) (*Response, error) {
		cancel()
		return nil, context.Canceled
	}}
	b := &fakeProvider{name: "b", fn: func(Op) (*Response, error) { return &Response{}, nil }}

	_, err := NewChain(a, b).Do(ctx, OpSearch, search)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.Calls())
}
