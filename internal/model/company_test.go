package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   RunStatus
		want     string
		terminal bool
	}{
		{RunStatusPending, "pending", false},
		{RunStatusRunning, "running", false},
		{RunStatusPartial, "partial", true},
		{RunStatusComplete, "complete", true},
		{RunStatusCompleted, "completed", true},
		{RunStatusError, "error", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestDocumentIDs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "competitive_r1", DocumentID(KindCompetitive, "r1"))
	assert.Equal(t, "news_r1_3", ItemDocumentID(KindNews, "r1", 3))
}

func TestNewDocument(t *testing.T) {
	t.Parallel()

	item := NewsItem{Headline: "Acme raises Series B", URL: "https://news.example/acme"}
	doc, err := NewDocument(ItemDocumentID(KindNews, "r1", 0), "r1", "news", item)
	require.NoError(t, err)

	assert.Equal(t, KindNews, doc.Kind)
	assert.Equal(t, "news", doc.Stage)
	assert.False(t, doc.CreatedAt.IsZero())

	var back NewsItem
	require.NoError(t, json.Unmarshal(doc.Data, &back))
	assert.Equal(t, item, back)
}

// chanRecord cannot be encoded as JSON.
type chanRecord struct {
	C chan int `json:"c"`
}

func (chanRecord) RecordKind() string { return "chan" }

func TestNewDocument_MarshalError(t *testing.T) {
	t.Parallel()

	_, err := NewDocument("chan_r1", "r1", "news", chanRecord{C: make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal chan")

	var unsupported *json.UnsupportedTypeError
	assert.ErrorAs(t, err, &unsupported)
}

func TestTokenUsageAdd(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 10, OutputTokens: 5, Cost: 0.01}
	u.Add(TokenUsage{InputTokens: 3, OutputTokens: 2, CacheReadTokens: 7, Cost: 0.02})

	assert.Equal(t, 13, u.InputTokens)
	assert.Equal(t, 7, u.OutputTokens)
	assert.Equal(t, 7, u.CacheReadTokens)
	assert.Equal(t, 20, u.Total())
	assert.InDelta(t, 0.03, u.Cost, 1e-9)
}

func TestNewErrorEntry(t *testing.T) {
	t.Parallel()

	e := NewErrorEntry("discovery", "dial tcp: timeout")
	assert.Equal(t, "discovery", e.Stage)
	assert.Equal(t, "dial tcp: timeout", e.Message)
	assert.Equal(t, "UTC", e.Timestamp.Location().String())
}
