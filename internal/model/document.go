package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// Document is the persisted form of a stage output record.
type Document struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Kind      string          `json:"kind"`
	Stage     string          `json:"stage"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// DocumentID builds the stage-scoped id of a single per-run document.
func DocumentID(kind, runID string) string {
	return fmt.Sprintf("%s_%s", kind, runID)
}

// ItemDocumentID builds the stage-scoped id of one item in a per-run collection.
func ItemDocumentID(kind, runID string, idx int) string {
	return fmt.Sprintf("%s_%s_%d", kind, runID, idx)
}

// NewDocument marshals a record into a document.
func NewDocument(id, runID, stage string, rec Record) (Document, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return Document{}, eris.Wrapf(err, "marshal %s", rec.RecordKind())
	}
	return Document{
		ID:        id,
		RunID:     runID,
		Kind:      rec.RecordKind(),
		Stage:     stage,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// LedgerEntry is one immutable cost record. Entries are never updated.
type LedgerEntry struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id,omitempty"`
	Operation string         `json:"operation"`
	Cost      float64        `json:"cost"`
	Units     float64        `json:"units"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
