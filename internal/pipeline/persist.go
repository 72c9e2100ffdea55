package pipeline

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/runstate"
)

// multiKinds are stored one document per item with tolerant inserts.
var multiKinds = map[string]bool{
	model.KindNews:    true,
	model.KindPatent:  true,
	model.KindFounder: true,
}

// documentID is the stage-scoped id of the idx-th record a stage produced.
func documentID(runID, stageName string, idx int, rec model.Record) string {
	kind := rec.RecordKind()
	switch {
	case multiKinds[kind]:
		return model.ItemDocumentID(kind, runID, idx)
	case kind == model.KindPlaceholder:
		return model.DocumentID(kind+"_"+stageName, runID)
	default:
		return model.DocumentID(kind, runID)
	}
}

// persist stores the records of one stage delta. Every kind is written on
// its own so a failure in one never blocks another; failures are logged and
// swallowed.
func (p *Pipeline) persist(ctx context.Context, runID string, d runstate.Delta) {
	log := zap.L().With(zap.String("run_id", runID))

	stages := make([]string, 0, len(d.StageResults))
	for name := range d.StageResults {
		stages = append(stages, name)
	}
	sort.Strings(stages)

	for _, name := range stages {
		batches := map[string][]model.Document{}
		var kinds []string
		for i, rec := range d.StageResults[name] {
			doc, err := model.NewDocument(documentID(runID, name, i, rec), runID, name, rec)
			if err != nil {
				log.Warn("pipeline: failed to encode document", zap.String("stage", name), zap.Error(err))
				continue
			}
			if !multiKinds[doc.Kind] {
				if err := p.store.UpsertDocument(ctx, doc); err != nil {
					log.Warn("pipeline: failed to store document",
						zap.String("stage", name), zap.String("id", doc.ID), zap.Error(err))
				}
				continue
			}
			if _, ok := batches[doc.Kind]; !ok {
				kinds = append(kinds, doc.Kind)
			}
			batches[doc.Kind] = append(batches[doc.Kind], doc)
		}

		for _, kind := range kinds {
			res, err := p.store.InsertDocuments(ctx, batches[kind])
			if err != nil {
				log.Warn("pipeline: failed to store documents",
					zap.String("stage", name), zap.String("kind", kind), zap.Error(err))
				continue
			}
			if res.Duplicates > 0 {
				log.Info("pipeline: skipped duplicate documents",
					zap.String("stage", name), zap.String("kind", kind), zap.Int("duplicates", res.Duplicates))
			}
			log.Debug("pipeline: stored documents",
				zap.String("stage", name), zap.String("kind", kind), zap.Int("inserted", res.Inserted))
		}
	}
}
