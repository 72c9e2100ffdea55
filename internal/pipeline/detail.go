package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/store"
)

// RunDetail is a run with its stages and every stored document, grouped by
// kind.
type RunDetail struct {
	Run          model.Run                  `json:"run"`
	Stages       []model.RunStage           `json:"stages"`
	Discovery    *model.DiscoveryOutput     `json:"discovery,omitempty"`
	News         []model.NewsItem           `json:"news"`
	Founders     []model.FounderProfile     `json:"founders"`
	Patents      []model.PatentRecord       `json:"patents"`
	Competitive  *model.CompetitiveAnalysis `json:"competitive,omitempty"`
	DeepDive     *model.DeepDiveAnalysis    `json:"deepdive,omitempty"`
	Verification *model.VerificationReport  `json:"verification,omitempty"`
	Insights     *model.Insights            `json:"insights,omitempty"`
	Placeholders []model.Placeholder        `json:"placeholders,omitempty"`
}

// GetRunDetail loads a run and assembles its documents.
func GetRunDetail(ctx context.Context, st store.Store, runID string) (*RunDetail, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: get run %s", runID)
	}
	stages, err := st.ListStages(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: list stages %s", runID)
	}
	docs, err := st.ListDocuments(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: list documents %s", runID)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Kind != docs[j].Kind {
			return docs[i].Kind < docs[j].Kind
		}
		return itemIndex(docs[i].ID) < itemIndex(docs[j].ID)
	})

	d := &RunDetail{
		Run:      *run,
		Stages:   stages,
		News:     []model.NewsItem{},
		Founders: []model.FounderProfile{},
		Patents:  []model.PatentRecord{},
	}
	for _, doc := range docs {
		if err := d.add(doc); err != nil {
			return nil, eris.Wrapf(err, "pipeline: decode document %s", doc.ID)
		}
	}
	if d.Insights == nil && run.Result != nil {
		d.Insights = run.Result.Insights
	}
	return d, nil
}

func (d *RunDetail) add(doc model.Document) error {
	switch doc.Kind {
	case model.KindDiscovery:
		return decodeInto(doc.Data, &d.Discovery)
	case model.KindNews:
		var v model.NewsItem
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return err
		}
		d.News = append(d.News, v)
	case model.KindFounder:
		var v model.FounderProfile
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return err
		}
		d.Founders = append(d.Founders, v)
	case model.KindPatent:
		var v model.PatentRecord
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return err
		}
		d.Patents = append(d.Patents, v)
	case model.KindCompetitive:
		return decodeInto(doc.Data, &d.Competitive)
	case model.KindDeepDive:
		return decodeInto(doc.Data, &d.DeepDive)
	case model.KindVerification:
		return decodeInto(doc.Data, &d.Verification)
	case model.KindInsights:
		return decodeInto(doc.Data, &d.Insights)
	case model.KindPlaceholder:
		var v model.Placeholder
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return err
		}
		d.Placeholders = append(d.Placeholders, v)
	}
	return nil
}

func decodeInto[T any](data []byte, dst **T) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

// itemIndex is the numeric suffix of an item document id, or -1.
func itemIndex(id string) int {
	i := strings.LastIndex(id, "_")
	if i < 0 {
		return -1
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return -1
	}
	return n
}
