package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/pipeline"
	"github.com/sells-group/compass-cli/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// CreateRunRequest starts an analysis.
type CreateRunRequest struct {
	CompanyName string `json:"company_name" validate:"required,min=1,max=200"`
	Domain      string `json:"domain,omitempty" validate:"omitempty,fqdn"`
}

// CreateRunResponse acknowledges a started run.
type CreateRunResponse struct {
	RunID  string          `json:"run_id"`
	Status model.RunStatus `json:"status"`
}

// historyQuery is the validated query of GET /runs/history.
type historyQuery struct {
	Limit  int    `validate:"gte=1,lte=100"`
	Status string `validate:"omitempty,oneof=pending running partial complete completed error"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.Domain = strings.ToLower(strings.TrimSpace(req.Domain))
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	id, err := h.runs.Start(r.Context(), model.Company{Name: req.CompanyName, Domain: req.Domain})
	if err != nil {
		zap.L().Error("api: failed to start run", zap.String("company", req.CompanyName), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, CreateRunResponse{RunID: id, Status: model.RunStatusRunning})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	q := historyQuery{Limit: defaultHistoryLimit, Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		q.Limit = n
	}
	if err := h.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	runs, err := h.store.ListRuns(r.Context(), store.RunFilter{
		Status: model.RunStatus(q.Status),
		Limit:  q.Limit,
	})
	if err != nil {
		zap.L().Error("api: failed to list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDetail(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) export(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := h.loadDetail(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", pipeline.ContentType(format))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "run-"+d.Run.ID+"."+format))
		if err := pipeline.Export(w, d, format); err != nil {
			zap.L().Error("api: export failed", zap.String("run_id", d.Run.ID), zap.String("format", format), zap.Error(err))
		}
	}
}

func (h *Handler) loadDetail(w http.ResponseWriter, r *http.Request) (*pipeline.RunDetail, bool) {
	id := chi.URLParam(r, "id")
	d, err := pipeline.GetRunDetail(r.Context(), h.store, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	case err != nil:
		zap.L().Error("api: failed to load run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return nil, false
	}
	return d, true
}

func (h *Handler) budgetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.budget.Status(r.Context())
	if err != nil {
		zap.L().Error("api: failed to read budget", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read budget")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) budgetHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}
	entries, err := h.budget.History(r.Context(), limit)
	if err != nil {
		zap.L().Error("api: failed to read ledger", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (h *Handler) monitor(m Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours := 24
		if raw := r.URL.Query().Get("lookback_hours"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 24*30 {
				writeError(w, http.StatusBadRequest, "lookback_hours must be between 1 and 720")
				return
			}
			hours = n
		}
		snap, err := m.Collect(r.Context(), hours)
		if err != nil {
			zap.L().Error("api: failed to collect metrics", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to collect metrics")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return fmt.Sprintf("validation error: %s - %s", ve[0].Field(), ve[0].Tag())
	}
	return "validation error: invalid request"
}
