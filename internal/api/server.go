// Package api serves runs, exports and budget state over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/budget"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/monitoring"
	"github.com/sells-group/compass-cli/internal/store"
)

// Starter launches a run in the background.
type Starter interface {
	Start(ctx context.Context, company model.Company) (string, error)
}

// BudgetReporter reports ledger state.
type BudgetReporter interface {
	Status(ctx context.Context) (*budget.Status, error)
	History(ctx context.Context, limit int) ([]model.LedgerEntry, error)
}

// Monitor summarizes run health.
type Monitor interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// Options configure the router.
type Options struct {
	CORSOrigins []string
	Metrics     bool
	// Monitor, when set, serves GET /monitor.
	Monitor Monitor
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	runs     Starter
	store    store.Store
	budget   BudgetReporter
	validate *validator.Validate
}

// NewHandler creates a Handler.
func NewHandler(runs Starter, st store.Store, br BudgetReporter) *Handler {
	return &Handler{
		runs:     runs,
		store:    st,
		budget:   br,
		validate: validator.New(),
	}
}

// Router builds the HTTP routes.
func (h *Handler) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	if opts.Monitor != nil {
		r.Get("/monitor", h.monitor(opts.Monitor))
	}

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.createRun)
		r.Get("/history", h.listRuns)
		r.Get("/{id}", h.getRun)
		r.Get("/{id}/export.json", h.export("json"))
		r.Get("/{id}/export.md", h.export("md"))
		r.Get("/{id}/export.csv", h.export("csv"))
	})

	r.Route("/budget", func(r chi.Router) {
		r.Get("/status", h.budgetStatus)
		r.Get("/history", h.budgetHistory)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
