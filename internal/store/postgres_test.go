package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compass-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runColumns = []string{"id", "company", "status", "result", "created_at", "updated_at"}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), model.Company{Name: "Acme"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, company, status, result, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("r1", []byte(`{"name":"Acme","domain":"acme.ai"}`), "partial",
				[]byte(`{"status":"partial","route":"fallback_search"}`), now, now))

	run, err := s.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", run.Company.Name)
	assert.Equal(t, model.RunStatusPartial, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, model.RouteFallbackSearch, run.Result.Route)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("error", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusError)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET result = \$1, status = \$2`).
		WithArgs(pgxmock.AnyArg(), "completed", pgxmock.AnyArg(), "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateRunResult(context.Background(), "r1", &model.RunResult{Status: model.RunStatusCompleted})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	after := now.Add(-time.Hour)

	mock.ExpectQuery(`AND status = \$1 AND created_at >= \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("completed", after, 5, 10).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("r1", []byte(`{"name":"Acme"}`), "completed", nil, now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Status:       model.RunStatusCompleted,
		CreatedAfter: after,
		Limit:        5,
		Offset:       10,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteStage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE run_stages SET status = \$1, result = \$2 WHERE id = \$3`).
		WithArgs("succeeded", pgxmock.AnyArg(), "st1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteStage(context.Background(), "st1", &model.StageResult{Name: "news", Status: model.StageStatusSucceeded})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDocuments_CountsDuplicates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	eb := mock.ExpectBatch()
	eb.ExpectExec(`INSERT INTO "documents" .* ON CONFLICT \("id"\) DO NOTHING`).
		WithArgs("news_r1_0", "r1", "news", "news", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	eb.ExpectExec(`INSERT INTO "documents" .* ON CONFLICT \("id"\) DO NOTHING`).
		WithArgs("news_r1_1", "r1", "news", "news", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	res, err := s.InsertDocuments(context.Background(), []model.Document{
		{ID: "news_r1_0", RunID: "r1", Kind: "news", Stage: "news", Data: []byte(`{}`)},
		{ID: "news_r1_1", RunID: "r1", Kind: "news", Stage: "news", Data: []byte(`{}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, InsertResult{Inserted: 1, Duplicates: 1}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDocument(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	eb := mock.ExpectBatch()
	eb.ExpectExec(`ON CONFLICT \("id"\) DO UPDATE SET "kind" = EXCLUDED."kind", "stage" = EXCLUDED."stage", "data" = EXCLUDED."data"`).
		WithArgs("insights_r1", "r1", "insights", "synthesis", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertDocument(context.Background(), model.Document{
		ID: "insights_r1", RunID: "r1", Kind: "insights", Stage: "synthesis", Data: []byte(`{}`),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SumLedger(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(cost\), 0\) FROM cost_ledger WHERE run_id = \$1`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(1.25))

	total, err := s.SumLedger(context.Background(), "r1")
	require.NoError(t, err)
	assert.InDelta(t, 1.25, total, 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLedger(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM cost_ledger ORDER BY id DESC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "run_id", "operation", "cost", "units", "metadata", "created_at"}).
			AddRow("01B", "r1", "search", 0.1, 2.0, []byte(`{"provider":"firecrawl"}`), now).
			AddRow("01A", "", "llm_call", 0.3, 900.0, nil, now))

	entries, err := s.ListLedger(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "firecrawl", entries[0].Metadata["provider"])
	assert.Nil(t, entries[1].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendLedger_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO cost_ledger`).
		WillReturnError(errors.New("connection reset"))

	err := s.AppendLedger(context.Background(), model.LedgerEntry{ID: "01A", Operation: "search", Cost: 0.1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append ledger")
}

func TestPostgresStore_GetToolCache_Miss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM tool_cache`).
		WithArgs("abc123").
		WillReturnError(pgx.ErrNoRows)

	data, err := s.GetToolCache(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetToolCache_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(cache_key\) DO UPDATE`).
		WithArgs("abc123", []byte(`{"ok":true}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetToolCache(context.Background(), "abc123", []byte(`{"ok":true}`), time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredToolCache(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM tool_cache WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredToolCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
