package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// WriteConfig describes a batched insert into one table.
type WriteConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // columns of every row, in order
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
}

func (cfg WriteConfig) validate() error {
	if len(cfg.Columns) == 0 {
		return eris.New("db: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return eris.New("db: no conflict keys specified")
	}
	return nil
}

// InsertIgnore inserts rows in one batch, skipping rows whose conflict keys
// already exist. It returns how many rows were inserted and skipped.
func InsertIgnore(ctx context.Context, pool Pool, cfg WriteConfig, rows [][]any) (inserted, skipped int64, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, 0, err
	}

	query := fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING",
		insertPrefix(cfg), quoteAndJoin(cfg.ConflictKeys))

	err = sendBatch(ctx, pool, query, rows, func(affected int64) {
		if affected == 0 {
			skipped++
			return
		}
		inserted += affected
	})
	if err != nil {
		return inserted, skipped, eris.Wrapf(err, "db: insert ignore %s", cfg.Table)
	}
	return inserted, skipped, nil
}

// UpsertRows inserts rows in one batch, updating existing rows on conflict.
func UpsertRows(ctx context.Context, pool Pool, cfg WriteConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflict := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflict[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflict[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	setClauses := make([]string, len(updateCols))
	for i, col := range updateCols {
		id := pgx.Identifier{col}.Sanitize()
		setClauses[i] = fmt.Sprintf("%s = EXCLUDED.%s", id, id)
	}
	query := fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		insertPrefix(cfg), quoteAndJoin(cfg.ConflictKeys), strings.Join(setClauses, ", "))

	var total int64
	err := sendBatch(ctx, pool, query, rows, func(affected int64) { total += affected })
	if err != nil {
		return total, eris.Wrapf(err, "db: upsert %s", cfg.Table)
	}
	return total, nil
}

func sendBatch(ctx context.Context, pool Pool, query string, rows [][]any, onRow func(affected int64)) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, row...)
	}

	br := pool.SendBatch(ctx, batch)
	for i := range rows {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return eris.Wrapf(err, "row %d", i)
		}
		onRow(tag.RowsAffected())
	}
	return br.Close()
}

func insertPrefix(cfg WriteConfig) string {
	placeholders := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sanitizeTable(cfg.Table), quoteAndJoin(cfg.Columns), strings.Join(placeholders, ", "))
}

// sanitizeTable handles schema-qualified table names like "public.documents".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
