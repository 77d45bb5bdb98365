package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertSpec describes a keyed bulk write.
type UpsertSpec struct {
	Schema  string
	Table   string
	Columns []string
	// Keys form the unique constraint; every other column is overwritten on
	// conflict.
	Keys []string
}

// Upsert stages rows in a temp table with COPY and merges them into the
// target with INSERT ... ON CONFLICT DO UPDATE, all in one transaction.
func Upsert(ctx context.Context, pool Pool, spec UpsertSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(spec.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns")
	}
	if len(spec.Keys) == 0 {
		return 0, eris.New("db: upsert: no key columns")
	}

	target := pgx.Identifier{spec.Schema, spec.Table}
	staging := pgx.Identifier{"_stage_" + spec.Table}

	keySet := make(map[string]bool, len(spec.Keys))
	for _, k := range spec.Keys {
		keySet[k] = true
	}
	var sets []string
	for _, c := range spec.Columns {
		if keySet[c] {
			continue
		}
		col := pgx.Identifier{c}.Sanitize()
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		staging.Sanitize(), target.Sanitize())
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", spec.Table)
	}
	if _, err := tx.CopyFrom(ctx, staging, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into stage for %s", spec.Table)
	}

	cols := joinIdents(spec.Columns)
	merge := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		target.Sanitize(), cols, cols, staging.Sanitize(), joinIdents(spec.Keys), action)
	tag, err := tx.Exec(ctx, merge)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s.%s", spec.Schema, spec.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit")
	}
	return tag.RowsAffected(), nil
}

func joinIdents(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
