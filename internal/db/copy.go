package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// DefaultBatchSize bounds the rows sent in one COPY.
const DefaultBatchSize = 50000

// CopyRows bulk-inserts rows into schema.table with the COPY protocol, in
// batches of at most batchSize rows (DefaultBatchSize when <= 0). It returns
// the number of rows copied before any failure.
func CopyRows(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ident := pgx.Identifier{schema, table}
	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows[start:end]))
		total += n
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s.%s", schema, table)
		}
	}
	return total, nil
}
