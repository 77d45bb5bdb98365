package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/landcover/internal/merge"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS land_cover_area (
	run_id   TEXT NOT NULL,
	district TEXT NOT NULL,
	year     INTEGER NOT NULL,
	category TEXT NOT NULL,
	area_m2  REAL NOT NULL,
	PRIMARY KEY (district, year, category)
);

CREATE TABLE IF NOT EXISTS imperviousness (
	run_id        TEXT NOT NULL,
	district      TEXT NOT NULL,
	year          INTEGER NOT NULL,
	impervious_m2 REAL NOT NULL,
	pervious_m2   REAL NOT NULL,
	total_m2      REAL NOT NULL,
	ratio         REAL NOT NULL,
	area_diff     REAL NOT NULL,
	mismatch      INTEGER NOT NULL,
	PRIMARY KEY (district, year)
);

CREATE TABLE IF NOT EXISTS clipped_parcel (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   TEXT NOT NULL,
	year     INTEGER NOT NULL,
	source   TEXT NOT NULL,
	district TEXT NOT NULL,
	code     INTEGER NOT NULL,
	category TEXT NOT NULL,
	area_m2  REAL NOT NULL,
	geom     BLOB
);

CREATE INDEX IF NOT EXISTS idx_clipped_parcel_run ON clipped_parcel(run_id);
CREATE INDEX IF NOT EXISTS idx_clipped_parcel_district_year ON clipped_parcel(district, year);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveLandInfo(ctx context.Context, runID string, categories []string, recs []merge.Record, rep merge.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin land info")
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertRows(ctx, tx, "land_cover_area", areaColumns, areaKeys, areaRows(runID, categories, recs)); err != nil {
		return err
	}
	if err := upsertRows(ctx, tx, "imperviousness", imperviousColumns, imperviousKeys, imperviousRows(runID, recs, rep)); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit land info")
}

func (s *SQLiteStore) SaveParcels(ctx context.Context, runID string, year int, source string, parcels []Parcel) error {
	if len(parcels) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin parcels")
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertRows(ctx, tx, "clipped_parcel", parcelColumns, nil, parcelRows(runID, year, source, parcels)); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit parcels")
}

// upsertRows inserts rows with one prepared statement. With keys, rows that
// collide on them overwrite the stored values.
func upsertRows(ctx context.Context, tx *sql.Tx, table string, columns, keys []string, rows [][]any) error {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders(len(columns)))
	if len(keys) > 0 {
		keySet := make(map[string]bool, len(keys))
		for _, k := range keys {
			keySet[k] = true
		}
		var sets []string
		for _, c := range columns {
			if !keySet[c] {
				sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
			}
		}
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert into %s", table)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert into %s", table)
		}
	}
	return nil
}
