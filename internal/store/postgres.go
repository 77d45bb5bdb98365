package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/landcover/internal/db"
	"github.com/sells-group/landcover/internal/merge"
)

const pgSchema = "landcover"

// PostgresStore implements Store using pgxpool, writing through COPY.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres and verifies the connection.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS landcover;

CREATE TABLE IF NOT EXISTS landcover.land_cover_area (
	run_id   TEXT NOT NULL,
	district TEXT NOT NULL,
	year     INTEGER NOT NULL,
	category TEXT NOT NULL,
	area_m2  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (district, year, category)
);

CREATE TABLE IF NOT EXISTS landcover.imperviousness (
	run_id        TEXT NOT NULL,
	district      TEXT NOT NULL,
	year          INTEGER NOT NULL,
	impervious_m2 DOUBLE PRECISION NOT NULL,
	pervious_m2   DOUBLE PRECISION NOT NULL,
	total_m2      DOUBLE PRECISION NOT NULL,
	ratio         DOUBLE PRECISION NOT NULL,
	area_diff     DOUBLE PRECISION NOT NULL,
	mismatch      BOOLEAN NOT NULL,
	PRIMARY KEY (district, year)
);

CREATE TABLE IF NOT EXISTS landcover.clipped_parcel (
	id       BIGSERIAL PRIMARY KEY,
	run_id   TEXT NOT NULL,
	year     INTEGER NOT NULL,
	source   TEXT NOT NULL,
	district TEXT NOT NULL,
	code     INTEGER NOT NULL,
	category TEXT NOT NULL,
	area_m2  DOUBLE PRECISION NOT NULL,
	geom     BYTEA
);

CREATE INDEX IF NOT EXISTS idx_clipped_parcel_run ON landcover.clipped_parcel(run_id);
CREATE INDEX IF NOT EXISTS idx_clipped_parcel_district_year ON landcover.clipped_parcel(district, year);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveLandInfo(ctx context.Context, runID string, categories []string, recs []merge.Record, rep merge.Report) error {
	if _, err := db.Upsert(ctx, s.pool, db.UpsertSpec{
		Schema:  pgSchema,
		Table:   "land_cover_area",
		Columns: areaColumns,
		Keys:    areaKeys,
	}, areaRows(runID, categories, recs)); err != nil {
		return eris.Wrap(err, "postgres: save land cover areas")
	}
	if _, err := db.Upsert(ctx, s.pool, db.UpsertSpec{
		Schema:  pgSchema,
		Table:   "imperviousness",
		Columns: imperviousColumns,
		Keys:    imperviousKeys,
	}, imperviousRows(runID, recs, rep)); err != nil {
		return eris.Wrap(err, "postgres: save imperviousness")
	}
	return nil
}

func (s *PostgresStore) SaveParcels(ctx context.Context, runID string, year int, source string, parcels []Parcel) error {
	_, err := db.CopyRows(ctx, s.pool, pgSchema, "clipped_parcel", parcelColumns, parcelRows(runID, year, source, parcels), 0)
	return eris.Wrapf(err, "postgres: save parcels of %s", source)
}
