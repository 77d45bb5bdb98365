// Package store persists final tables and clipped parcels for downstream
// querying.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landcover/internal/merge"
)

// Store is an optional sink for pipeline results.
type Store interface {
	Migrate(ctx context.Context) error
	// SaveLandInfo writes the merged table in long format, replacing the rows
	// of any earlier run for the same (district, year).
	SaveLandInfo(ctx context.Context, runID string, categories []string, recs []merge.Record, rep merge.Report) error
	// SaveParcels appends the clipped parcels of one source layer.
	SaveParcels(ctx context.Context, runID string, year int, source string, parcels []Parcel) error
	Close() error
}

// Parcel is a clipped polygon ready for persistence.
type Parcel struct {
	District string
	Code     int
	Category string
	Area     float64
	// Geometry is an EWKB MultiPolygon.
	Geometry []byte
}

// areaRows flattens records into (district, year, category, area) rows.
func areaRows(runID string, categories []string, recs []merge.Record) [][]any {
	rows := make([][]any, 0, len(recs)*len(categories))
	for _, r := range recs {
		for i, c := range categories {
			if i >= len(r.Categories) {
				break
			}
			rows = append(rows, []any{runID, r.District, r.Year, c, r.Categories[i]})
		}
	}
	return rows
}

// imperviousRows flattens records into one impervious row per (district, year).
func imperviousRows(runID string, recs []merge.Record, rep merge.Report) [][]any {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []any{
			runID, r.District, r.Year,
			r.Impervious, r.Pervious, r.Total, r.Ratio,
			r.Diff, rep.IsMismatch(r),
		})
	}
	return rows
}

var (
	areaColumns       = []string{"run_id", "district", "year", "category", "area_m2"}
	areaKeys          = []string{"district", "year", "category"}
	imperviousColumns = []string{"run_id", "district", "year", "impervious_m2", "pervious_m2", "total_m2", "ratio", "area_diff", "mismatch"}
	imperviousKeys    = []string{"district", "year"}
	parcelColumns     = []string{"run_id", "year", "source", "district", "code", "category", "area_m2", "geom"}
)

func parcelRows(runID string, year int, source string, parcels []Parcel) [][]any {
	rows := make([][]any, 0, len(parcels))
	for _, p := range parcels {
		rows = append(rows, []any{runID, year, source, p.District, p.Code, p.Category, p.Area, p.Geometry})
	}
	return rows
}

// placeholders returns "?, ?, ..." for SQLite statements.
func placeholders(n int) string {
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}

// Open returns the store for driver ("none", "sqlite" or "postgres"). The
// "none" driver yields a nil Store. dsn is a file path for SQLite and a
// connection string for Postgres.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		st, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
