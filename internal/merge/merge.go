// Package merge joins the land-cover category series with the
// imperviousness series and checks that they agree.
package merge

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/landcover/internal/aggregate"
	"github.com/sells-group/landcover/internal/interpolate"
)

// Record is one row of the final table.
type Record struct {
	District   string
	Year       int
	Categories []float64
	Impervious float64
	Pervious   float64
	Ratio      float64
	Total      float64
	// CategorySum and Diff compare the categories against Total.
	CategorySum float64
	Diff        float64
}

type key struct {
	district string
	year     int
}

// Merge full-outer-joins the land-cover series and the impervious cells on
// (district, year). A side without a row for a key contributes zeros. The
// result is sorted by district, then year.
func Merge(landcover interpolate.Series, impervious []aggregate.ImperviousCell) []Record {
	width := len(landcover.Fields)
	recs := make(map[key]*Record, len(landcover.Rows))
	get := func(k key) *Record {
		r, ok := recs[k]
		if !ok {
			r = &Record{District: k.district, Year: k.year, Categories: make([]float64, width)}
			recs[k] = r
		}
		return r
	}

	for _, o := range landcover.Rows {
		r := get(key{o.District, o.Year})
		for i, v := range o.Values {
			if i < width && !interpolate.Missing(v) {
				r.Categories[i] = v
			}
		}
	}
	for _, c := range impervious {
		r := get(key{c.District, c.Year})
		r.Impervious = c.Impervious
		r.Pervious = c.Pervious
		r.Ratio = c.Ratio
		r.Total = c.Total
	}

	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		r.CategorySum = floats.Sum(r.Categories)
		r.Diff = math.Abs(r.CategorySum - r.Total)
		out = append(out, *r)
	}
	sortRecords(out)
	return out
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(a, b int) bool {
		if recs[a].District != recs[b].District {
			return recs[a].District < recs[b].District
		}
		return recs[a].Year < recs[b].Year
	})
}

// Mismatch is a row whose category sum disagrees with its total area.
type Mismatch struct {
	District    string  `json:"district"`
	Year        int     `json:"year"`
	CategorySum float64 `json:"category_sum"`
	Total       float64 `json:"total"`
	Diff        float64 `json:"diff"`
}

// Report summarizes a validation pass. Mismatches are data, not errors.
type Report struct {
	Rows       int     `json:"rows"`
	Mismatches int     `json:"mismatches"`
	MaxDiff    float64 `json:"max_diff"`
	Tolerance  float64 `json:"tolerance"`
	// Worst holds up to five mismatches, largest difference first.
	Worst []Mismatch `json:"worst,omitempty"`
}

// OK reports whether every row matched within tolerance.
func (r Report) OK() bool { return r.Mismatches == 0 }

// IsMismatch reports whether rec exceeds the report's tolerance.
func (r Report) IsMismatch(rec Record) bool { return rec.Diff > r.Tolerance }

const worstLimit = 5

// Validate compares the category sum of each record with its total area.
func Validate(recs []Record, tolerance float64) Report {
	rep := Report{Rows: len(recs), Tolerance: tolerance}
	var bad []Mismatch
	for _, r := range recs {
		if r.Diff > rep.MaxDiff {
			rep.MaxDiff = r.Diff
		}
		if !rep.IsMismatch(r) {
			continue
		}
		bad = append(bad, Mismatch{
			District:    r.District,
			Year:        r.Year,
			CategorySum: r.CategorySum,
			Total:       r.Total,
			Diff:        r.Diff,
		})
	}
	rep.Mismatches = len(bad)

	sort.SliceStable(bad, func(a, b int) bool { return bad[a].Diff > bad[b].Diff })
	if len(bad) > worstLimit {
		bad = bad[:worstLimit]
	}
	rep.Worst = bad
	return rep
}
