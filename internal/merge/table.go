package merge

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/landcover/internal/aggregate"
	"github.com/sells-group/landcover/internal/tabular"
)

// Diagnostic columns appended after the fixed layout.
const (
	ColCategorySum = "CATEGORY_SUM"
	ColDiff        = "AREA_DIFF"
	ColMismatch    = "MISMATCH"
)

// Header returns the fixed column layout: keys, categories in the given
// order, the impervious block, then the diagnostics.
func Header(categories []string) []string {
	h := make([]string, 0, len(categories)+9)
	h = append(h, aggregate.ColYear, aggregate.ColDistrict)
	h = append(h, categories...)
	return append(h,
		aggregate.ColImpervious, aggregate.ColPervious, aggregate.ColRatio, aggregate.ColTotal,
		ColCategorySum, ColDiff, ColMismatch,
	)
}

// Table renders records for output. Areas are rounded to areaDecimals and the
// ratio to ratioDecimals; the mismatch flag comes from the unrounded values.
func Table(recs []Record, categories []string, rep Report, areaDecimals, ratioDecimals int) *tabular.Table {
	t := &tabular.Table{Header: Header(categories), Rows: make([][]string, 0, len(recs))}
	area := func(v float64) string { return aggregate.FormatFloat(v, areaDecimals) }
	for _, r := range recs {
		row := make([]string, 0, len(t.Header))
		row = append(row, strconv.Itoa(r.Year), r.District)
		for _, v := range r.Categories {
			row = append(row, area(v))
		}
		row = append(row,
			area(r.Impervious),
			area(r.Pervious),
			aggregate.FormatFloat(r.Ratio, ratioDecimals),
			area(r.Total),
			area(r.CategorySum),
			area(r.Diff),
			strconv.FormatBool(rep.IsMismatch(r)),
		)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// NumericColumns lists the indexes of Header(categories) holding numbers.
func NumericColumns(categories []string) []int {
	n := len(Header(categories)) - 1
	out := []int{0}
	for i := 2; i < n; i++ {
		out = append(out, i)
	}
	return out
}

// ParseTable reads a merged table back into records. Category columns are
// those of categories present in the header; the impervious block other than
// the total is optional. Sums and differences are recomputed.
func ParseTable(t *tabular.Table, categories []string) ([]Record, []string, error) {
	required := []string{aggregate.ColYear, aggregate.ColDistrict, aggregate.ColTotal}
	idx := make([]int, len(required))
	for i, name := range required {
		if idx[i] = t.Index(name); idx[i] < 0 {
			return nil, nil, eris.Errorf("merge: table has no %s column", name)
		}
	}
	yi, di, ti := idx[0], idx[1], idx[2]

	var present []string
	var ci []int
	for _, c := range categories {
		if i := t.Index(c); i >= 0 {
			present = append(present, c)
			ci = append(ci, i)
		}
	}
	if len(present) == 0 {
		return nil, nil, eris.New("merge: table has no category columns")
	}

	opt := func(rec []string, name string) (float64, error) {
		i := t.Index(name)
		if i < 0 || i >= len(rec) {
			return 0, nil
		}
		return parseNumber(rec[i])
	}

	recs := make([]Record, 0, len(t.Rows))
	for line, rec := range t.Rows {
		if len(rec) < len(t.Header) {
			return nil, nil, eris.Errorf("merge: row %d has %d columns, want %d", line+2, len(rec), len(t.Header))
		}
		year, err := strconv.Atoi(strings.TrimSpace(rec[yi]))
		if err != nil {
			return nil, nil, eris.Wrapf(err, "merge: row %d year", line+2)
		}
		r := Record{District: rec[di], Year: year, Categories: make([]float64, len(ci))}
		for j, i := range ci {
			if r.Categories[j], err = parseNumber(rec[i]); err != nil {
				return nil, nil, eris.Wrapf(err, "merge: row %d %s", line+2, present[j])
			}
		}
		if r.Total, err = parseNumber(rec[ti]); err != nil {
			return nil, nil, eris.Wrapf(err, "merge: row %d %s", line+2, aggregate.ColTotal)
		}
		if r.Impervious, err = opt(rec, aggregate.ColImpervious); err != nil {
			return nil, nil, eris.Wrapf(err, "merge: row %d %s", line+2, aggregate.ColImpervious)
		}
		if r.Pervious, err = opt(rec, aggregate.ColPervious); err != nil {
			return nil, nil, eris.Wrapf(err, "merge: row %d %s", line+2, aggregate.ColPervious)
		}
		if r.Ratio, err = opt(rec, aggregate.ColRatio); err != nil {
			return nil, nil, eris.Wrapf(err, "merge: row %d %s", line+2, aggregate.ColRatio)
		}
		r.CategorySum = floats.Sum(r.Categories)
		r.Diff = math.Abs(r.CategorySum - r.Total)
		recs = append(recs, r)
	}
	return recs, present, nil
}

// parseNumber treats an empty cell as 0.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
