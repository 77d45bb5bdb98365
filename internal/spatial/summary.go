package spatial

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landcover/internal/layer"
	"github.com/sells-group/landcover/internal/taxonomy"
)

// ErrNoGroupColumns is returned when a layer has none of the recognized
// classification columns.
var ErrNoGroupColumns = errors.New("spatial: no classification column")

// SummaryRow is the summed area of one (district, classification) group.
type SummaryRow struct {
	District string
	Keys     []string
	Area     float64
}

// Summary is the grouped area table of one clipped layer.
type Summary struct {
	DistrictField string
	AreaField     string
	Level         taxonomy.Level
	Columns       []string
	Rows          []SummaryRow
}

// Summarize sums parcel areas by district and by every column of the finest
// classification level present in src. Rows are sorted by district, then by
// key values.
func Summarize(src *layer.Layer, parcels []Parcel, districtField, areaField string) (*Summary, error) {
	level, cols := taxonomy.DetectGroupColumns(src.Fields)
	if level == taxonomy.LevelNone {
		return nil, eris.Wrapf(ErrNoGroupColumns, "layer %s", src.Name)
	}

	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = src.FieldIndex(c)
	}

	groups := make(map[string]*SummaryRow)
	for _, p := range parcels {
		keys := make([]string, len(idx))
		for i, j := range idx {
			if j < len(p.Attrs) {
				keys[i] = p.Attrs[j]
			}
		}
		k := p.District + "\x00" + strings.Join(keys, "\x00")
		g, ok := groups[k]
		if !ok {
			g = &SummaryRow{District: p.District, Keys: keys}
			groups[k] = g
		}
		g.Area += p.Area
	}

	s := &Summary{
		DistrictField: districtField,
		AreaField:     areaField,
		Level:         level,
		Columns:       cols,
		Rows:          make([]SummaryRow, 0, len(groups)),
	}
	for _, g := range groups {
		s.Rows = append(s.Rows, *g)
	}
	sort.Slice(s.Rows, func(a, b int) bool {
		ra, rb := s.Rows[a], s.Rows[b]
		if ra.District != rb.District {
			return ra.District < rb.District
		}
		for i := range ra.Keys {
			if ra.Keys[i] != rb.Keys[i] {
				return ra.Keys[i] < rb.Keys[i]
			}
		}
		return false
	})
	return s, nil
}

// Header returns the CSV header: district, classification columns, area.
func (s *Summary) Header() []string {
	h := make([]string, 0, len(s.Columns)+2)
	h = append(h, s.DistrictField)
	h = append(h, s.Columns...)
	return append(h, s.AreaField)
}

// Records returns the rows in Header order.
func (s *Summary) Records() [][]string {
	out := make([][]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		rec := make([]string, 0, len(r.Keys)+2)
		rec = append(rec, r.District)
		rec = append(rec, r.Keys...)
		out = append(out, append(rec, formatArea(r.Area)))
	}
	return out
}

// formatArea renders an area with the shortest exact representation.
func formatArea(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
