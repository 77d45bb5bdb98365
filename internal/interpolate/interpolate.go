// Package interpolate reindexes sparse district-year observations onto a
// dense grid and fills the gaps by linear interpolation along the year axis,
// independently within each district.
package interpolate

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/interp"
)

// Observation is one (district, year) row. Missing values are NaN.
type Observation struct {
	District string
	Year     int
	Values   []float64
}

// Series is a table of observations sharing the same numeric fields.
type Series struct {
	Fields []string
	Rows   []Observation
}

// Missing reports whether v is a missing value.
func Missing(v float64) bool { return math.IsNaN(v) }

// YearRange is a closed range of calendar years.
type YearRange struct {
	Start int
	End   int
}

// Validate checks that the range is non-empty.
func (r YearRange) Validate() error {
	if r.End < r.Start {
		return eris.Errorf("interpolate: invalid year range %d-%d", r.Start, r.End)
	}
	return nil
}

// Contains reports whether year is inside the range.
func (r YearRange) Contains(year int) bool {
	return year >= r.Start && year <= r.End
}

// Years lists every year of the range in order.
func (r YearRange) Years() []int {
	if r.End < r.Start {
		return nil
	}
	out := make([]int, 0, r.End-r.Start+1)
	for y := r.Start; y <= r.End; y++ {
		out = append(out, y)
	}
	return out
}

// Interpolate builds the dense district × year grid for r and fills each
// field from the known values of the same district. Known values are kept
// exactly; interior gaps are filled linearly between the nearest known years;
// years before the first or after the last known value stay missing.
// Observations outside r are dropped. The result is sorted by district, then
// year. The input is not modified.
func Interpolate(s Series, r YearRange) (Series, error) {
	if err := r.Validate(); err != nil {
		return Series{}, err
	}

	parts, err := partition(s, r)
	if err != nil {
		return Series{}, err
	}

	districts := make([]string, 0, len(parts))
	for d := range parts {
		districts = append(districts, d)
	}
	sort.Strings(districts)

	out := Series{
		Fields: append([]string(nil), s.Fields...),
		Rows:   make([]Observation, 0, len(districts)*(r.End-r.Start+1)),
	}
	for _, d := range districts {
		out.Rows = append(out.Rows, fillDistrict(d, parts[d], len(s.Fields), r)...)
	}
	return out, nil
}

// partition groups in-range observations by district, keyed by year.
func partition(s Series, r YearRange) (map[string]map[int][]float64, error) {
	parts := make(map[string]map[int][]float64)
	for _, o := range s.Rows {
		if len(o.Values) != len(s.Fields) {
			return nil, eris.Errorf("interpolate: %s %d has %d values, want %d",
				o.District, o.Year, len(o.Values), len(s.Fields))
		}
		years, ok := parts[o.District]
		if !ok {
			years = make(map[int][]float64)
			parts[o.District] = years
		}
		if !r.Contains(o.Year) {
			continue
		}
		if _, dup := years[o.Year]; dup {
			return nil, eris.Errorf("interpolate: duplicate observation for %s %d", o.District, o.Year)
		}
		years[o.Year] = o.Values
	}
	return parts, nil
}

// fillDistrict produces one row per year of r for a single district.
func fillDistrict(district string, known map[int][]float64, width int, r YearRange) []Observation {
	years := r.Years()
	rows := make([]Observation, len(years))
	for i, y := range years {
		vals := make([]float64, width)
		if k, ok := known[y]; ok {
			copy(vals, k)
		} else {
			for f := range vals {
				vals[f] = math.NaN()
			}
		}
		rows[i] = Observation{District: district, Year: y, Values: vals}
	}

	for f := 0; f < width; f++ {
		xs, ys := controlPoints(rows, f)
		if len(xs) < 2 {
			continue
		}
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			continue
		}
		lo, hi := xs[0], xs[len(xs)-1]
		for i := range rows {
			x := float64(rows[i].Year)
			if x <= lo || x >= hi || !Missing(rows[i].Values[f]) {
				continue
			}
			rows[i].Values[f] = pl.Predict(x)
		}
	}
	return rows
}

// controlPoints returns the known (year, value) pairs of field f in year order.
func controlPoints(rows []Observation, f int) (xs, ys []float64) {
	for _, o := range rows {
		v := o.Values[f]
		if Missing(v) || math.IsInf(v, 0) {
			continue
		}
		xs = append(xs, float64(o.Year))
		ys = append(ys, v)
	}
	return xs, ys
}

// FillMissing returns a copy of s with every missing value replaced by v.
func FillMissing(s Series, v float64) Series {
	out := Series{
		Fields: append([]string(nil), s.Fields...),
		Rows:   make([]Observation, len(s.Rows)),
	}
	for i, o := range s.Rows {
		vals := make([]float64, len(o.Values))
		for j, x := range o.Values {
			if Missing(x) {
				x = v
			}
			vals[j] = x
		}
		out.Rows[i] = Observation{District: o.District, Year: o.Year, Values: vals}
	}
	return out
}

// Field returns the index of the named field, or -1.
func (s Series) Field(name string) int {
	for i, f := range s.Fields {
		if f == name {
			return i
		}
	}
	return -1
}
