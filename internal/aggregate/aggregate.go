// Package aggregate sums normalized land-cover areas into district-year
// category cells and impervious/pervious cells.
package aggregate

import (
	"sort"

	"github.com/sells-group/landcover/internal/taxonomy"
)

// Output column names shared by the impervious and merged tables.
const (
	ColYear       = "YEAR"
	ColDistrict   = "SIGUNGU_NM"
	ColImpervious = "IMPERVIOUS_AREA_M2"
	ColPervious   = "PERVIOUS_AREA_M2"
	ColRatio      = "IMPERVIOUS_RATIO"
	ColTotal      = "TOTAL_AREA_M2"
	ColTotalCheck = "TOTAL_CHECK"
)

// Row is one normalized parcel or summary line.
type Row struct {
	District string
	Year     int
	Class    taxonomy.Classification
	Area     float64
}

// CategoryCell holds the area of every category for one (district, year),
// aligned with the taxonomy order it was built with.
type CategoryCell struct {
	District string
	Year     int
	Areas    []float64
}

// Total is the sum of the category areas.
func (c CategoryCell) Total() float64 {
	var sum float64
	for _, a := range c.Areas {
		sum += a
	}
	return sum
}

// ImperviousCell is the impervious/pervious split of one (district, year).
type ImperviousCell struct {
	District   string
	Year       int
	Impervious float64
	Pervious   float64
	Total      float64
	Ratio      float64
}

// ImperviousCodes is the set of mid-level codes treated as impervious.
type ImperviousCodes map[int]struct{}

// NewImperviousCodes builds the predicate set.
func NewImperviousCodes(codes []int) ImperviousCodes {
	s := make(ImperviousCodes, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Contains reports whether a classified code is impervious.
func (s ImperviousCodes) Contains(c taxonomy.Classification) bool {
	if c.Code < 0 {
		return false
	}
	_, ok := s[c.MidCode]
	return ok
}

// Categories sums rows of one year into one cell per district. Every
// category of order is present in every cell, zero when no row matched.
// Categories missing from order are counted under unknown when order has it,
// otherwise dropped. Cells are sorted by district.
func Categories(rows []Row, year int, order []taxonomy.Category, unknown taxonomy.Category) []CategoryCell {
	pos := make(map[taxonomy.Category]int, len(order))
	for i, c := range order {
		pos[c] = i
	}
	unknownPos, hasUnknown := pos[unknown]

	cells := make(map[string]*CategoryCell)
	for _, r := range rows {
		cell, ok := cells[r.District]
		if !ok {
			cell = &CategoryCell{District: r.District, Year: year, Areas: make([]float64, len(order))}
			cells[r.District] = cell
		}
		i, ok := pos[r.Class.Category]
		if !ok {
			if !hasUnknown {
				continue
			}
			i = unknownPos
		}
		cell.Areas[i] += r.Area
	}

	out := make([]CategoryCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].District < out[b].District })
	return out
}

// Imperviousness splits rows of one year into impervious and pervious area
// per district. Districts with rows on only one side still get both values.
// Cells are sorted by district.
func Imperviousness(rows []Row, year int, isImpervious func(taxonomy.Classification) bool) []ImperviousCell {
	cells := make(map[string]*ImperviousCell)
	for _, r := range rows {
		cell, ok := cells[r.District]
		if !ok {
			cell = &ImperviousCell{District: r.District, Year: year}
			cells[r.District] = cell
		}
		if isImpervious(r.Class) {
			cell.Impervious += r.Area
		} else {
			cell.Pervious += r.Area
		}
	}

	out := make([]ImperviousCell, 0, len(cells))
	for _, c := range cells {
		c.Total = c.Impervious + c.Pervious
		c.Ratio = Ratio(c.Impervious, c.Total)
		out = append(out, *c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].District < out[b].District })
	return out
}

// DeriveImperviousness rebuilds a cell from its raw impervious and total
// areas: pervious is the complement and ratio is a percentage.
func DeriveImperviousness(district string, year int, impervious, total float64) ImperviousCell {
	return ImperviousCell{
		District:   district,
		Year:       year,
		Impervious: impervious,
		Pervious:   total - impervious,
		Total:      total,
		Ratio:      Ratio(impervious, total),
	}
}

// Ratio is impervious/total*100, or 0 when total is 0.
func Ratio(impervious, total float64) float64 {
	if total == 0 {
		return 0
	}
	return impervious / total * 100
}
