// Package taxonomy reconciles heterogeneous land-cover survey codes into one
// fixed set of canonical categories.
package taxonomy

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Category is a canonical land-cover label.
type Category string

// Built-in category labels.
const (
	Residential        Category = "residential"
	Industrial         Category = "industrial"
	Commercial         Category = "commercial"
	CulturalRecreation Category = "cultural_recreation"
	Transportation     Category = "transportation"
	PublicFacility     Category = "public_facility"
	OtherUrbanized     Category = "other_urbanized"
	Agriculture        Category = "agriculture"
	Forest             Category = "forest"
	Grassland          Category = "grassland"
	Wetland            Category = "wetland"
	BareLand           Category = "bare_land"
	Water              Category = "water"
	Unknown            Category = "unknown"
)

// Table is the lookup data behind a Normalizer. A Table is treated as
// immutable once handed to NewNormalizer.
type Table struct {
	// Urban maps mid-level codes with leading digit 1 (110, 120, ...) to a label.
	Urban map[int]Category `yaml:"urban"`
	// UrbanFallback labels leading-digit-1 codes missing from Urban.
	UrbanFallback Category `yaml:"urban_fallback"`
	// Coarse maps leading digits 2..9 to a label.
	Coarse map[int]Category `yaml:"coarse"`
	// Unknown labels anything that cannot be classified.
	Unknown Category `yaml:"unknown"`
	// Order is the canonical column order of output tables.
	Order []Category `yaml:"order"`
}

// DefaultTable returns the built-in level-2 land-cover table.
func DefaultTable() Table {
	return Table{
		Urban: map[int]Category{
			110: Residential,
			120: Industrial,
			130: Commercial,
			140: CulturalRecreation,
			150: Transportation,
			160: PublicFacility,
		},
		UrbanFallback: OtherUrbanized,
		Coarse: map[int]Category{
			2: Agriculture,
			3: Forest,
			4: Grassland,
			5: Wetland,
			6: BareLand,
			7: Water,
		},
		Unknown: Unknown,
		Order: []Category{
			Residential, Industrial, Commercial, CulturalRecreation, Transportation, PublicFacility,
			Agriculture, Forest, Grassland, Wetland, BareLand, Water,
			OtherUrbanized, Unknown,
		},
	}
}

// LoadTable reads a taxonomy table from a YAML file. Keys omitted from the
// file keep their built-in values.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, eris.Wrapf(err, "taxonomy: read %s", path)
	}

	var override Table
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Table{}, eris.Wrapf(err, "taxonomy: parse %s", path)
	}

	t := DefaultTable()
	if len(override.Urban) > 0 {
		t.Urban = override.Urban
	}
	if override.UrbanFallback != "" {
		t.UrbanFallback = override.UrbanFallback
	}
	if len(override.Coarse) > 0 {
		t.Coarse = override.Coarse
	}
	if override.Unknown != "" {
		t.Unknown = override.Unknown
	}
	if len(override.Order) > 0 {
		t.Order = override.Order
	}

	if err := t.Validate(); err != nil {
		return Table{}, eris.Wrapf(err, "taxonomy: %s", path)
	}
	return t, nil
}

// Validate checks that every label the table can produce appears exactly once
// in Order and that codes are in range.
func (t Table) Validate() error {
	if t.Unknown == "" {
		return eris.New("taxonomy: unknown label is empty")
	}
	if t.UrbanFallback == "" {
		return eris.New("taxonomy: urban fallback label is empty")
	}

	seen := make(map[Category]bool, len(t.Order))
	for _, c := range t.Order {
		if seen[c] {
			return eris.Errorf("taxonomy: category %q listed twice in order", c)
		}
		seen[c] = true
	}

	for code, c := range t.Urban {
		if code < 100 || code > 199 || code%10 != 0 {
			return eris.Errorf("taxonomy: urban code %d is not a mid-level 1x0 code", code)
		}
		if !seen[c] {
			return eris.Errorf("taxonomy: urban category %q missing from order", c)
		}
	}
	for digit, c := range t.Coarse {
		if digit < 2 || digit > 9 {
			return eris.Errorf("taxonomy: coarse digit %d out of range 2..9", digit)
		}
		if !seen[c] {
			return eris.Errorf("taxonomy: coarse category %q missing from order", c)
		}
	}
	for _, c := range []Category{t.UrbanFallback, t.Unknown} {
		if !seen[c] {
			return eris.Errorf("taxonomy: category %q missing from order", c)
		}
	}
	return nil
}

// Index returns the position of c in Order, or -1.
func (t Table) Index(c Category) int {
	for i, o := range t.Order {
		if o == c {
			return i
		}
	}
	return -1
}

// RepresentativeCode returns a code that normalizes to c, and false for the
// unknown label or a label the table cannot produce.
func (t Table) RepresentativeCode(c Category) (int, bool) {
	codes := make([]int, 0, len(t.Urban))
	for code := range t.Urban {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		if t.Urban[code] == c {
			return code, true
		}
	}

	digits := make([]int, 0, len(t.Coarse))
	for d := range t.Coarse {
		digits = append(digits, d)
	}
	sort.Ints(digits)
	for _, d := range digits {
		if t.Coarse[d] == c {
			return d * 100, true
		}
	}

	if c == t.UrbanFallback {
		// 190 is never a listed mid-level code in the built-in table.
		for code := 190; code >= 100; code -= 10 {
			if _, ok := t.Urban[code]; !ok {
				return code, true
			}
		}
	}
	return 0, false
}

func (t Table) clone() Table {
	out := t
	out.Urban = make(map[int]Category, len(t.Urban))
	for k, v := range t.Urban {
		out.Urban[k] = v
	}
	out.Coarse = make(map[int]Category, len(t.Coarse))
	for k, v := range t.Coarse {
		out.Coarse[k] = v
	}
	out.Order = append([]Category(nil), t.Order...)
	return out
}
