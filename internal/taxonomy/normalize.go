package taxonomy

import (
	"math"
	"strconv"
	"strings"
)

// Classification is the result of normalizing one raw code.
type Classification struct {
	// Code is the integer the raw value coerced to; -1 if coercion failed.
	Code int
	// MidCode is the mid-level (1x0) form for urban codes, or leading digit
	// times 100 for coarse codes. Zero when unclassified.
	MidCode  int
	Category Category
}

// Normalizer maps raw survey codes to canonical categories.
type Normalizer struct {
	table Table
}

// NewNormalizer returns a Normalizer over a private copy of t.
func NewNormalizer(t Table) *Normalizer {
	return &Normalizer{table: t.clone()}
}

// Table returns a copy of the normalizer's table.
func (n *Normalizer) Table() Table {
	return n.table.clone()
}

// Normalize classifies a raw code value. It accepts integers, floats and
// strings ("110", "110.0", " 11 "); anything else resolves to the unknown
// label. It never panics.
func (n *Normalizer) Normalize(raw any) Classification {
	code, ok := coerceInt(raw)
	if !ok || code < 0 {
		return Classification{Code: -1, Category: n.table.Unknown}
	}

	digits := strconv.Itoa(code)
	lead := int(digits[0] - '0')

	var mid int
	switch len(digits) {
	case 1:
		mid = 0
	case 2:
		if lead == 1 {
			mid = code * 10
		}
	default:
		// 111 -> 110; wider codes keep their first two digits.
		mid = int(digits[0]-'0')*100 + int(digits[1]-'0')*10
	}

	out := Classification{Code: code}
	switch {
	case lead == 1:
		if c, ok := n.table.Urban[mid]; ok && mid != 0 {
			out.MidCode = mid
			out.Category = c
			return out
		}
		out.MidCode = mid
		out.Category = n.table.UrbanFallback
	default:
		c, ok := n.table.Coarse[lead]
		if !ok {
			out.Category = n.table.Unknown
			return out
		}
		out.MidCode = mid
		if mid == 0 {
			out.MidCode = lead * 100
		}
		out.Category = c
	}
	return out
}

// NormalizeField classifies a raw value taken from the named column. Values
// from columns that do not hold codes (label columns such as L3_NAME) are
// unknown.
func (n *Normalizer) NormalizeField(column string, raw any) Classification {
	if !IsCodeColumn(column) {
		return Classification{Code: -1, Category: n.table.Unknown}
	}
	return n.Normalize(raw)
}

// coerceInt converts raw to an integer the way the survey tooling does:
// numeric strings are parsed as floats and truncated toward zero.
func coerceInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		if v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case string:
		s := strings.TrimSpace(strings.TrimRight(v, "\x00"))
		if s == "" {
			return 0, false
		}
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case []byte:
		return coerceInt(string(v))
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(math.Trunc(f)), true
}
