package interpolate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullRange = YearRange{Start: 2000, End: 2024}

func obs(district string, year int, values ...float64) Observation {
	return Observation{District: district, Year: year, Values: values}
}

func valueAt(t *testing.T, s Series, district string, year, field int) float64 {
	t.Helper()
	for _, o := range s.Rows {
		if o.District == district && o.Year == year {
			return o.Values[field]
		}
	}
	t.Fatalf("no row for %s %d", district, year)
	return 0
}

func TestInterpolate_ThreeKnownPoints(t *testing.T) {
	s := Series{
		Fields: []string{"AREA"},
		Rows:   []Observation{obs("강남구", 2020, 400), obs("강남구", 2000, 100), obs("강남구", 2010, 200)},
	}

	out, err := Interpolate(s, fullRange)
	require.NoError(t, err)
	require.Len(t, out.Rows, 25)

	assert.Equal(t, 150.0, valueAt(t, out, "강남구", 2005, 0))
	assert.Equal(t, 300.0, valueAt(t, out, "강남구", 2015, 0))
	assert.Equal(t, 100.0, valueAt(t, out, "강남구", 2000, 0))
	assert.Equal(t, 200.0, valueAt(t, out, "강남구", 2010, 0))
	assert.Equal(t, 400.0, valueAt(t, out, "강남구", 2020, 0))
	assert.InDelta(t, 110.0, valueAt(t, out, "강남구", 2001, 0), 1e-9)
	assert.True(t, Missing(valueAt(t, out, "강남구", 2021, 0)))
	assert.True(t, Missing(valueAt(t, out, "강남구", 2024, 0)))
}

func TestInterpolate_ExactAtKnownPoints(t *testing.T) {
	known := map[int]float64{2002: 12.345678, 2007: 99.1, 2011: 0.000001, 2019: 7}
	s := Series{Fields: []string{"V"}}
	for y, v := range known {
		s.Rows = append(s.Rows, obs("중구", y, v))
	}

	out, err := Interpolate(s, fullRange)
	require.NoError(t, err)
	for y, v := range known {
		assert.Equal(t, v, valueAt(t, out, "중구", y, 0), "year %d", y)
	}
}

func TestInterpolate_NoExtrapolation(t *testing.T) {
	s := Series{Fields: []string{"V"}, Rows: []Observation{obs("a", 2005, 1), obs("a", 2010, 2)}}

	out, err := Interpolate(s, fullRange)
	require.NoError(t, err)
	for y := 2000; y < 2005; y++ {
		assert.True(t, Missing(valueAt(t, out, "a", y, 0)), "year %d", y)
	}
	for y := 2011; y <= 2024; y++ {
		assert.True(t, Missing(valueAt(t, out, "a", y, 0)), "year %d", y)
	}
}

func TestInterpolate_WithinDistrictOnly(t *testing.T) {
	s := Series{
		Fields: []string{"V"},
		Rows: []Observation{
			obs("a", 2000, 0), obs("a", 2004, 4),
			obs("b", 2002, 100),
		},
	}

	out, err := Interpolate(s, YearRange{Start: 2000, End: 2004})
	require.NoError(t, err)
	require.Len(t, out.Rows, 10)

	assert.Equal(t, 2.0, valueAt(t, out, "a", 2002, 0))
	assert.Equal(t, 100.0, valueAt(t, out, "b", 2002, 0))
	assert.True(t, Missing(valueAt(t, out, "b", 2001, 0)))
	assert.True(t, Missing(valueAt(t, out, "b", 2003, 0)))
}

func TestInterpolate_FieldsIndependent(t *testing.T) {
	s := Series{
		Fields: []string{"X", "Y"},
		Rows: []Observation{
			obs("a", 2000, 0, math.NaN()),
			obs("a", 2001, math.NaN(), 10),
			obs("a", 2002, 2, math.NaN()),
			obs("a", 2003, math.NaN(), 30),
		},
	}

	out, err := Interpolate(s, YearRange{Start: 2000, End: 2003})
	require.NoError(t, err)
	assert.Equal(t, 1.0, valueAt(t, out, "a", 2001, 0))
	assert.Equal(t, 20.0, valueAt(t, out, "a", 2002, 1))
	assert.True(t, Missing(valueAt(t, out, "a", 2003, 0)))
	assert.True(t, Missing(valueAt(t, out, "a", 2000, 1)))
}

func TestInterpolate_SortedDenseGrid(t *testing.T) {
	s := Series{
		Fields: []string{"V"},
		Rows:   []Observation{obs("b", 2001, 1), obs("a", 2003, 1), obs("c", 1990, 5)},
	}

	out, err := Interpolate(s, YearRange{Start: 2000, End: 2003})
	require.NoError(t, err)
	require.Len(t, out.Rows, 12)

	var keys []string
	for _, o := range out.Rows {
		keys = append(keys, o.District)
	}
	assert.Equal(t, []string{"a", "a", "a", "a", "b", "b", "b", "b", "c", "c", "c", "c"}, keys)
	assert.Equal(t, 2000, out.Rows[0].Year)
	assert.Equal(t, 2003, out.Rows[3].Year)

	// Out-of-range observations do not survive.
	for _, o := range out.Rows[8:] {
		assert.True(t, Missing(o.Values[0]))
	}
}

func TestInterpolate_DoesNotMutateInput(t *testing.T) {
	in := Series{Fields: []string{"V"}, Rows: []Observation{obs("a", 2000, 1), obs("a", 2002, 3)}}
	_, err := Interpolate(in, YearRange{Start: 2000, End: 2002})
	require.NoError(t, err)
	assert.Len(t, in.Rows, 2)
	assert.Equal(t, []float64{1}, in.Rows[0].Values)
}

func TestInterpolate_Errors(t *testing.T) {
	_, err := Interpolate(Series{}, YearRange{Start: 2024, End: 2000})
	require.Error(t, err)

	_, err = Interpolate(Series{Fields: []string{"A", "B"}, Rows: []Observation{obs("a", 2000, 1)}}, fullRange)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 1 values")

	_, err = Interpolate(Series{Fields: []string{"A"}, Rows: []Observation{obs("a", 2000, 1), obs("a", 2000, 2)}}, fullRange)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestFillMissing(t *testing.T) {
	in := Series{Fields: []string{"V", "W"}, Rows: []Observation{obs("a", 2000, math.NaN(), 2)}}
	out := FillMissing(in, 0)
	assert.Equal(t, []float64{0, 2}, out.Rows[0].Values)
	assert.True(t, Missing(in.Rows[0].Values[0]))
}

func TestYearRange(t *testing.T) {
	assert.Len(t, fullRange.Years(), 25)
	assert.True(t, fullRange.Contains(2000))
	assert.True(t, fullRange.Contains(2024))
	assert.False(t, fullRange.Contains(2025))
	assert.Nil(t, YearRange{Start: 2, End: 1}.Years())
}

func TestSeries_Field(t *testing.T) {
	s := Series{Fields: []string{"A", "B"}}
	assert.Equal(t, 1, s.Field("B"))
	assert.Equal(t, -1, s.Field("C"))
}
