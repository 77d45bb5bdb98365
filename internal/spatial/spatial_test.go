package spatial

import (
	"errors"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landcover/internal/layer"
	"github.com/sells-group/landcover/internal/taxonomy"
)

func rect(x0, y0, x1, y1 float64) geom.Path {
	return geom.Path{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}
}

func boundaryLayer() *layer.Layer {
	return &layer.Layer{
		Name:   "sigungu",
		Fields: []string{"SIGUNGU_NM"},
		Schema: []shp.Field{layer.StringField("SIGUNGU_NM", 40)},
		Features: []layer.Feature{
			{Geometry: geom.Polygon{rect(0, 0, 10, 10)}, Attrs: []string{"강남구"}},
			{Geometry: geom.Polygon{rect(10, 0, 20, 10)}, Attrs: []string{"서초구"}},
		},
	}
}

func landLayer(features ...layer.Feature) *layer.Layer {
	return &layer.Layer{
		Name:     "2010_add_area",
		Fields:   []string{"L3_CODE", "L3_NAME", "AREA_M2"},
		Schema:   []shp.Field{layer.StringField("L3_CODE", 10), layer.StringField("L3_NAME", 20), layer.FloatField("AREA_M2")},
		Features: features,
	}
}

func TestMakeValid(t *testing.T) {
	tests := []struct {
		name  string
		in    geom.Polygon
		rings int
	}{
		{name: "closes ring", in: geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}, rings: 1},
		{name: "drops duplicate vertices", in: geom.Polygon{{{X: 0, Y: 0}, {X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}}, rings: 1},
		{name: "drops collinear ring", in: geom.Polygon{rect(0, 0, 4, 4), {{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}}, rings: 1},
		{name: "drops two point ring", in: geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 1}}}, rings: 0},
		{name: "drops NaN vertices", in: geom.Polygon{{{X: 0, Y: 0}, {X: math.NaN(), Y: 1}, {X: 1, Y: 0}, {X: 1, Y: 1}}}, rings: 1},
		{name: "empty", in: nil, rings: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := MakeValid(tt.in)
			assert.Len(t, out, tt.rings)
			for _, r := range out {
				assert.Equal(t, r[0], r[len(r)-1])
			}
		})
	}
}

func bowtie() geom.Polygon {
	return geom.Polygon{{{X: 0, Y: 0}, {X: 2, Y: 2}, {X: 2, Y: 0}, {X: 0, Y: 2}, {X: 0, Y: 0}}}
}

func TestMakeValid_SelfIntersecting(t *testing.T) {
	in := bowtie()
	assert.False(t, IsValid(in))

	out := MakeValid(in)
	require.Len(t, out, 2)
	assert.InDelta(t, 2, out.Area(), 1e-9)
	assert.True(t, IsValid(out))
	for _, r := range out {
		assert.Equal(t, r[0], r[len(r)-1])
	}
}

func TestMakeValid_AsymmetricBowtie(t *testing.T) {
	// Crossing at (1,1): triangles of area 1 and 4.
	in := geom.Polygon{{{X: 0, Y: 0}, {X: 3, Y: 3}, {X: 3, Y: -1}, {X: 0, Y: 2}, {X: 0, Y: 0}}}
	out := MakeValid(in)
	require.NotEmpty(t, out)
	assert.InDelta(t, 5, out.Area(), 1e-9)
}

func TestMakeValid_DoesNotMutate(t *testing.T) {
	in := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}
	_ = MakeValid(in)
	assert.Len(t, in[0], 3)
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(geom.Polygon{rect(0, 0, 1, 1)}))
	assert.False(t, IsValid(geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}))
	assert.False(t, IsValid(nil))
}

func TestSameProjection(t *testing.T) {
	assert.True(t, SameProjection("", `PROJCS["a"]`))
	assert.True(t, SameProjection(`PROJCS["a", GEOGCS["b"]]`, "PROJCS[\"a\",\n GEOGCS[\"b\"]]"))
	assert.False(t, SameProjection(`PROJCS["a"]`, `PROJCS["b"]`))
}

func TestReproject_SameProjectionReturnsInput(t *testing.T) {
	l := landLayer()
	l.Projection = `PROJCS["x"]`
	out, err := Reproject(l, `PROJCS["x"]`)
	require.NoError(t, err)
	assert.Same(t, l, out)
}

func TestReproject_BadProjection(t *testing.T) {
	l := landLayer(layer.Feature{Geometry: geom.Polygon{rect(0, 0, 1, 1)}, Attrs: []string{"111", "", "1"}})
	l.Projection = "not a projection"
	_, err := Reproject(l, "+proj=longlat +datum=WGS84")
	require.Error(t, err)
}

const (
	wgs84   = "+proj=longlat +datum=WGS84 +no_defs"
	utm52n  = "+proj=utm +zone=52 +datum=WGS84 +units=m +no_defs"
	cellDeg = 0.01
)

func TestReproject_LongLatToUTM(t *testing.T) {
	// 129°E is the central meridian of zone 52.
	l := landLayer(layer.Feature{
		Geometry: geom.Polygon{rect(129, 37.5, 129+cellDeg, 37.5+cellDeg)},
		Attrs:    []string{"111", "단독주거", "0"},
	})
	l.Projection = wgs84

	out, err := Reproject(l, utm52n)
	require.NoError(t, err)
	assert.Equal(t, utm52n, out.Projection)
	assert.Equal(t, wgs84, l.Projection)
	assert.Equal(t, 129.0, l.Features[0].Geometry[0][0].X)

	require.Len(t, out.Features, 1)
	origin := out.Features[0].Geometry[0][0]
	assert.InDelta(t, 500000, origin.X, 1)
	assert.InDelta(t, 4150341, origin.Y, 1000)
	assert.InEpsilon(t, 980600, out.Features[0].Geometry.Area(), 0.005)
	assert.Equal(t, l.Features[0].Attrs, out.Features[0].Attrs)
}

func TestClip_AfterReproject(t *testing.T) {
	// Roughly x 500177..501061, y 4150341..4151451 once projected.
	l := landLayer(layer.Feature{
		Geometry: geom.Polygon{rect(129.002, 37.5, 129.002+cellDeg, 37.5+cellDeg)},
		Attrs:    []string{"111", "단독주거", "0"},
	})
	l.Projection = wgs84

	bl := boundaryLayer()
	bl.Projection = utm52n
	bl.Features = []layer.Feature{
		{Geometry: geom.Polygon{rect(499000, 4149000, 500500, 4153000)}, Attrs: []string{"서쪽"}},
		{Geometry: geom.Polygon{rect(500500, 4149000, 502000, 4153000)}, Attrs: []string{"동쪽"}},
	}
	b, err := NewBoundaries(bl, "SIGUNGU_NM")
	require.NoError(t, err)

	projected, err := Reproject(l, b.Projection)
	require.NoError(t, err)
	parcels, err := b.Clip(projected)
	require.NoError(t, err)

	require.Len(t, parcels, 2)
	assert.Equal(t, "서쪽", parcels[0].District)
	assert.Equal(t, "동쪽", parcels[1].District)
	assert.Less(t, parcels[0].Area, parcels[1].Area)
	assert.InEpsilon(t, projected.Features[0].Geometry.Area(), parcels[0].Area+parcels[1].Area, 1e-6)
}

func TestNewBoundaries(t *testing.T) {
	bl := boundaryLayer()
	bl.Features = append(bl.Features, layer.Feature{
		Geometry: geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 1}}},
		Attrs:    []string{"broken"},
	})

	b, err := NewBoundaries(bl, "sigungu_nm")
	require.NoError(t, err)
	require.Len(t, b.Districts, 2)
	assert.Equal(t, "강남구", b.Districts[0].Name)
	assert.Equal(t, "서초구", b.Districts[1].Name)
}

func TestNewBoundaries_RepairsSelfIntersection(t *testing.T) {
	bl := boundaryLayer()
	bl.Features = []layer.Feature{{Geometry: bowtie(), Attrs: []string{"중구"}}}

	b, err := NewBoundaries(bl, "SIGUNGU_NM")
	require.NoError(t, err)
	require.Len(t, b.Districts, 1)
	assert.Equal(t, "중구", b.Districts[0].Name)
	assert.InDelta(t, 2, b.Districts[0].Geometry.Area(), 1e-9)

	parcels, err := b.Clip(landLayer(layer.Feature{Geometry: geom.Polygon{rect(0, 0, 2, 2)}, Attrs: []string{"111", "", ""}}))
	require.NoError(t, err)
	var total float64
	for _, p := range parcels {
		assert.Equal(t, "중구", p.District)
		total += p.Area
	}
	assert.InDelta(t, 2, total, 1e-9)
}

func TestNewBoundaries_MissingField(t *testing.T) {
	_, err := NewBoundaries(boundaryLayer(), "ADM_NM")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingDistrictField))
}

func TestClip_SplitsAcrossDistricts(t *testing.T) {
	b, err := NewBoundaries(boundaryLayer(), "SIGUNGU_NM")
	require.NoError(t, err)

	l := landLayer(
		layer.Feature{Geometry: geom.Polygon{rect(5, 0, 15, 10)}, Attrs: []string{"111", "단독주거", "999"}},
		layer.Feature{Geometry: geom.Polygon{rect(12, 2, 14, 4)}, Attrs: []string{"310", "활엽수림", "4"}},
		layer.Feature{Geometry: geom.Polygon{rect(50, 50, 60, 60)}, Attrs: []string{"710", "내륙수", "100"}},
	)

	parcels, err := b.Clip(l)
	require.NoError(t, err)
	require.Len(t, parcels, 3)

	assert.Equal(t, "강남구", parcels[0].District)
	assert.InDelta(t, 50, parcels[0].Area, 1e-6)
	assert.Equal(t, 0, parcels[0].Feature)

	assert.Equal(t, "서초구", parcels[1].District)
	assert.InDelta(t, 50, parcels[1].Area, 1e-6)

	assert.Equal(t, "서초구", parcels[2].District)
	assert.InDelta(t, 4, parcels[2].Area, 1e-6)
	assert.Equal(t, 1, parcels[2].Feature)
}

func TestClip_EmptyInputs(t *testing.T) {
	b, err := NewBoundaries(boundaryLayer(), "SIGUNGU_NM")
	require.NoError(t, err)

	_, err = b.Clip(landLayer())
	assert.True(t, errors.Is(err, ErrEmptyLayer))

	_, err = b.Clip(landLayer(layer.Feature{Geometry: geom.Polygon{rect(100, 100, 101, 101)}, Attrs: []string{"111", "", ""}}))
	assert.True(t, errors.Is(err, ErrEmptyIntersection))
}

func TestClip_Deterministic(t *testing.T) {
	b, err := NewBoundaries(boundaryLayer(), "SIGUNGU_NM")
	require.NoError(t, err)
	l := landLayer(layer.Feature{Geometry: geom.Polygon{rect(-5, -5, 25, 15)}, Attrs: []string{"111", "", ""}})

	first, err := b.Clip(l)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := b.Clip(l)
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].District, again[j].District)
			assert.Equal(t, first[j].Area, again[j].Area)
		}
	}
}

func TestSummarize(t *testing.T) {
	src := landLayer()
	parcels := []Parcel{
		{District: "서초구", Attrs: []string{"111", "단독주거", ""}, Area: 10},
		{District: "강남구", Attrs: []string{"111", "단독주거", ""}, Area: 2.5},
		{District: "강남구", Attrs: []string{"310", "활엽수림", ""}, Area: 4},
		{District: "강남구", Attrs: []string{"111", "단독주거", ""}, Area: 1.5},
	}

	s, err := Summarize(src, parcels, "SIGUNGU_NM", "AREA_M2")
	require.NoError(t, err)
	assert.Equal(t, taxonomy.Level3, s.Level)
	assert.Equal(t, []string{"SIGUNGU_NM", "L3_CODE", "L3_NAME", "AREA_M2"}, s.Header())
	assert.Equal(t, [][]string{
		{"강남구", "111", "단독주거", "4"},
		{"강남구", "310", "활엽수림", "4"},
		{"서초구", "111", "단독주거", "10"},
	}, s.Records())
}

func TestSummarize_NoGroupColumns(t *testing.T) {
	src := &layer.Layer{Name: "x", Fields: []string{"NAME", "AREA_M2"}}
	_, err := Summarize(src, nil, "SIGUNGU_NM", "AREA_M2")
	assert.True(t, errors.Is(err, ErrNoGroupColumns))
}

func TestParcelLayer(t *testing.T) {
	src := landLayer()
	parcels := []Parcel{
		{Geometry: geom.Polygon{rect(0, 0, 1, 1)}, Attrs: []string{"111", "단독주거", "999"}, District: "강남구", Area: 1},
	}

	out := ParcelLayer(src, parcels, "SIGUNGU_NM", "AREA_M2")
	assert.Equal(t, []string{"L3_CODE", "L3_NAME", "SIGUNGU_NM", "AREA_M2"}, out.Fields)
	require.Len(t, out.Schema, 4)
	assert.Equal(t, uint8(16), out.Schema[0].Size)
	require.Len(t, out.Features, 1)
	assert.Equal(t, []string{"111", "단독주거", "강남구", "1"}, out.Features[0].Attrs)
}

func TestParcelLayer_ExistingDistrictField(t *testing.T) {
	src := &layer.Layer{
		Name:   "x",
		Fields: []string{"SIGUNGU_NM", "L2_CODE"},
		Schema: []shp.Field{layer.StringField("SIGUNGU_NM", 40), layer.StringField("L2_CODE", 10)},
	}
	parcels := []Parcel{{Attrs: []string{"old", "11"}, District: "종로구", Area: 2.25}}

	out := ParcelLayer(src, parcels, "SIGUNGU_NM", "AREA_M2")
	assert.Equal(t, []string{"SIGUNGU_NM", "L2_CODE", "AREA_M2"}, out.Fields)
	assert.Equal(t, []string{"종로구", "11", "2.25"}, out.Features[0].Attrs)
}
