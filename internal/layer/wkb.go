package layer

import (
	"math"
	"sort"

	cgeom "github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// EncodeEWKB converts rings to EWKB MultiPolygon bytes with the given SRID.
// Rings nested inside another ring become holes of the smallest ring that
// contains them. Returns nil, nil for an empty polygon.
func EncodeEWKB(p cgeom.Polygon, srid int) ([]byte, error) {
	mp := ToMultiPolygon(p, srid)
	if mp == nil {
		return nil, nil
	}

	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "layer: encode WKB")
	}
	return data, nil
}

// ToMultiPolygon groups rings into shells and holes.
func ToMultiPolygon(p cgeom.Polygon, srid int) *geom.MultiPolygon {
	rings := closedRings(p)
	if len(rings) == 0 {
		return nil
	}

	type ring struct {
		flat   []float64
		area   float64
		parent int
	}
	rs := make([]ring, len(rings))
	for i, r := range rings {
		rs[i] = ring{flat: flatCoords(r), area: math.Abs(signedArea(r)), parent: -1}
	}

	// Largest first so a parent is always seen before its holes.
	order := make([]int, len(rs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rs[order[a]].area > rs[order[b]].area })

	depth := make([]int, len(rs))
	for pos, i := range order {
		probe := geom.Coord{rs[i].flat[0], rs[i].flat[1]}
		for _, j := range order[:pos] {
			if !xy.IsPointInRing(geom.XY, probe, rs[j].flat) {
				continue
			}
			if rs[i].parent == -1 || rs[j].area < rs[rs[i].parent].area {
				rs[i].parent = j
			}
		}
		if rs[i].parent >= 0 {
			depth[i] = depth[rs[i].parent] + 1
		}
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	shells := make(map[int]*geom.Polygon)
	for _, i := range order {
		if depth[i]%2 == 0 {
			poly := geom.NewPolygon(geom.XY)
			if err := poly.Push(geom.NewLinearRingFlat(geom.XY, rs[i].flat)); err != nil {
				zap.L().Debug("layer: skipping malformed shell", zap.Int("ring", i), zap.Error(err))
				continue
			}
			shells[i] = poly
			continue
		}
		shell, ok := shells[rs[i].parent]
		if !ok {
			continue
		}
		if err := shell.Push(geom.NewLinearRingFlat(geom.XY, rs[i].flat)); err != nil {
			zap.L().Debug("layer: skipping malformed hole", zap.Int("ring", i), zap.Error(err))
		}
	}

	for _, i := range order {
		poly, ok := shells[i]
		if !ok {
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("layer: skipping malformed polygon part", zap.Int("ring", i), zap.Error(err))
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// flatCoords converts a ring to flat coordinate pairs for go-geom.
func flatCoords(r cgeom.Path) []float64 {
	flat := make([]float64, 0, len(r)*2)
	for _, pt := range r {
		flat = append(flat, pt.X, pt.Y)
	}
	return flat
}

// signedArea is the shoelace area of a ring; positive when counter-clockwise.
func signedArea(r cgeom.Path) float64 {
	var a float64
	for i := 0; i < len(r); i++ {
		j := (i + 1) % len(r)
		a += r[i].X*r[j].Y - r[j].X*r[i].Y
	}
	return a / 2
}
