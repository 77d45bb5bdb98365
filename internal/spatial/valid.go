// Package spatial clips land-cover polygons to administrative districts and
// recomputes their planar areas.
package spatial

import (
	"math"

	"github.com/ctessum/geom"
)

// areaEpsilon is the smallest ring or overlay area (square map units) kept.
const areaEpsilon = 1e-9

// MakeValid repairs the topology problems found in survey and boundary
// files: repeated consecutive vertices, non-finite vertices, unclosed rings,
// rings with fewer than three distinct vertices, self-intersecting rings and
// zero-area (collapsed or spike-only) rings. It returns a new polygon and
// never mutates p.
//
// Self-intersections are resolved by overlaying the polygon with a frame
// around its own extent, which splits a crossing ring into simple rings
// that cover the same area.
func MakeValid(p geom.Polygon) geom.Polygon {
	cleaned := make(geom.Polygon, 0, len(p))
	for _, ring := range p {
		r := cleanRing(ring)
		if r == nil {
			continue
		}
		// A crossing ring can have zero net area and still cover ground.
		if math.Abs(ringArea(r)) <= areaEpsilon && !selfIntersects(geom.Polygon{r}) {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) == 0 {
		return nil
	}

	if selfIntersects(cleaned) {
		repaired, ok := cleaned.Intersection(frame(cleaned)).(geom.Polygon)
		if !ok {
			return nil
		}
		cleaned = repaired
	}

	out := make(geom.Polygon, 0, len(cleaned))
	for _, r := range cleaned {
		if math.Abs(ringArea(r)) > areaEpsilon {
			out = append(out, r)
		}
	}
	if len(out) == 0 || out.Area() <= areaEpsilon {
		return nil
	}
	return out
}

// IsValid reports whether MakeValid would leave p unchanged.
func IsValid(p geom.Polygon) bool {
	if len(p) == 0 {
		return false
	}
	for _, ring := range p {
		r := cleanRing(ring)
		if r == nil || len(r) != len(ring) || math.Abs(ringArea(r)) <= areaEpsilon {
			return false
		}
		for i := range r {
			if r[i] != ring[i] {
				return false
			}
		}
	}
	return !selfIntersects(p)
}

// cleanRing drops non-finite and repeated vertices and closes the ring. It
// returns nil when fewer than three distinct vertices remain.
func cleanRing(ring geom.Path) geom.Path {
	r := make(geom.Path, 0, len(ring)+1)
	for _, pt := range ring {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
			continue
		}
		if len(r) > 0 && r[len(r)-1] == pt {
			continue
		}
		r = append(r, pt)
	}
	// Compare distinct vertices without the closing one.
	distinct := len(r)
	if distinct > 1 && r[0] == r[len(r)-1] {
		distinct--
	}
	if distinct < 3 {
		return nil
	}
	if r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// frame is a rectangle enclosing p with a margin, so that none of its edges
// coincide with an edge of p.
func frame(p geom.Polygon) geom.Polygon {
	b := p.Bounds()
	pad := math.Max(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
	if pad == 0 {
		pad = 1
	}
	x0, y0 := b.Min.X-pad, b.Min.Y-pad
	x1, y1 := b.Max.X+pad, b.Max.Y+pad
	return geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}}
}

type segment struct {
	a, b geom.Point
	ring int
	pos  int
	last bool
}

// selfIntersects reports whether any two non-adjacent edges of the closed
// rings of p touch or cross, within a ring or between rings.
func selfIntersects(p geom.Polygon) bool {
	var segs []segment
	for ri, r := range p {
		n := len(r) - 1
		for i := 0; i < n; i++ {
			segs = append(segs, segment{a: r[i], b: r[i+1], ring: ri, pos: i, last: i == n-1})
		}
	}
	for i := 0; i < len(segs); i++ {
		s := segs[i]
		for j := i + 1; j < len(segs); j++ {
			t := segs[j]
			if s.ring == t.ring && (t.pos == s.pos+1 || (s.pos == 0 && t.last)) {
				continue
			}
			if !boxesOverlap(s, t) {
				continue
			}
			if segmentsTouch(s.a, s.b, t.a, t.b) {
				return true
			}
		}
	}
	return false
}

func boxesOverlap(s, t segment) bool {
	return math.Max(s.a.X, s.b.X) >= math.Min(t.a.X, t.b.X) &&
		math.Max(t.a.X, t.b.X) >= math.Min(s.a.X, s.b.X) &&
		math.Max(s.a.Y, s.b.Y) >= math.Min(t.a.Y, t.b.Y) &&
		math.Max(t.a.Y, t.b.Y) >= math.Min(s.a.Y, s.b.Y)
}

func segmentsTouch(a, b, c, d geom.Point) bool {
	o1, o2 := orientation(a, b, c), orientation(a, b, d)
	o3, o4 := orientation(c, d, a), orientation(c, d, b)
	if o1*o2 < 0 && o3*o4 < 0 {
		return true
	}
	return (o1 == 0 && within(a, b, c)) ||
		(o2 == 0 && within(a, b, d)) ||
		(o3 == 0 && within(c, d, a)) ||
		(o4 == 0 && within(c, d, b))
}

// orientation is the sign of the turn a→b→c.
func orientation(a, b, c geom.Point) int {
	v := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// within reports whether collinear point c lies on segment ab.
func within(a, b, c geom.Point) bool {
	return c.X >= math.Min(a.X, b.X) && c.X <= math.Max(a.X, b.X) &&
		c.Y >= math.Min(a.Y, b.Y) && c.Y <= math.Max(a.Y, b.Y)
}

func ringArea(r geom.Path) float64 {
	var a float64
	for i := 0; i < len(r); i++ {
		j := (i + 1) % len(r)
		a += r[i].X*r[j].Y - r[j].X*r[i].Y
	}
	return a / 2
}
