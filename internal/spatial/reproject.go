package spatial

import (
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"

	"github.com/sells-group/landcover/internal/layer"
)

// SameProjection reports whether two .prj texts describe the same CRS as far
// as can be told without parsing them: identical after whitespace
// normalization, or either side unknown.
func SameProjection(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return strings.Join(strings.Fields(a), "") == strings.Join(strings.Fields(b), "")
}

// Reproject returns a copy of l transformed into the CRS described by target
// (WKT or PROJ.4). The input layer is not modified. When the projections
// already match, l itself is returned.
func Reproject(l *layer.Layer, target string) (*layer.Layer, error) {
	if SameProjection(l.Projection, target) {
		return l, nil
	}

	src, err := proj.Parse(l.Projection)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: parse projection of %s", l.Name)
	}
	dst, err := proj.Parse(target)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: parse target projection")
	}
	tr, err := src.NewTransform(dst)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: build transform for %s", l.Name)
	}

	out := &layer.Layer{
		Name:       l.Name,
		Fields:     l.Fields,
		Schema:     l.Schema,
		Features:   make([]layer.Feature, 0, len(l.Features)),
		Projection: target,
	}
	for i, f := range l.Features {
		g, err := f.Geometry.Transform(tr)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: transform feature %d of %s", i, l.Name)
		}
		poly, ok := g.(geom.Polygon)
		if !ok {
			return nil, eris.Errorf("spatial: transform of feature %d of %s yielded %T", i, l.Name, g)
		}
		out.Features = append(out.Features, layer.Feature{Geometry: poly, Attrs: f.Attrs})
	}
	return out, nil
}
