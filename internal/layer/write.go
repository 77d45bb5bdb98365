package layer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

// Write stores l as a polygon shapefile at path (.shp, .shx, .dbf) together
// with a .prj (when l carries a projection) and a UTF-8 .cpg marker.
func Write(path string, l *Layer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "layer: create dir for %s", path)
	}

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "layer: create shapefile %s", path)
	}
	defer w.Close()

	if err := w.SetFields(l.Schema); err != nil {
		return eris.Wrapf(err, "layer: set fields on %s", path)
	}

	for _, f := range l.Features {
		shape := PolygonToShape(f.Geometry)
		if shape == nil {
			continue
		}
		row := int(w.Write(shape))
		for i, v := range f.Attrs {
			if i >= len(l.Schema) {
				break
			}
			if err := w.WriteAttribute(row, i, v); err != nil {
				return eris.Wrapf(err, "layer: write attribute %s of row %d", l.Fields[i], row)
			}
		}
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	if l.Projection != "" {
		if err := os.WriteFile(base+".prj", []byte(l.Projection), 0o644); err != nil {
			return eris.Wrap(err, "layer: write .prj")
		}
	}
	if err := os.WriteFile(base+".cpg", []byte("UTF-8"), 0o644); err != nil {
		return eris.Wrap(err, "layer: write .cpg")
	}
	return nil
}

// PolygonToShape converts rings to a go-shp polygon, closing open rings and
// dropping rings with fewer than three vertices. Returns nil if nothing
// remains.
func PolygonToShape(p geom.Polygon) *shp.Polygon {
	parts := make([][]shp.Point, 0, len(p))
	for _, ring := range closedRings(p) {
		pts := make([]shp.Point, len(ring))
		for i, pt := range ring {
			pts[i] = shp.Point{X: pt.X, Y: pt.Y}
		}
		parts = append(parts, pts)
	}
	if len(parts) == 0 {
		return nil
	}
	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly
}

// StringField builds a character field definition.
func StringField(name string, size int) shp.Field {
	if size > 254 {
		size = 254
	}
	return shp.StringField(name, uint8(size))
}

// FloatField builds a floating point field definition.
func FloatField(name string) shp.Field {
	return shp.FloatField(name, 24, 6)
}

// WidenForUTF8 grows character fields so values transcoded from a two-byte
// legacy encoding to UTF-8 still fit.
func WidenForUTF8(f shp.Field) shp.Field {
	if f.Fieldtype != 'C' {
		return f
	}
	size := int(f.Size)*3/2 + 1
	if size > 254 {
		size = 254
	}
	f.Size = uint8(size)
	return f
}

// closedRings returns copies of the rings of p with the first vertex repeated
// at the end, skipping degenerate rings.
func closedRings(p geom.Polygon) []geom.Path {
	out := make([]geom.Path, 0, len(p))
	for _, ring := range p {
		if len(ring) < 3 {
			continue
		}
		r := append(geom.Path(nil), ring...)
		if r[0] != r[len(r)-1] {
			r = append(r, r[0])
		}
		if len(r) < 4 {
			continue
		}
		out = append(out, r)
	}
	return out
}
