// Package layer reads and writes polygon shapefiles for the land-cover
// surveys and the administrative boundary layer.
package layer

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/korean"
)

// Feature is one polygon record with its attribute values in Layer.Fields order.
type Feature struct {
	Geometry geom.Polygon
	Attrs    []string
}

// Layer is an in-memory polygon shapefile.
type Layer struct {
	Name       string
	Fields     []string
	Schema     []shp.Field
	Features   []Feature
	Projection string // WKT from the sibling .prj file; empty when absent
}

// ReadOptions configures attribute decoding.
type ReadOptions struct {
	// Encoding is "utf-8" (default), "euc-kr" or "cp949".
	Encoding string
}

// Read loads a polygon shapefile and its sibling .prj file. Records without a
// polygon shape are skipped and counted.
func Read(path string, opts ReadOptions) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	schema := reader.Fields()
	fields := make([]string, len(schema))
	for i, f := range schema {
		fields[i] = strings.TrimSpace(strings.TrimRight(f.String(), "\x00"))
	}

	l := &Layer{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Fields: fields,
		Schema: schema,
	}

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		poly := shapeToPolygon(shape)
		if len(poly) == 0 {
			skipped++
			continue
		}

		attrs := make([]string, len(fields))
		for i := range fields {
			val := strings.TrimRight(reader.Attribute(i), "\x00")
			attrs[i] = decode(strings.TrimSpace(val), opts.Encoding)
		}
		l.Features = append(l.Features, Feature{Geometry: poly, Attrs: attrs})
	}

	if skipped > 0 {
		zap.L().Debug("layer: skipped shapefile records",
			zap.String("layer", l.Name),
			zap.Int("skipped", skipped),
		)
	}

	prj, err := ReadProjection(path)
	if err != nil {
		return nil, err
	}
	l.Projection = prj

	return l, nil
}

// FieldIndex returns the index of the named field (case-insensitive), or -1.
func (l *Layer) FieldIndex(name string) int {
	for i, f := range l.Fields {
		if strings.EqualFold(f, name) {
			return i
		}
	}
	return -1
}

// ReadProjection returns the contents of the .prj file next to a shapefile,
// or "" when there is none.
func ReadProjection(shpPath string) (string, error) {
	prjPath := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	data, err := os.ReadFile(prjPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "layer: read projection %s", prjPath)
	}
	return strings.TrimSpace(string(data)), nil
}

// decode converts legacy Korean DBF text to UTF-8. Values that are already
// valid UTF-8 are returned unchanged.
func decode(s, encoding string) string {
	switch strings.ToLower(encoding) {
	case "euc-kr", "cp949", "uhc":
		if utf8.ValidString(s) {
			return s
		}
		out, err := korean.EUCKR.NewDecoder().String(s)
		if err != nil {
			return strings.ToValidUTF8(s, "")
		}
		return out
	default:
		return s
	}
}

// shapeToPolygon converts a go-shp polygon shape into rings. Other shape types
// yield nil.
func shapeToPolygon(shape shp.Shape) geom.Polygon {
	switch s := shape.(type) {
	case *shp.Polygon:
		return ringsFromParts(s.NumParts, s.Parts, s.Points)
	case *shp.PolygonZ:
		return ringsFromParts(s.NumParts, s.Parts, s.Points)
	case *shp.PolygonM:
		return ringsFromParts(s.NumParts, s.Parts, s.Points)
	default:
		return nil
	}
}

func ringsFromParts(numParts int32, parts []int32, points []shp.Point) geom.Polygon {
	if numParts == 0 || len(points) == 0 {
		return nil
	}

	poly := make(geom.Polygon, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := parts[i]
		var end int32
		if i+1 < numParts {
			end = parts[i+1]
		} else {
			end = int32(len(points))
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			zap.L().Debug("layer: skipping malformed polygon ring", zap.Int32("part", i))
			continue
		}

		ring := make(geom.Path, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, geom.Point{X: points[j].X, Y: points[j].Y})
		}
		poly = append(poly, ring)
	}

	if len(poly) == 0 {
		return nil
	}
	return poly
}
