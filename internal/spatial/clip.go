package spatial

import (
	"errors"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/landcover/internal/layer"
)

var (
	// ErrEmptyLayer is returned when a land-cover layer has no polygons.
	ErrEmptyLayer = errors.New("spatial: layer has no polygon features")
	// ErrEmptyIntersection is returned when no land-cover polygon overlaps any district.
	ErrEmptyIntersection = errors.New("spatial: intersection is empty")
	// ErrMissingDistrictField is returned when the boundary layer lacks the district field.
	ErrMissingDistrictField = errors.New("spatial: boundary layer has no district field")
)

// District is one administrative boundary polygon.
type District struct {
	Name     string
	Geometry geom.Polygon
}

// indexed is a district stored in the R-tree with its position in the layer.
type indexed struct {
	geom.Polygon
	pos int
}

// Boundaries is the administrative-boundary reference layer, made valid and
// indexed for candidate lookup. It is read-only after construction and safe
// for concurrent use.
type Boundaries struct {
	Districts  []District
	Projection string
	tree       *rtree.Rtree
}

// NewBoundaries makes every boundary geometry valid and indexes it. Features
// whose geometry is empty after repair are dropped with a warning.
func NewBoundaries(l *layer.Layer, districtField string) (*Boundaries, error) {
	idx := l.FieldIndex(districtField)
	if idx < 0 {
		return nil, eris.Wrapf(ErrMissingDistrictField, "field %s in %s", districtField, l.Name)
	}

	log := zap.L().With(zap.String("component", "spatial.boundaries"), zap.String("layer", l.Name))

	b := &Boundaries{
		Projection: l.Projection,
		tree:       rtree.NewTree(25, 50),
	}
	var repaired int
	for i, f := range l.Features {
		name := f.Attrs[idx]
		if !IsValid(f.Geometry) {
			repaired++
		}
		g := MakeValid(f.Geometry)
		if len(g) == 0 {
			log.Warn("dropping empty boundary geometry", zap.Int("feature", i), zap.String("district", name))
			continue
		}
		b.Districts = append(b.Districts, District{Name: name, Geometry: g})
		b.tree.Insert(&indexed{Polygon: g, pos: len(b.Districts) - 1})
	}

	if len(b.Districts) == 0 {
		return nil, eris.Errorf("spatial: boundary layer %s has no usable geometry", l.Name)
	}

	log.Info("boundaries loaded",
		zap.Int("districts", len(b.Districts)),
		zap.Int("repaired", repaired),
	)
	return b, nil
}

// Parcel is a land-cover polygon clipped to a single district.
type Parcel struct {
	Geometry geom.Polygon
	Attrs    []string
	District string
	Area     float64
	// Feature is the index of the source feature in its layer.
	Feature int
}

// Clip intersects every feature of l with every district it overlaps and
// recomputes the planar area of each piece. l must already be in the
// boundary projection. Output order is source feature order, then district
// order.
func (b *Boundaries) Clip(l *layer.Layer) ([]Parcel, error) {
	if len(l.Features) == 0 {
		return nil, eris.Wrapf(ErrEmptyLayer, "layer %s", l.Name)
	}

	var parcels []Parcel
	var invalid int
	for i, f := range l.Features {
		g := MakeValid(f.Geometry)
		if len(g) == 0 {
			invalid++
			continue
		}

		candidates := b.tree.SearchIntersect(g.Bounds())
		positions := make([]int, 0, len(candidates))
		for _, c := range candidates {
			positions = append(positions, c.(*indexed).pos)
		}
		sort.Ints(positions)

		for _, pos := range positions {
			d := b.Districts[pos]
			piece, ok := g.Intersection(d.Geometry).(geom.Polygon)
			if !ok || len(piece) == 0 {
				continue
			}
			area := piece.Area()
			if area <= areaEpsilon {
				continue
			}
			parcels = append(parcels, Parcel{
				Geometry: piece,
				Attrs:    f.Attrs,
				District: d.Name,
				Area:     area,
				Feature:  i,
			})
		}
	}

	if invalid > 0 {
		zap.L().Debug("spatial: dropped empty land-cover geometries",
			zap.String("layer", l.Name),
			zap.Int("dropped", invalid),
		)
	}
	if len(parcels) == 0 {
		return nil, eris.Wrapf(ErrEmptyIntersection, "layer %s", l.Name)
	}
	return parcels, nil
}

// ParcelLayer builds the clipped output layer: the source schema with
// character fields widened, the area field rewritten with recomputed areas,
// and the district field set from the boundary each piece fell inside.
func ParcelLayer(src *layer.Layer, parcels []Parcel, districtField, areaField string) *layer.Layer {
	out := &layer.Layer{Name: src.Name, Projection: src.Projection}

	var keep []int
	districtPos := -1
	for i, name := range src.Fields {
		if strings.EqualFold(name, areaField) {
			continue
		}
		if strings.EqualFold(name, districtField) {
			districtPos = len(out.Fields)
		}
		keep = append(keep, i)
		out.Fields = append(out.Fields, name)
		out.Schema = append(out.Schema, layer.WidenForUTF8(src.Schema[i]))
	}
	if districtPos < 0 {
		districtPos = len(out.Fields)
		out.Fields = append(out.Fields, districtField)
		out.Schema = append(out.Schema, layer.StringField(districtField, 80))
	}
	out.Fields = append(out.Fields, areaField)
	out.Schema = append(out.Schema, layer.FloatField(areaField))

	out.Features = make([]layer.Feature, 0, len(parcels))
	for _, p := range parcels {
		attrs := make([]string, len(out.Fields))
		for j, i := range keep {
			if i < len(p.Attrs) {
				attrs[j] = p.Attrs[i]
			}
		}
		attrs[districtPos] = p.District
		attrs[len(attrs)-1] = formatArea(p.Area)
		out.Features = append(out.Features, layer.Feature{Geometry: p.Geometry, Attrs: attrs})
	}
	return out
}
