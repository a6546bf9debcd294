// Package zones loads geographic zones from shapefiles and derives the
// interzonal distance matrix used as the gravity-model cost variable.
package zones

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/urban-analytics/simflow/internal/model"
)

// ShapefileOptions selects the attribute fields holding zone identifiers.
type ShapefileOptions struct {
	CodeField string // e.g. "GEOID"
	NameField string // e.g. "NAME"
}

// ReadShapefile loads zones from a shapefile. Point features use their
// coordinates directly; polygon features use the area-weighted centroid.
// Features without a usable geometry or code are skipped.
func ReadShapefile(path string, opts ShapefileOptions) ([]model.Zone, error) {
	if opts.CodeField == "" {
		return nil, eris.New("zones: code field is required")
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zones: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	codeIdx := fieldIndex(reader, opts.CodeField)
	if codeIdx < 0 {
		return nil, eris.Errorf("zones: field %s not found in shapefile", opts.CodeField)
	}
	nameIdx := -1
	if opts.NameField != "" {
		nameIdx = fieldIndex(reader, opts.NameField)
	}

	var out []model.Zone
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		code := strings.TrimSpace(strings.TrimRight(reader.Attribute(codeIdx), "\x00"))
		if code == "" {
			skipped++
			continue
		}

		g := toGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		lon, lat, ok := centroid(g)
		if !ok {
			skipped++
			continue
		}

		wkb, err := ewkb.Marshal(g, ewkb.NDR)
		if err != nil {
			return nil, eris.Wrapf(err, "zones: encode geometry for %s", code)
		}

		z := model.Zone{Code: code, Lon: lon, Lat: lat, Geom: wkb}
		if nameIdx >= 0 {
			z.Name = strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		}
		out = append(out, z)
	}

	if skipped > 0 {
		zap.L().Debug("zones: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	if len(out) == 0 {
		return nil, eris.Errorf("zones: no usable features in %s", path)
	}
	return out, nil
}

func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		fname := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(fname, name) {
			return i
		}
	}
	return -1
}

// toGeom converts a go-shp shape to a go-geom geometry with SRID 4326.
func toGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.Polygon:
		return polygonToMultiPolygon(s)
	default:
		return nil
	}
}

// polygonToMultiPolygon converts a shapefile Polygon to a
// geom.MultiPolygon, treating each part as a separate single-ring polygon.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 3 {
			continue
		}

		coords := make([]geom.Coord, 0, end-start)
		for _, pt := range p.Points[start:end] {
			coords = append(coords, geom.Coord{pt.X, pt.Y})
		}

		poly := geom.NewPolygon(geom.XY)
		if _, err := poly.SetCoords([][]geom.Coord{coords}); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// centroid returns the representative point: the point itself, or the
// shoelace-weighted centroid of the largest-area polygon ring.
func centroid(g geom.T) (lon, lat float64, ok bool) {
	switch t := g.(type) {
	case *geom.Point:
		return t.X(), t.Y(), true
	case *geom.MultiPolygon:
		var bestArea float64
		var found bool
		for i := 0; i < t.NumPolygons(); i++ {
			ring := t.Polygon(i).LinearRing(0).FlatCoords()
			cx, cy, area := ringCentroid(ring)
			if area > bestArea {
				bestArea = area
				lon, lat = cx, cy
				found = true
			}
		}
		return lon, lat, found
	}
	return 0, 0, false
}

// ringCentroid computes the shoelace centroid and absolute area of a flat
// XY coordinate ring.
func ringCentroid(flat []float64) (cx, cy, area float64) {
	n := len(flat) / 2
	if n < 3 {
		return 0, 0, 0
	}
	var a, sx, sy float64
	for i := 0; i < n; i++ {
		x0, y0 := flat[2*i], flat[2*i+1]
		j := (i + 1) % n
		x1, y1 := flat[2*j], flat[2*j+1]
		cross := x0*y1 - x1*y0
		a += cross
		sx += (x0 + x1) * cross
		sy += (y0 + y1) * cross
	}
	if a == 0 {
		return 0, 0, 0
	}
	cx = sx / (3 * a)
	cy = sy / (3 * a)
	if a < 0 {
		a = -a
	}
	return cx, cy, a / 2
}
