package feature

import (
	"context"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/slopewatch/evac-cli/internal/geo"
)

// ShapefileProvider serves hazardous features from a local shapefile, for
// field deployments with no connectivity to the online feature service.
// The whole file is loaded once; Query then filters by haversine distance.
type ShapefileProvider struct {
	features []Feature
}

// NewShapefileProvider reads point and polygon shapes from path. Polygon
// shapes contribute their bounding-box center, matching how the online
// service reports way/relation centers. The feature kind is taken from a
// "natural", "landuse", or "geological" attribute column when present;
// unrecognized rows default to geological hazards so they still exclude
// candidates.
func NewShapefileProvider(path string) (*ShapefileProvider, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer r.Close() //nolint:errcheck

	fields := r.Fields()
	kindColumns := make(map[int]string)
	for i, f := range fields {
		name := strings.ToLower(strings.TrimRight(string(f.Name[:]), "\x00"))
		switch name {
		case "natural", "landuse", "geological":
			kindColumns[i] = name
		}
	}

	var features []Feature
	row := 0
	for r.Next() {
		_, shape := r.Shape()

		var loc geo.Point
		switch s := shape.(type) {
		case *shp.Point:
			loc = geo.Point{Lat: s.Y, Lng: s.X}
		case *shp.Polygon:
			box := s.BBox()
			loc = geo.Point{
				Lat: (box.MinY + box.MaxY) / 2,
				Lng: (box.MinX + box.MaxX) / 2,
			}
		case *shp.PolyLine:
			box := s.BBox()
			loc = geo.Point{
				Lat: (box.MinY + box.MaxY) / 2,
				Lng: (box.MinX + box.MaxX) / 2,
			}
		default:
			row++
			continue
		}

		if loc.Validate() != nil {
			row++
			continue
		}

		features = append(features, Feature{
			Location: loc,
			Kind:     attributeKind(r, row, kindColumns),
		})
		row++
	}

	zap.L().Info("loaded offline feature shapefile",
		zap.String("path", path),
		zap.Int("features", len(features)),
	)
	return &ShapefileProvider{features: features}, nil
}

func attributeKind(r *shp.Reader, row int, kindColumns map[int]string) Kind {
	for col, column := range kindColumns {
		value := strings.ToLower(strings.TrimSpace(r.ReadAttribute(row, col)))
		switch {
		case column == "natural" && value == "water":
			return KindWater
		case column == "natural" && value == "cliff":
			return KindCliff
		case column == "landuse" && value == "quarry":
			return KindQuarry
		case column == "geological" && value != "":
			return KindGeologicalHazard
		}
	}
	return KindGeologicalHazard
}

// Query returns loaded features within radiusKm of center.
func (p *ShapefileProvider) Query(ctx context.Context, center geo.Point, radiusKm float64) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Feature
	for _, f := range p.features {
		if geo.DistanceKm(center, f.Location) <= radiusKm {
			out = append(out, f)
		}
	}
	return out, nil
}

// Len returns the number of loaded features.
func (p *ShapefileProvider) Len() int {
	return len(p.features)
}
