package geo

import (
	"encoding/json"

	"github.com/paulmach/orb"
)

type rawGeometry struct {
	Type        string            `json:"type"`
	Coordinates json.RawMessage   `json:"coordinates"`
	Geometries  []json.RawMessage `json:"geometries"`
}

// NormalizePolygonal reduces an upstream GeoJSON geometry to an orb.Polygon or
// orb.MultiPolygon. Anything without polygonal content yields nil.
//
// Geometry collections are flattened: a single surviving polygon stays a Polygon,
// several polygons or any multipolygon member become one MultiPolygon whose parts
// keep input order.
func NormalizePolygonal(data json.RawMessage) orb.Geometry {
	if !isObject(data) {
		return nil
	}

	var raw rawGeometry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	switch raw.Type {
	case "Polygon":
		poly, ok := decodePolygon(raw.Coordinates)
		if !ok {
			return nil
		}
		return poly

	case "MultiPolygon":
		multi, ok := decodeMultiPolygon(raw.Coordinates)
		if !ok {
			return nil
		}
		return multi

	case "GeometryCollection":
		var parts orb.MultiPolygon
		multi := false

		for _, child := range raw.Geometries {
			switch g := NormalizePolygonal(child).(type) {
			case orb.Polygon:
				parts = append(parts, g)
			case orb.MultiPolygon:
				multi = true
				parts = append(parts, g...)
			}
		}

		switch {
		case len(parts) == 0:
			return nil
		case multi || len(parts) > 1:
			return parts
		default:
			return parts[0]
		}

	default:
		return nil
	}
}

func decodePolygon(data json.RawMessage) (orb.Polygon, bool) {
	var coords [][][]float64
	if len(data) == 0 || json.Unmarshal(data, &coords) != nil || len(coords) == 0 {
		return nil, false
	}
	return toPolygon(coords)
}

func decodeMultiPolygon(data json.RawMessage) (orb.MultiPolygon, bool) {
	var coords [][][][]float64
	if len(data) == 0 || json.Unmarshal(data, &coords) != nil || len(coords) == 0 {
		return nil, false
	}

	multi := make(orb.MultiPolygon, 0, len(coords))
	for _, part := range coords {
		poly, ok := toPolygon(part)
		if !ok {
			return nil, false
		}
		multi = append(multi, poly)
	}
	return multi, true
}

func toPolygon(coords [][][]float64) (orb.Polygon, bool) {
	poly := make(orb.Polygon, 0, len(coords))
	for _, ring := range coords {
		r := make(orb.Ring, 0, len(ring))
		for _, pt := range ring {
			// extra ordinates (elevation) are dropped
			if len(pt) < 2 {
				return nil, false
			}
			r = append(r, orb.Point{pt[0], pt[1]})
		}
		poly = append(poly, r)
	}
	return poly, true
}
