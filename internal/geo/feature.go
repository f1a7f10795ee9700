package geo

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
)

// RawFeature is an upstream feature before geometry normalisation.
// Geometry is kept as undecoded JSON because upstream payloads are not trusted to be well formed.
type RawFeature struct {
	Geometry   json.RawMessage `json:"geometry"`
	Properties Properties      `json:"properties"`
}

// Feature is a normalised feature. Geometry is nil, orb.Polygon or orb.MultiPolygon.
type Feature struct {
	Geometry   orb.Geometry
	Properties Properties
}

// Clone returns a deep copy of f.
func (f Feature) Clone() Feature {
	return Feature{
		Geometry:   CloneGeometry(f.Geometry),
		Properties: f.Properties.Clone(),
	}
}

// CloneGeometry deep copies a polygonal geometry. Other geometry types are returned as is.
func CloneGeometry(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Polygon:
		return v.Clone()
	case orb.MultiPolygon:
		return v.Clone()
	default:
		return g
	}
}

// GeometryJSON is the GeoJSON object for a polygonal geometry.
type GeometryJSON struct {
	Coordinates orb.Geometry `json:"coordinates"`
	Type        string       `json:"type"`
}

// NewGeometryJSON wraps g for encoding. It returns nil for a nil geometry.
func NewGeometryJSON(g orb.Geometry) *GeometryJSON {
	if g == nil {
		return nil
	}
	return &GeometryJSON{Type: g.GeoJSONType(), Coordinates: g}
}

type featureJSON struct {
	Geometry   *GeometryJSON `json:"geometry"`
	Properties Properties    `json:"properties"`
	Type       string        `json:"type"`
}

// MarshalJSON encodes f as a GeoJSON feature.
func (f Feature) MarshalJSON() ([]byte, error) {
	props := f.Properties
	if props == nil {
		props = Properties{}
	}
	return json.Marshal(featureJSON{
		Type:       "Feature",
		Geometry:   NewGeometryJSON(f.Geometry),
		Properties: props,
	})
}

// FeatureCollection is a GeoJSON feature collection of normalised features.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection wraps features in a collection.
func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

// DecodeRawFeatures parses a GeoJSON FeatureCollection. Entries that are not
// feature objects are skipped; only a malformed envelope is an error.
func DecodeRawFeatures(data []byte) ([]RawFeature, error) {
	var envelope struct {
		Features json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	var entries []json.RawMessage
	if len(envelope.Features) == 0 || json.Unmarshal(envelope.Features, &entries) != nil {
		return nil, nil
	}

	features := make([]RawFeature, 0, len(entries))
	for _, entry := range entries {
		if !isObject(entry) {
			continue
		}

		var rf RawFeature
		if err := json.Unmarshal(entry, &rf); err != nil {
			continue
		}
		features = append(features, rf)
	}

	return features, nil
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
