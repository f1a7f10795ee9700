// Package topology converts normalised features to and from TopoJSON.
//
// Encoded topologies hold a single GeometryCollection object named "data" with
// one arc per distinct ring and no quantisation. Decoding additionally accepts
// quantised, delta-encoded arcs, reversed arc references and nested collections.
package topology

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/woozymasta/ipcareas/internal/geo"
)

// ObjectName is the name of the object written by Encode.
const ObjectName = "data"

const (
	typeTopology           = "Topology"
	typePolygon            = "Polygon"
	typeMultiPolygon       = "MultiPolygon"
	typeGeometryCollection = "GeometryCollection"
)

// Topology is a TopoJSON document.
type Topology struct {
	Arcs      [][][]float64     `json:"arcs"`
	Bbox      []float64         `json:"bbox,omitempty"`
	Objects   map[string]Object `json:"objects"`
	Transform *Transform        `json:"transform,omitempty"`
	Type      string            `json:"type"`
}

// Transform dequantises arc positions.
type Transform struct {
	Scale     [2]float64 `json:"scale"`
	Translate [2]float64 `json:"translate"`
}

// Object is a TopoJSON geometry object. An empty Type is a null geometry.
type Object struct {
	Arcs       json.RawMessage `json:"arcs,omitempty"`
	Geometries []Object        `json:"geometries,omitempty"`
	Properties geo.Properties  `json:"properties,omitempty"`
	Type       string          `json:"type"`
}

type objectJSON struct {
	Arcs       json.RawMessage `json:"arcs,omitempty"`
	Geometries *[]Object       `json:"geometries,omitempty"`
	Properties geo.Properties  `json:"properties,omitempty"`
	Type       *string         `json:"type"`
}

// MarshalJSON writes a null type for null geometries and always writes the
// geometries of a collection.
func (o Object) MarshalJSON() ([]byte, error) {
	out := objectJSON{Arcs: o.Arcs, Properties: o.Properties}
	if o.Type != "" {
		out.Type = &o.Type
	}
	if o.Type == typeGeometryCollection {
		geoms := o.Geometries
		if geoms == nil {
			geoms = []Object{}
		}
		out.Geometries = &geoms
	}
	return json.Marshal(out)
}

// Encode builds a topology from features. Properties are carried over as is.
func Encode(features []geo.Feature) *Topology {
	enc := encoder{index: make(map[string]int)}

	geoms := make([]Object, 0, len(features))
	for _, f := range features {
		obj := Object{Properties: f.Properties}

		switch g := f.Geometry.(type) {
		case orb.Polygon:
			obj.Type = typePolygon
			obj.Arcs = rawArcs(enc.polygon(g))
		case orb.MultiPolygon:
			refs := make([][][]int, 0, len(g))
			for _, p := range g {
				refs = append(refs, enc.polygon(p))
			}
			obj.Type = typeMultiPolygon
			obj.Arcs = rawArcs(refs)
		}

		geoms = append(geoms, obj)
	}

	arcs := enc.arcs
	if arcs == nil {
		arcs = [][][]float64{}
	}

	return &Topology{
		Type: typeTopology,
		Objects: map[string]Object{
			ObjectName: {Type: typeGeometryCollection, Geometries: geoms},
		},
		Arcs: arcs,
	}
}

type encoder struct {
	arcs  [][][]float64
	index map[string]int
}

func (e *encoder) polygon(p orb.Polygon) [][]int {
	refs := make([][]int, 0, len(p))
	for _, r := range p {
		refs = append(refs, []int{e.ring(r)})
	}
	return refs
}

// ring returns the arc index for r, reusing the arc of an identical ring.
func (e *encoder) ring(r orb.Ring) int {
	key := ringKey(r)
	if i, ok := e.index[key]; ok {
		return i
	}

	arc := make([][]float64, 0, len(r))
	for _, p := range r {
		arc = append(arc, []float64{p[0], p[1]})
	}

	e.arcs = append(e.arcs, arc)
	e.index[key] = len(e.arcs) - 1
	return len(e.arcs) - 1
}

func ringKey(r orb.Ring) string {
	var b strings.Builder
	for _, p := range r {
		b.WriteString(strconv.FormatFloat(p[0], 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p[1], 'g', -1, 64))
		b.WriteByte(';')
	}
	return b.String()
}

func rawArcs(v any) json.RawMessage {
	// slices of ints always encode
	data, _ := json.Marshal(v)
	return data
}

// Round rounds every arc position to precision decimal places.
func (t *Topology) Round(precision int) {
	scale := math.Pow(10, float64(precision))
	for _, arc := range t.Arcs {
		for _, pos := range arc {
			for i, v := range pos {
				pos[i] = math.Round(v*scale) / scale
			}
		}
	}
}

// Collection returns the object features are read from: "data" when present,
// otherwise the object with the lexically smallest name.
func (t *Topology) Collection() (Object, bool) {
	if obj, ok := t.Objects[ObjectName]; ok {
		return obj, true
	}
	if len(t.Objects) == 0 {
		return Object{}, false
	}

	names := make([]string, 0, len(t.Objects))
	for name := range t.Objects {
		names = append(names, name)
	}
	slices.Sort(names)
	return t.Objects[names[0]], true
}

// Features decodes the collection object into features. Members of a
// GeometryCollection object become one feature each; any other object is a
// single feature. Geometry without polygonal content decodes to nil.
func (t *Topology) Features() []geo.Feature {
	obj, ok := t.Collection()
	if !ok {
		return nil
	}

	dec := decoder{arcs: t.positions()}

	members := []Object{obj}
	if obj.Type == typeGeometryCollection {
		members = obj.Geometries
	}

	features := make([]geo.Feature, 0, len(members))
	for _, m := range members {
		props := m.Properties
		if props == nil {
			props = geo.Properties{}
		}
		features = append(features, geo.Feature{
			Geometry:   dec.geometry(m),
			Properties: props,
		})
	}
	return features
}

// positions returns absolute arc positions, undoing quantisation when a transform is set.
func (t *Topology) positions() [][]orb.Point {
	out := make([][]orb.Point, len(t.Arcs))
	for i, arc := range t.Arcs {
		pts := make([]orb.Point, 0, len(arc))
		var x, y float64
		for _, pos := range arc {
			if len(pos) < 2 {
				continue
			}
			if t.Transform == nil {
				pts = append(pts, orb.Point{pos[0], pos[1]})
				continue
			}
			x += pos[0]
			y += pos[1]
			pts = append(pts, orb.Point{
				x*t.Transform.Scale[0] + t.Transform.Translate[0],
				y*t.Transform.Scale[1] + t.Transform.Translate[1],
			})
		}
		out[i] = pts
	}
	return out
}

type decoder struct {
	arcs [][]orb.Point
}

func (d decoder) geometry(obj Object) orb.Geometry {
	switch obj.Type {
	case typePolygon:
		var refs [][]int
		if json.Unmarshal(obj.Arcs, &refs) != nil {
			return nil
		}
		if p := d.polygon(refs); p != nil {
			return p
		}
		return nil

	case typeMultiPolygon:
		var refs [][][]int
		if json.Unmarshal(obj.Arcs, &refs) != nil {
			return nil
		}
		var multi orb.MultiPolygon
		for _, r := range refs {
			if p := d.polygon(r); p != nil {
				multi = append(multi, p)
			}
		}
		if len(multi) == 0 {
			return nil
		}
		return multi

	case typeGeometryCollection:
		var parts orb.MultiPolygon
		multi := false
		for _, child := range obj.Geometries {
			switch g := d.geometry(child).(type) {
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

func (d decoder) polygon(refs [][]int) orb.Polygon {
	var p orb.Polygon
	for _, ring := range refs {
		r, ok := d.ring(ring)
		if !ok {
			return nil
		}
		p = append(p, r)
	}
	return p
}

// ring stitches arcs together; consecutive arcs share their joining position.
// A negative index ~i references arc i reversed.
func (d decoder) ring(refs []int) (orb.Ring, bool) {
	var r orb.Ring
	for k, idx := range refs {
		reversed := idx < 0
		if reversed {
			idx = ^idx
		}
		if idx >= len(d.arcs) {
			return nil, false
		}

		pts := slices.Clone(d.arcs[idx])
		if reversed {
			slices.Reverse(pts)
		}
		if k > 0 && len(pts) > 0 {
			pts = pts[1:]
		}
		r = append(r, pts...)
	}
	return r, len(r) > 0
}
