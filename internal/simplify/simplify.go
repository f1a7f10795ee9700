// Package simplify reduces polygon detail and coordinate precision of stored
// datasets. Features that cannot be simplified keep their original shape and
// are reported with a reason.
package simplify

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbsimplify "github.com/paulmach/orb/simplify"

	"github.com/woozymasta/ipcareas/internal/geo"
)

// Reason explains why a geometry was kept unsimplified.
type Reason string

const (
	ReasonDependencyMissing   Reason = "dependency_missing"
	ReasonInvalidGeometry     Reason = "invalid_geometry"
	ReasonSimplificationError Reason = "simplification_error"
	ReasonEmptyGeometry       Reason = "empty_geometry"
	ReasonNoChange            Reason = "no_change"
	ReasonComparisonFailed    Reason = "comparison_failed"
)

// Failure is a structured simplification failure.
type Failure struct {
	Reason Reason
	Detail string
}

// Algorithm simplifies a geometry. Implementations may modify their input.
type Algorithm interface {
	Simplify(g orb.Geometry) orb.Geometry
}

// minRing is the smallest number of positions of a closed ring.
const minRing = 4

// Simplifier applies an Algorithm at a tolerance and rounds coordinates.
type Simplifier struct {
	// Algorithm is required whenever Tolerance is positive.
	Algorithm Algorithm
	Tolerance float64
	Precision int
}

// New returns a Douglas-Peucker simplifier.
func New(tolerance float64, precision int) *Simplifier {
	return &Simplifier{
		Algorithm: orbsimplify.DouglasPeucker(tolerance),
		Tolerance: tolerance,
		Precision: precision,
	}
}

// Geometry simplifies a polygonal geometry. On failure the input is returned
// unchanged together with the reason. A non-positive tolerance is a no-op.
func (s *Simplifier) Geometry(g orb.Geometry) (orb.Geometry, *Failure) {
	if s.Tolerance <= 0 {
		return g, nil
	}
	if s.Algorithm == nil {
		return g, &Failure{Reason: ReasonDependencyMissing, Detail: "no simplification algorithm configured"}
	}
	if err := validate(g); err != nil {
		return g, &Failure{Reason: ReasonInvalidGeometry, Detail: err.Error()}
	}

	simplified, err := s.run(geo.CloneGeometry(g))
	if err != nil {
		return g, &Failure{Reason: ReasonSimplificationError, Detail: err.Error()}
	}

	simplified = prune(simplified)
	if simplified == nil {
		return g, &Failure{Reason: ReasonEmptyGeometry, Detail: "simplification produced an empty geometry"}
	}

	same, err := equal(simplified, g)
	if err != nil {
		return g, &Failure{Reason: ReasonComparisonFailed, Detail: err.Error()}
	}
	if same {
		return g, &Failure{Reason: ReasonNoChange, Detail: "simplified geometry matches original"}
	}

	return simplified, nil
}

func (s *Simplifier) run(g orb.Geometry) (out orb.Geometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simplify: %v", r)
		}
	}()
	return s.Algorithm.Simplify(g), nil
}

// Features simplifies and rounds copies of features. Features without
// geometry pass through. Failures are described relative to source.
func (s *Simplifier) Features(features []geo.Feature, source string) ([]geo.Feature, []Item) {
	out := make([]geo.Feature, 0, len(features))
	var items []Item

	for _, f := range features {
		c := f.Clone()
		if c.Geometry != nil {
			g, failure := s.Geometry(c.Geometry)
			if failure != nil {
				items = append(items, newItem(f.Properties, *failure, source))
			}
			c.Geometry = Round(g, s.Precision)
		}
		out = append(out, c)
	}

	return out, items
}

func validate(g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Polygon:
		return validatePolygon(v)
	case orb.MultiPolygon:
		if len(v) == 0 {
			return errors.New("multipolygon has no parts")
		}
		for _, p := range v {
			if err := validatePolygon(p); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return errors.New("geometry is null")
	default:
		return fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return errors.New("polygon has no rings")
	}
	for _, r := range p {
		// Open rings are closed implicitly.
		n := len(r)
		if n > 1 && r[0] != r[n-1] {
			n++
		}
		if n < minRing {
			return fmt.Errorf("ring requires at least %d coordinates, got %d", minRing, len(r))
		}
		for _, pt := range r {
			if !finite(pt[0]) || !finite(pt[1]) {
				return errors.New("ring has a non-finite coordinate")
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// prune drops collapsed rings and polygons. Nil means nothing survived.
func prune(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Polygon:
		if p := prunePolygon(v); p != nil {
			return p
		}
	case orb.MultiPolygon:
		var out orb.MultiPolygon
		for _, p := range v {
			if q := prunePolygon(p); q != nil {
				out = append(out, q)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func prunePolygon(p orb.Polygon) orb.Polygon {
	if len(p) == 0 || len(p[0]) < minRing {
		return nil
	}
	out := orb.Polygon{p[0]}
	for _, r := range p[1:] {
		if len(r) >= minRing {
			out = append(out, r)
		}
	}
	return out
}

func equal(a, b orb.Geometry) (bool, error) {
	switch x := a.(type) {
	case orb.Polygon:
		if y, ok := b.(orb.Polygon); ok {
			return x.Equal(y), nil
		}
	case orb.MultiPolygon:
		if y, ok := b.(orb.MultiPolygon); ok {
			return x.Equal(y), nil
		}
	}
	return false, fmt.Errorf("cannot compare %s with %s", a.GeoJSONType(), b.GeoJSONType())
}

// Round returns a copy of g with coordinates rounded to precision decimal places.
func Round(g orb.Geometry, precision int) orb.Geometry {
	scale := math.Pow(10, float64(precision))
	round := func(r orb.Ring) {
		for i := range r {
			r[i] = orb.Point{math.Round(r[i][0]*scale) / scale, math.Round(r[i][1]*scale) / scale}
		}
	}

	switch v := geo.CloneGeometry(g).(type) {
	case orb.Polygon:
		for _, r := range v {
			round(r)
		}
		return v
	case orb.MultiPolygon:
		for _, p := range v {
			for _, r := range p {
				round(r)
			}
		}
		return v
	default:
		return g
	}
}
