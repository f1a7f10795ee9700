package topology

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	mjson "github.com/tdewolff/minify/v2/json"
	"github.com/tidwall/gjson"

	"github.com/woozymasta/ipcareas/internal/geo"
)

const mediaType = "application/json"

var minifier = newMinifier()

func newMinifier() *minify.M {
	m := minify.New()
	// numbers are kept verbatim so consumers never see shortened forms like .5
	m.Add(mediaType, &mjson.Minifier{KeepNumbers: true})
	return m
}

// Decode parses a TopoJSON document.
func Decode(data []byte) (*Topology, error) {
	var t Topology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode topology: %w", err)
	}
	if t.Type != typeTopology {
		return nil, fmt.Errorf("decode topology: unexpected type %q", t.Type)
	}
	return &t, nil
}

// Read loads a TopoJSON file.
func Read(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	t, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadFeatures reads the features stored in a TopoJSON file.
func LoadFeatures(path string) ([]geo.Feature, error) {
	t, err := Read(path)
	if err != nil {
		return nil, err
	}
	return t.Features(), nil
}

// Marshal encodes t as compact JSON.
func Marshal(t *Topology) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode topology: %w", err)
	}

	out, err := minifier.Bytes(mediaType, data)
	if err != nil {
		return nil, fmt.Errorf("minify topology: %w", err)
	}
	return out, nil
}

// Write stores t at path, creating parent directories.
func Write(path string, t *Topology) error {
	data, err := Marshal(t)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Save encodes features and writes them to path.
func Save(path string, features []geo.Feature) error {
	return Write(path, Encode(features))
}

// InferFeatureCount returns the number of geometries of the first object in a
// TopoJSON file, in document order. Unreadable files and objects without a
// geometries list report false.
func InferFeatureCount(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil || !gjson.ValidBytes(data) {
		return 0, false
	}

	objects := gjson.GetBytes(data, "objects")
	if !objects.IsObject() {
		return 0, false
	}

	var first gjson.Result
	objects.ForEach(func(_, value gjson.Result) bool {
		first = value
		return false
	})

	geoms := first.Get("geometries")
	if !geoms.IsArray() {
		return 0, false
	}
	return len(geoms.Array()), true
}

// DisplayPath renders path relative to root with forward slashes. Paths
// outside root, or any path when root is empty, are returned as given.
func DisplayPath(path, root string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
