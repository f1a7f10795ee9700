package geo

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Identity key prefixes, in rule order.
const (
	KeyPrefixID       = "id::"
	KeyPrefixTitle    = "title::"
	KeyPrefixGeometry = "geometry::"
	KeyPrefixFeature  = "feature::"
)

// NormalizeTitle folds a title for identity comparison: compatibility
// normalisation, punctuation and symbols treated as spaces, whitespace runs
// collapsed, lower case.
func NormalizeTitle(title string) string {
	if title == "" {
		return ""
	}

	// Transformers carry state, so the chain is built per call.
	t := transform.Chain(
		norm.NFKC,
		runes.Map(func(r rune) rune {
			if unicode.IsPunct(r) || unicode.IsSymbol(r) {
				return ' '
			}
			return r
		}),
		cases.Lower(language.Und),
	)

	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = strings.ToLower(title)
	}

	return strings.Join(strings.Fields(folded), " ")
}

// FeatureKey computes the deduplication key of a feature. Rules are tried in
// order: area id, normalised title, geometry hash, whole feature hash.
func FeatureKey(f Feature) string {
	props := f.Properties
	iso := props.CountryCode()

	if id := props.ID(); !id.IsNull() {
		return KeyPrefixID + iso + "::" + strings.TrimSpace(id.String())
	}

	if title := NormalizeTitle(props.Title()); title != "" {
		if iso == "" {
			return KeyPrefixTitle + title
		}
		return KeyPrefixTitle + iso + "::" + title
	}

	if f.Geometry != nil {
		return KeyPrefixGeometry + digest(NewGeometryJSON(f.Geometry))
	}

	return KeyPrefixFeature + digest(f)
}

// CanonicalJSON encodes v with object keys in sorted order.
// Structs in this package declare fields alphabetically and maps are sorted by encoding/json.
func CanonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func digest(v any) string {
	data, err := CanonicalJSON(v)
	if err != nil {
		// Non-finite coordinates cannot be encoded; hash the error text so the key stays stable.
		data = []byte(err.Error())
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
