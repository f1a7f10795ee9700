package geo

import "strings"

// Recognised property names attached to published features.
const (
	PropID        = "id"
	PropTitle     = "title"
	PropISO3      = "iso3"
	PropCountry   = "country"
	PropYear      = "year"
	PropColor     = "color"
	PropFrom      = "from"
	PropTo        = "to"
	PropUpdatedAt = "updated_at"
)

// Properties is a feature's property bag. Keys without a named accessor
// pass through encoding untouched.
type Properties map[string]Value

// Get returns the value stored under key, or null.
func (p Properties) Get(key string) Value {
	if p == nil {
		return Value{}
	}
	return p[key]
}

// Has reports whether key holds a non-null value.
func (p Properties) Has(key string) bool {
	return !p.Get(key).IsNull()
}

// Clone returns an independent copy of p. Values are immutable and shared.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ID returns the external area identifier.
func (p Properties) ID() Value { return p.Get(PropID) }

// Title returns the human readable area title.
func (p Properties) Title() string { return p.Get(PropTitle).String() }

// Color returns the classification colour code.
func (p Properties) Color() Value { return p.Get(PropColor) }

// From returns the start of the validity window.
func (p Properties) From() Value { return p.Get(PropFrom) }

// To returns the end of the validity window.
func (p Properties) To() Value { return p.Get(PropTo) }

// UpdatedAt returns the last update timestamp.
func (p Properties) UpdatedAt() Value { return p.Get(PropUpdatedAt) }

// Year returns the integral assessment year.
func (p Properties) Year() (int, bool) { return p.Get(PropYear).Int() }

// CountryCode returns the trimmed, lower-cased iso3 property, falling back to country.
func (p Properties) CountryCode() string {
	v := p.Get(PropISO3)
	if !v.Truthy() {
		v = p.Get(PropCountry)
	}
	if !v.Truthy() {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(v.String()))
}
