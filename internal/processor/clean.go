package processor

import (
	"strings"

	"github.com/woozymasta/ipcareas/internal/analysis"
	"github.com/woozymasta/ipcareas/internal/countries"
	"github.com/woozymasta/ipcareas/internal/dates"
	"github.com/woozymasta/ipcareas/internal/geo"
)

// clean turns the selected raw features of a year into publishable features:
// polygonal geometry only, no repeated geometry or area id, and a fixed set
// of attributes.
func (d *Downloader) clean(raw []geo.RawFeature, c countries.Country, year int) []geo.Feature {
	var (
		out          []geo.Feature
		seenGeometry = make(map[string]struct{})
		seenIDs      = make(map[string]struct{})
	)

	for _, rf := range raw {
		g := geo.NormalizePolygonal(rf.Geometry)
		if g == nil {
			continue
		}

		canonical, err := geo.CanonicalJSON(geo.NewGeometryJSON(g))
		if err != nil {
			continue
		}
		gkey := string(canonical)
		if _, dup := seenGeometry[gkey]; dup {
			continue
		}

		var idKey string
		if id := rf.Properties.ID(); !id.IsNull() {
			idKey = strings.TrimSpace(id.String())
		}
		if idKey != "" {
			if _, dup := seenIDs[idKey]; dup {
				continue
			}
			seenIDs[idKey] = struct{}{}
		}
		seenGeometry[gkey] = struct{}{}

		out = append(out, geo.Feature{
			Geometry:   g,
			Properties: d.attributes(rf.Properties, c, year),
		})
	}

	return out
}

// attributes builds the published property set of a downloaded feature.
func (d *Downloader) attributes(props geo.Properties, c countries.Country, year int) geo.Properties {
	title := props.Get(geo.PropTitle)
	if !title.Truthy() {
		title = geo.String("")
	}

	yearValue := props.Get(geo.PropYear)
	if !yearValue.Truthy() {
		yearValue = geo.Int(year)
	}

	attrs := geo.Properties{
		geo.PropCountry: geo.String(d.normalizeISO3(props, c)),
		geo.PropTitle:   title,
		geo.PropColor:   props.Color(),
		geo.PropYear:    yearValue,
	}

	if id := props.ID(); !id.IsNull() {
		attrs[geo.PropID] = id
	}
	if v, ok := dates.FirstPresent(props, dates.FromKeys); ok {
		attrs[geo.PropFrom] = v
	}
	if v, ok := dates.FirstPresent(props, dates.ToKeys); ok {
		attrs[geo.PropTo] = v
	}

	return attrs
}

// normalizeISO3 resolves the ISO3 code of a feature: its own iso3 property,
// a three letter country property, a two letter one mapped through the run's
// country table, else the country being processed.
func (d *Downloader) normalizeISO3(props geo.Properties, c countries.Country) string {
	if iso3 := textProp(props, geo.PropISO3); len(iso3) == 3 {
		return strings.ToUpper(iso3)
	}

	country := textProp(props, geo.PropCountry)
	switch len(country) {
	case 3:
		return strings.ToUpper(country)
	case 2:
		if mapped := d.iso3ByISO2[strings.ToUpper(country)]; mapped != "" {
			return mapped
		}
	}

	return c.ISO3
}

func textProp(props geo.Properties, key string) string {
	v := props.Get(key)
	if v.Kind() != geo.KindString {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// enrich copies the selection window and update time onto features that lack them.
func enrich(features []geo.Feature, sel analysis.Selection) {
	for _, f := range features {
		setMissing(f.Properties, geo.PropTo, sel.ToDate)
		setMissing(f.Properties, geo.PropFrom, sel.FromDate)
		setMissing(f.Properties, geo.PropUpdatedAt, sel.UpdatedAt)
	}
}

func setMissing(props geo.Properties, key string, v geo.Value) {
	if _, ok := props[key]; ok || !v.Truthy() {
		return
	}
	props[key] = v
}
