// Package analysis picks the canonical survey release out of the features
// returned for one country and year.
package analysis

import (
	"cmp"
	"strings"
	"time"

	"github.com/woozymasta/ipcareas/internal/dates"
	"github.com/woozymasta/ipcareas/internal/geo"
)

// DefaultBucketKey groups features carrying no analysis id or validity window.
const DefaultBucketKey = "default"

// Selection describes the analysis chosen by Select.
type Selection struct {
	AnalysisID          geo.Value `json:"analysis_id"`
	AnalysisLabel       geo.Value `json:"analysis_label"`
	FromDate            geo.Value `json:"from_date"`
	ToDate              geo.Value `json:"to_date"`
	UpdatedAt           geo.Value `json:"updated_at"`
	PublishedAt         geo.Value `json:"published_at"`
	BucketKey           string    `json:"bucket_key"`
	CoversCurrentPeriod bool      `json:"covers_current_period"`
}

// IsZero reports whether s is the empty selection returned for empty input.
func (s Selection) IsZero() bool {
	return s.BucketKey == ""
}

// Options control a selection.
type Options struct {
	// Today is the reference day; zero means the current UTC day.
	Today time.Time
	// TargetYear is the assessment year being fetched; zero means unknown.
	TargetYear int
}

type field int

const (
	fieldAnalysisID field = iota
	fieldAnalysisLabel
	fieldFrom
	fieldTo
	fieldUpdated
	fieldPublished
	fieldCount
)

var fieldKeys = [fieldCount][]string{
	fieldAnalysisID:    dates.AnalysisIDKeys,
	fieldAnalysisLabel: dates.AnalysisLabelKeys,
	fieldFrom:          dates.FromKeys,
	fieldTo:            dates.ToKeys,
	fieldUpdated:       dates.UpdatedKeys,
	fieldPublished:     dates.PublishedKeys,
}

type stamp struct {
	t  time.Time
	ok bool
}

func (s stamp) compare(o stamp) int {
	return dates.Compare(s.t, s.ok, o.t, o.ok)
}

type bucket struct {
	key      string
	features []geo.RawFeature
	fields   [fieldCount]geo.Value

	from, to, updated, published stamp
	covers                       bool
}

// Select groups raw features into analysis buckets and returns the members and
// metadata of the best bucket.
//
// Buckets are compared by (covers current period, to, from, updated,
// published, member count) with absent timestamps lowest; the bucket seen last
// wins a full tie. When the target year is the reference year only buckets
// covering the reference day compete, provided at least one does.
func Select(features []geo.RawFeature, opts Options) ([]geo.RawFeature, Selection) {
	var order []*bucket
	byKey := make(map[string]*bucket)

	for _, f := range features {
		key := bucketKey(f.Properties)
		b, ok := byKey[key]
		if !ok {
			b = &bucket{key: key}
			byKey[key] = b
			order = append(order, b)
		}
		b.features = append(b.features, f)
		b.backfill(f.Properties)
	}

	if len(order) == 0 {
		return nil, Selection{}
	}

	today := opts.Today
	if today.IsZero() {
		today = time.Now().UTC()
	}
	today = day(today)

	for _, b := range order {
		b.hydrate(today)
	}

	candidates := order
	if opts.TargetYear != 0 && opts.TargetYear == today.Year() {
		var covering []*bucket
		for _, b := range order {
			if b.covers {
				covering = append(covering, b)
			}
		}
		if len(covering) > 0 {
			candidates = covering
		}
	}

	best := candidates[0]
	for _, b := range candidates[1:] {
		if compareBuckets(b, best) >= 0 {
			best = b
		}
	}

	return best.features, best.selection()
}

func bucketKey(props geo.Properties) string {
	parts := make([]string, 0, 3)
	for _, keys := range [][]string{dates.AnalysisIDKeys, dates.FromKeys, dates.ToKeys} {
		if v, ok := dates.FirstPresent(props, keys); ok {
			if s := v.String(); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) == 0 {
		return DefaultBucketKey
	}
	return strings.Join(parts, "|")
}

// backfill fills fields still missing from props; a set field is never overwritten.
func (b *bucket) backfill(props geo.Properties) {
	for i := range b.fields {
		if !b.fields[i].IsEmpty() {
			continue
		}
		if v, ok := dates.FirstPresent(props, fieldKeys[i]); ok {
			b.fields[i] = v
		}
	}
}

func (b *bucket) hydrate(today time.Time) {
	parse := func(f field) stamp {
		t, ok := dates.ParseTimestamp(b.fields[f])
		return stamp{t: t, ok: ok}
	}
	b.from = parse(fieldFrom)
	b.to = parse(fieldTo)
	b.updated = parse(fieldUpdated)
	b.published = parse(fieldPublished)
	b.covers = coversDay(b.from, b.to, today)
}

// coversDay reports whether today falls inside the validity window, compared by calendar day.
func coversDay(from, to stamp, today time.Time) bool {
	switch {
	case from.ok && to.ok:
		return !day(from.t).After(today) && !today.After(day(to.t))
	case from.ok:
		return !day(from.t).After(today)
	case to.ok:
		return !today.After(day(to.t))
	default:
		return false
	}
}

func compareBuckets(a, b *bucket) int {
	if c := cmp.Compare(boolRank(a.covers), boolRank(b.covers)); c != 0 {
		return c
	}
	if c := a.to.compare(b.to); c != 0 {
		return c
	}
	if c := a.from.compare(b.from); c != 0 {
		return c
	}
	if c := a.updated.compare(b.updated); c != 0 {
		return c
	}
	if c := a.published.compare(b.published); c != 0 {
		return c
	}
	return cmp.Compare(len(a.features), len(b.features))
}

func (b *bucket) selection() Selection {
	return Selection{
		AnalysisID:          b.fields[fieldAnalysisID],
		AnalysisLabel:       b.fields[fieldAnalysisLabel],
		FromDate:            b.fields[fieldFrom],
		ToDate:              b.fields[fieldTo],
		UpdatedAt:           b.fields[fieldUpdated],
		PublishedAt:         b.fields[fieldPublished],
		BucketKey:           b.key,
		CoversCurrentPeriod: b.covers,
	}
}

func boolRank(v bool) int {
	if v {
		return 1
	}
	return 0
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
