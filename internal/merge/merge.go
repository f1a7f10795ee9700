// Package merge folds features from prioritised sources into one aggregate
// holding a single authoritative feature per identity key.
//
// An Aggregate is not safe for concurrent use. After any prefix of merges it is
// structurally valid and may be inspected, flattened or merged into further.
package merge

import (
	"slices"

	"github.com/woozymasta/ipcareas/internal/dates"
	"github.com/woozymasta/ipcareas/internal/geo"
)

// Source trust ranks, lowest first.
const (
	PriorityLegacyCombined = -5
	PriorityExisting       = 0
	PriorityDownload       = 10
	// PriorityNeutral is used when every source is equally trusted (global pass).
	PriorityNeutral = 0
)

// Source labels a batch of features handed to Merge.
type Source struct {
	Label    string
	Priority int
	// Year is the assessment year of the batch; zero when unknown.
	Year int
}

// Entry is the retained feature for one identity key.
type Entry struct {
	Feature     geo.Feature
	To          geo.Value
	From        geo.Value
	UpdatedAt   geo.Value
	SourceLabel string
	Title       string
	Priority    int
	// SourceYear is the feature's own year, else the source year; zero when unknown.
	SourceYear int
}

// Stats counts merge outcomes.
type Stats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Changed reports whether the merge added or replaced anything.
func (s Stats) Changed() bool {
	return s.Added > 0 || s.Updated > 0
}

// Aggregate is the working set of one feature per identity key.
type Aggregate struct {
	entries map[string]*Entry
}

// New returns an empty aggregate.
func New() *Aggregate {
	return &Aggregate{entries: make(map[string]*Entry)}
}

// Len returns the number of retained features.
func (a *Aggregate) Len() int {
	return len(a.entries)
}

// Merge folds features into the aggregate. Each feature is copied; the caller's
// features are never retained or modified.
//
// A feature replaces the entry under its key only when it strictly wins:
// higher priority, then higher year, then the analysis date tie-break.
// Ties keep the incumbent.
func (a *Aggregate) Merge(features []geo.Feature, src Source) Stats {
	var stats Stats

	for _, f := range features {
		candidate := newEntry(f.Clone(), src)
		key := geo.FeatureKey(candidate.Feature)

		existing, ok := a.entries[key]
		if !ok {
			a.entries[key] = candidate
			stats.Added++
			continue
		}

		if wins(candidate, existing) {
			a.entries[key] = candidate
			stats.Updated++
		} else {
			stats.Skipped++
		}
	}

	return stats
}

func newEntry(f geo.Feature, src Source) *Entry {
	year := src.Year
	if y, ok := f.Properties.Year(); ok {
		year = y
	}

	return &Entry{
		Feature:     f,
		Priority:    src.Priority,
		SourceYear:  year,
		SourceLabel: src.Label,
		Title:       f.Properties.Title(),
		To:          f.Properties.To(),
		From:        f.Properties.From(),
		UpdatedAt:   f.Properties.UpdatedAt(),
	}
}

func wins(candidate, existing *Entry) bool {
	if candidate.Priority != existing.Priority {
		return candidate.Priority > existing.Priority
	}
	if candidate.SourceYear != existing.SourceYear {
		return candidate.SourceYear > existing.SourceYear
	}
	return newerByDates(candidate, existing)
}

// newerByDates compares to, then from, then updated_at. A present timestamp
// beats an absent one; undecided means keep the incumbent.
func newerByDates(candidate, existing *Entry) bool {
	for _, pick := range []func(*Entry) geo.Value{
		func(e *Entry) geo.Value { return e.To },
		func(e *Entry) geo.Value { return e.From },
		func(e *Entry) geo.Value { return e.UpdatedAt },
	} {
		ct, cok := dates.ParseTimestamp(pick(candidate))
		et, eok := dates.ParseTimestamp(pick(existing))
		if c := dates.Compare(ct, cok, et, eok); c != 0 {
			return c > 0
		}
	}
	return false
}

// Keys returns the identity keys in ascending order.
func (a *Aggregate) Keys() []string {
	keys := make([]string, 0, len(a.entries))
	for k := range a.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Flatten returns copies of the retained features ordered by identity key.
// The order depends only on the aggregate's content, never on insertion order.
func (a *Aggregate) Flatten() []geo.Feature {
	keys := a.Keys()
	out := make([]geo.Feature, 0, len(keys))
	for _, k := range keys {
		out = append(out, a.entries[k].Feature.Clone())
	}
	return out
}

// Years returns the distinct known source years in ascending order.
func (a *Aggregate) Years() []int {
	seen := make(map[int]struct{})
	for _, e := range a.entries {
		if e.SourceYear != 0 {
			seen[e.SourceYear] = struct{}{}
		}
	}

	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	slices.Sort(years)
	return years
}
